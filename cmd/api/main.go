package main

import (
	"context"
	"errors"
	"log"
	"os"

	"cerbo-api/bootstrap"
	"cerbo-api/config"
	"cerbo-api/controllers"
	"cerbo-api/routes"
	"cerbo-api/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logFile, _ := config.InitLogging()
	if logFile != nil {
		defer logFile.Close()
	}

	app, err := bootstrap.New()
	if err != nil {
		log.Fatalf("❌ Failed to start: %v", err)
	}
	defer app.Close()

	// Nightly deadline sweep
	scheduler := cron.New(cron.WithLocation(app.Settings.BoardLocation))
	if _, err := scheduler.AddFunc(app.Settings.DeadlineSweepCron, func() {
		_, err := app.Services.Sweep.Run(context.Background(), &services.DeadlineSweepInput{
			TriggerSource: "cron",
			LockName:      app.Settings.DeadlineSweepLock,
		})
		if errors.Is(err, services.ErrDeadlineSweepAlreadyRunning) {
			log.Println("deadline sweep skipped: another runner holds the lock")
		} else if err != nil {
			log.Printf("deadline sweep failed: %v", err)
		}
	}); err != nil {
		log.Fatalf("❌ Invalid DEADLINE_SWEEP_CRON %q: %v", app.Settings.DeadlineSweepCron, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	controllers.Configure(app.Services, app.Settings.DeadlineSweepLock)

	// Set Gin mode
	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Add logging middleware
	router.Use(gin.LoggerWithWriter(config.LogWriter))

	// Add recovery middleware
	router.Use(gin.Recovery())

	// Add security headers middleware
	router.Use(func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'self'")
		c.Next()
	})

	// Register /logs route early (before 404 catch-all in SetupRoutes)
	router.GET("/logs", func(c *gin.Context) {
		accessToken := os.Getenv("LOGS_TOKEN")
		if accessToken == "" || c.Query("token") != accessToken {
			c.JSON(401, gin.H{"error": "Unauthorized"})
			return
		}

		logData, err := os.ReadFile(config.LogFilePath())
		if err != nil {
			c.JSON(500, gin.H{"error": "Unable to read log"})
			return
		}

		c.Data(200, "text/plain; charset=utf-8", logData)
	})

	// Setup routes
	routes.SetupRoutes(router, app.Store)

	// Start server
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("🚀 Server starting on port %s", port)
	log.Printf("🗄️  Store driver: %s", app.Settings.StoreDriver)
	log.Printf("⏰ Deadline sweep scheduled: %s (%s)", app.Settings.DeadlineSweepCron, app.Settings.BoardLocation)

	if ginMode == "release" {
		log.Printf("🏭 Running in production mode")
	} else {
		log.Printf("🔧 Running in development mode")
	}

	if err := router.Run(":" + port); err != nil {
		log.Fatal("❌ Failed to start server:", err)
	}
}
