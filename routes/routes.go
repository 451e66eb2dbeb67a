package routes

import (
	"cerbo-api/controllers"
	"cerbo-api/middleware"
	"cerbo-api/models"
	"cerbo-api/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(router *gin.Engine, users store.Repository) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Health check
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"message": "CERBO API is running",
			})
		})

		// Protected routes (require authentication)
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(users))
		{
			protected.GET("/notifications", controllers.GetNotifications)
			protected.PATCH("/notifications/:id/read", controllers.MarkNotificationRead)

			projects := protected.Group("/projects")
			{
				projects.GET("", controllers.ListProjects)
				projects.POST("", middleware.RequireRole(models.RoleInvestigator), controllers.SubmitProject)
				projects.GET("/:id", controllers.GetProject)
				projects.GET("/:id/history", controllers.GetProjectHistory)
				projects.GET("/:id/documents", controllers.ListDocuments)
				projects.POST("/:id/documents", controllers.UploadDocument)

				// Reviewer workflow
				projects.GET("/:id/reviews", controllers.ListReviews)
				projects.GET("/:id/reviews/progress", controllers.GetReviewProgress)
				projects.POST("/:id/reviews/submit", middleware.RequireRole(models.RoleReviewer), controllers.SubmitReviews)

				projects.GET("/:id/remarks", controllers.ListRemarks)
				projects.GET("/:id/reports", controllers.ListReports)
			}

			documents := protected.Group("/documents")
			{
				documents.GET("/:id/download", controllers.DownloadDocument)
				documents.PUT("/:id/review", middleware.RequireRole(models.RoleReviewer), controllers.RecordReview)
				documents.POST("/:id/review/finalize", middleware.RequireRole(models.RoleReviewer), controllers.FinalizeReview)
			}

			reports := protected.Group("/reports")
			{
				reports.GET("/:id", controllers.GetReport)
				reports.GET("/:id/download", controllers.DownloadReport)
				reports.POST("/:id/response", controllers.RespondReport)
			}

			meetings := protected.Group("/meetings")
			{
				meetings.GET("", controllers.ListMeetings)
				meetings.GET("/:id", controllers.GetMeeting)
				meetings.GET("/:id/agenda", controllers.GetAgenda)
				meetings.GET("/:id/attendance", controllers.ListAttendance)
			}

			// Board administration
			admin := protected.Group("/admin")
			admin.Use(middleware.RequireRole(models.RoleAdmin))
			{
				admin.DELETE("/projects/:id", controllers.DeleteProject)
				admin.POST("/projects/:id/reviewers", controllers.AssignReviewers)
				admin.POST("/projects/:id/decision", controllers.DecideProject)
				admin.POST("/projects/:id/reports", controllers.BuildReport)

				admin.POST("/remarks", controllers.PromoteRemark)
				admin.PATCH("/remarks/:id", controllers.UpdateRemarkContent)
				admin.PATCH("/remarks/:id/status", controllers.SetRemarkStatus)

				admin.POST("/reports/:id/dispatch", controllers.DispatchReport)
				admin.POST("/reports/:id/archive", controllers.ArchiveReport)
				admin.DELETE("/reports/:id", controllers.DiscardReport)
				admin.POST("/deadline-sweep", controllers.RunDeadlineSweep)

				admin.POST("/meetings/schedule", controllers.GenerateSchedule)
				admin.POST("/meetings/:id/toggle", controllers.ToggleMeeting)
				admin.POST("/meetings/:id/agenda", controllers.AddAgendaProject)
				admin.PUT("/meetings/:id/agenda/order", controllers.ReorderAgenda)
				admin.DELETE("/meetings/:id/agenda/:project_id", controllers.RemoveAgendaProject)
				admin.PUT("/meetings/:id/agenda/:project_id/decision", controllers.RecordAgendaDecision)
				admin.POST("/meetings/:id/attendees/sync", controllers.SyncAttendees)
				admin.POST("/meetings/:id/attendees", controllers.AddAttendee)
				admin.DELETE("/meetings/:id/attendees/:reviewer_id", controllers.RemoveAttendee)
				admin.PUT("/meetings/:id/attendance", controllers.MarkAttendance)
				admin.GET("/meetings/:id/minutes", controllers.GetMinutes)
				admin.GET("/meetings/:id/minutes/document", controllers.DownloadMinutes)
			}
		}
	}
}
