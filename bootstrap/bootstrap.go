// Package bootstrap assembles the review services from the environment.
package bootstrap

import (
	"fmt"
	"log"
	"net/http"

	"cerbo-api/config"
	"cerbo-api/services"
	"cerbo-api/store"
)

// App holds the wired services and the store they share.
type App struct {
	Settings config.Settings
	Store    store.Store
	Services *services.Services

	closers []func() error
}

// Close releases the external connections opened by New.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("bootstrap: close: %v", err)
		}
	}
}

// New reads the settings and wires every collaborator. STORE_DRIVER=memory
// keeps everything in process; any other value opens the database.
func New() (*App, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return NewWithSettings(settings)
}

// NewWithSettings wires the collaborators described by settings.
func NewWithSettings(settings config.Settings) (*App, error) {
	app := &App{Settings: settings}

	st, err := openStore(settings)
	if err != nil {
		return nil, err
	}
	app.Store = st

	files, err := services.NewDiskFileStore(settings.UploadPath)
	if err != nil {
		return nil, fmt.Errorf("open upload directory: %w", err)
	}

	var mailer services.Mailer
	if mc := config.LoadMailerConfig(); mc.Configured() {
		mailer = mc
	} else {
		log.Println("SMTP not configured, notifications stay in-app only")
	}

	var renderer services.Renderer
	if settings.RenderServiceURL != "" {
		renderer = services.NewHTTPRenderer(settings.RenderServiceURL, &http.Client{Timeout: settings.RenderTimeout})
	} else {
		renderer = services.NewHTMLRenderer(settings.BoardLocation)
	}

	var summarizer services.Summarizer
	if s := services.NewOpenAISummarizer(settings.OpenAIKey, settings.OpenAIBaseURL, settings.OpenAIModel); s != nil {
		summarizer = s
	}

	var audit services.AuditSink = services.LogAuditSink{}
	if settings.NATSURL != "" {
		sink, err := services.NewNATSAuditSink(settings.NATSURL, settings.NATSSubject)
		if err != nil {
			// lifecycle events still reach the log
			log.Printf("Warning: NATS unavailable, audit stays local: %v", err)
		} else {
			audit = services.MultiAuditSink{services.LogAuditSink{}, sink}
			app.closers = append(app.closers, sink.Close)
		}
	}

	app.Services = services.New(services.Deps{
		Store:      st,
		Files:      files,
		Notifier:   services.NewStoreNotifier(st, mailer),
		Renderer:   renderer,
		Summarizer: summarizer,
		Audit:      audit,
		Settings:   settings,
	})
	return app, nil
}

func openStore(settings config.Settings) (store.Store, error) {
	switch settings.StoreDriver {
	case "memory":
		log.Println("Using in-memory store")
		return store.NewMemoryStore()
	case "", "gorm":
		if err := config.InitDB(); err != nil {
			return nil, err
		}
		gs := store.NewGormStore(config.DB)
		if settings.AutoMigrate {
			if err := gs.AutoMigrate(); err != nil {
				return nil, fmt.Errorf("auto migrate: %w", err)
			}
		}
		return gs, nil
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", settings.StoreDriver)
	}
}
