package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	CategoryStandard = "standard"
	CategoryFinal    = "final"
)

// Settings groups the tunables of the review engine.
type Settings struct {
	// Categories maps a report category to its response window in days.
	Categories map[string]int

	RenderServiceURL string
	RenderTimeout    time.Duration

	DeadlineSweepCron string
	DeadlineSweepLock string
	BoardLocation     *time.Location

	NATSURL     string
	NATSSubject string

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string

	StoreDriver string
	UploadPath  string
	AutoMigrate bool
}

type categoryFile struct {
	Categories map[string]struct {
		DeadlineDays int `yaml:"deadline_days"`
	} `yaml:"categories"`
}

// DefaultSettings returns the values used when no environment overrides exist.
func DefaultSettings() Settings {
	return Settings{
		Categories: map[string]int{
			CategoryStandard: 7,
			CategoryFinal:    60,
		},
		RenderTimeout:     30 * time.Second,
		DeadlineSweepCron: "0 2 * * *",
		DeadlineSweepLock: "cerbo_deadline_sweep",
		BoardLocation:     time.Local,
		NATSSubject:       "cerbo.lifecycle",
		OpenAIModel:       "gpt-4o-mini",
		StoreDriver:       "gorm",
		UploadPath:        "./uploads",
	}
}

// LoadSettings reads the environment on top of DefaultSettings.
func LoadSettings() (Settings, error) {
	s := DefaultSettings()

	if days, err := intEnv("REPORT_DEADLINE_DAYS"); err != nil {
		return s, err
	} else if days > 0 {
		s.Categories[CategoryStandard] = days
	}
	if days, err := intEnv("FINAL_REPORT_DEADLINE_DAYS"); err != nil {
		return s, err
	} else if days > 0 {
		s.Categories[CategoryFinal] = days
	}
	if path := strings.TrimSpace(os.Getenv("REPORT_CATEGORIES_FILE")); path != "" {
		if err := s.LoadCategoryFile(path); err != nil {
			return s, err
		}
	}

	s.RenderServiceURL = strings.TrimRight(strings.TrimSpace(os.Getenv("RENDER_SERVICE_URL")), "/")
	if raw := strings.TrimSpace(os.Getenv("RENDER_TIMEOUT")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return s, fmt.Errorf("invalid RENDER_TIMEOUT %q", raw)
		}
		s.RenderTimeout = d
	}

	s.DeadlineSweepCron = getenvDefault("DEADLINE_SWEEP_CRON", s.DeadlineSweepCron)
	s.DeadlineSweepLock = getenvDefault("DEADLINE_SWEEP_LOCK", s.DeadlineSweepLock)
	if tz := strings.TrimSpace(os.Getenv("BOARD_TIMEZONE")); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return s, fmt.Errorf("invalid BOARD_TIMEZONE %q: %w", tz, err)
		}
		s.BoardLocation = loc
	}

	s.NATSURL = strings.TrimSpace(os.Getenv("NATS_URL"))
	s.NATSSubject = getenvDefault("NATS_SUBJECT_PREFIX", s.NATSSubject)

	s.OpenAIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	s.OpenAIBaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	s.OpenAIModel = getenvDefault("OPENAI_MODEL", s.OpenAIModel)

	s.StoreDriver = strings.ToLower(getenvDefault("STORE_DRIVER", s.StoreDriver))
	s.UploadPath = getenvDefault("UPLOAD_PATH", s.UploadPath)
	s.AutoMigrate = strings.EqualFold(os.Getenv("DB_AUTO_MIGRATE"), "true")

	return s, nil
}

// LoadCategoryFile merges report categories from a YAML file of the form
//
//	categories:
//	  standard: {deadline_days: 7}
//	  final: {deadline_days: 60}
func (s *Settings) LoadCategoryFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read report categories: %w", err)
	}
	var file categoryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse report categories: %w", err)
	}
	if s.Categories == nil {
		s.Categories = make(map[string]int)
	}
	for name, c := range file.Categories {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if c.DeadlineDays <= 0 {
			return fmt.Errorf("report category %q: deadline_days must be positive", name)
		}
		s.Categories[name] = c.DeadlineDays
	}
	return nil
}

// DeadlineFor returns the response window for a report category.
func (s Settings) DeadlineFor(category string) (time.Duration, bool) {
	days, ok := s.Categories[strings.ToLower(strings.TrimSpace(category))]
	if !ok || days <= 0 {
		return 0, false
	}
	return time.Duration(days) * 24 * time.Hour, true
}

func intEnv(key string) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return v, nil
}
