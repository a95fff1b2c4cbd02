package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"finance-tutor/internal/models"
)

// TutorConfig holds question-answering backend configuration
type TutorConfig struct {
	BaseURL string `yaml:"base_url"`
}

// QuizConfig holds knowledge-check configuration
type QuizConfig struct {
	Enabled bool `yaml:"enabled"`
	// Source selects the quiz seed text: "answer" or "question"
	Source string `yaml:"source"`
}

// Config holds all application configuration
type Config struct {
	Port            string      `yaml:"port"`
	DBPath          string      `yaml:"db_path"`
	StaticDir       string      `yaml:"static_dir"`
	SuggestionsPath string      `yaml:"suggestions_path"`
	DetailLevel     string      `yaml:"detail_level"`
	Tutor           TutorConfig `yaml:"tutor"`
	Quiz            QuizConfig  `yaml:"quiz"`
}

// defaults returns the baseline configuration
func defaults() *Config {
	return &Config{
		Port:            "8080",
		DBPath:          "data/app.db",
		StaticDir:       "static",
		SuggestionsPath: "settings/suggestions.yaml",
		DetailLevel:     string(models.DetailRegular),
		Tutor: TutorConfig{
			BaseURL: "http://localhost:8000",
		},
		Quiz: QuizConfig{
			Enabled: true,
			Source:  "answer",
		},
	}
}

// Load loads configuration from an optional YAML file plus environment
// overrides. A missing config file is not an error; missing .env is not
// an error either.
func Load() (*Config, error) {
	// Local development convenience; ignored when absent
	_ = godotenv.Load()

	cfg := defaults()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "settings/config.yaml"
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config values from the environment
func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("STATIC_DIR"); v != "" {
		cfg.StaticDir = v
	}
	if v := os.Getenv("SUGGESTIONS_PATH"); v != "" {
		cfg.SuggestionsPath = v
	}
	if v := os.Getenv("TUTOR_BASE_URL"); v != "" {
		cfg.Tutor.BaseURL = v
	}
	if v := os.Getenv("QUIZ_ENABLED"); v != "" {
		cfg.Quiz.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("QUIZ_SOURCE"); v != "" {
		cfg.Quiz.Source = v
	}
	if v := os.Getenv("DETAIL_LEVEL"); v != "" {
		cfg.DetailLevel = v
	}
}

// Validate checks enum-valued settings
func (c *Config) Validate() error {
	if c.Quiz.Source != "answer" && c.Quiz.Source != "question" {
		return fmt.Errorf("invalid quiz source %q: must be \"answer\" or \"question\"", c.Quiz.Source)
	}
	if !models.ValidDetailLevel(models.DetailLevel(c.DetailLevel)) {
		return fmt.Errorf("invalid detail level %q", c.DetailLevel)
	}
	return nil
}
