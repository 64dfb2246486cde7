package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is read from the environment. Command-line flags of the tools
// override individual fields after parsing.
type Config struct {
	DataDir        string `env:"AGEOFRISK_DATA_DIR" envDefault:"data"`
	ScreeningFile  string `env:"AGEOFRISK_SCREENING_FILE" envDefault:"breast_cancer_screening.csv"`
	MortalityFile  string `env:"AGEOFRISK_MORTALITY_FILE" envDefault:"death_due_to_cancer.csv"`
	ExamIncomeFile string `env:"AGEOFRISK_EXAM_INCOME_FILE" envDefault:"breast_exam_income.csv"`

	// Cleaning filters; empty keeps every value. Mortality defaults to the
	// rate unit so a file carrying counts as well cleans to one row per key.
	MortalityUnits []string `env:"AGEOFRISK_MORTALITY_UNITS" envDefault:"RT" envSeparator:","`
	ExamDurations  []string `env:"AGEOFRISK_EXAM_DURATIONS" envSeparator:","`

	CacheSize       int    `env:"AGEOFRISK_CACHE_SIZE" envDefault:"4096"`
	DefaultCountryN int    `env:"AGEOFRISK_DEFAULT_COUNTRIES" envDefault:"6"`
	Locale          string `env:"AGEOFRISK_LOCALE" envDefault:"en"`

	Addr     string `env:"AGEOFRISK_ADDR" envDefault:"127.0.0.1:18750"`
	OutDir   string `env:"AGEOFRISK_OUT_DIR" envDefault:"outputs"`
	LogLevel string `env:"AGEOFRISK_LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

func (c Config) ScreeningPath() string  { return c.resolve(c.ScreeningFile) }
func (c Config) MortalityPath() string  { return c.resolve(c.MortalityFile) }
func (c Config) ExamIncomePath() string { return c.resolve(c.ExamIncomeFile) }

// Level maps LogLevel to a slog level, defaulting to info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger builds the process logger: JSON for services, text for tools.
func (c Config) NewLogger(json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if json {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
