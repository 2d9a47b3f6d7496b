// Package config holds the application-level settings and shared run flags.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jfeld/crawlflow/internal/output"
)

// Debug is set from the command line and enables debug logging.
var Debug bool

type contextKey string

// LoggerCtxKey is the context key under which a run-scoped logger is stored.
const LoggerCtxKey contextKey = "logger"

func GetLogLevel() slog.Level {
	if Debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// Settings defines the application settings. Values will be taken from a
// settings yaml file or environment variables or both.
type Settings struct {
	UserAgent           string              `yaml:"user_agent" env:"CRAWLFLOW_USER_AGENT" env-default:"crawlflow web crawler (github.com/jfeld/crawlflow)"`
	Headless            bool                `yaml:"headless" env:"CRAWLFLOW_HEADLESS" env-default:"true"`
	NavigationTimeoutMS int                 `yaml:"navigation_timeout_ms" env:"CRAWLFLOW_NAVIGATION_TIMEOUT_MS" env-default:"10000"`
	SettleDelayMS       int                 `yaml:"settle_delay_ms" env:"CRAWLFLOW_SETTLE_DELAY_MS" env-default:"500"`
	MetricsAddr         string              `yaml:"metrics_addr" env:"CRAWLFLOW_METRICS_ADDR"`
	Writer              output.WriterConfig `yaml:"writer"`
}

// NewSettings reads the settings from the given file. An empty path or a
// missing file is not an error; environment variables and defaults apply.
func NewSettings(path string) (*Settings, error) {
	var settings Settings
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &settings); err != nil {
				return nil, fmt.Errorf("failed to read settings from %s: %w", path, err)
			}
			return &settings, nil
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}
	if err := cleanenv.ReadEnv(&settings); err != nil {
		return nil, err
	}
	return &settings, nil
}
