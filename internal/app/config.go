package app

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"

	"lorehall/server/internal/telemetry"
	"lorehall/server/logging"
)

// Config carries the server's environment-driven settings. The Logger field
// is injectable for tests and never read from the environment.
type Config struct {
	Addr         string   `env:"LOREHALL_ADDR" envDefault:":8080"`
	ContentDir   string   `env:"LOREHALL_CONTENT_DIR" envDefault:"content"`
	ManifestFile string   `env:"LOREHALL_MANIFEST" envDefault:"manifest.json"`
	ClientDir    string   `env:"LOREHALL_CLIENT_DIR" envDefault:"../client"`
	DevMode      bool     `env:"LOREHALL_DEV" envDefault:"false"`
	LogSinks     []string `env:"LOREHALL_LOG_SINKS" envSeparator:"," envDefault:"console"`
	LogSeverity  string   `env:"LOREHALL_LOG_SEVERITY" envDefault:"info"`
	LogFile      string   `env:"LOREHALL_LOG_FILE" envDefault:"lorehall-events.ndjson"`
	Preflight    bool     `env:"LOREHALL_PREFLIGHT" envDefault:"true"`
	StrictBoot   bool     `env:"LOREHALL_PREFLIGHT_STRICT" envDefault:"false"`
	EnablePprof  bool     `env:"LOREHALL_PPROF" envDefault:"false"`

	Logger telemetry.Logger
}

// ParseConfig loads the server configuration from environment variables.
func ParseConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("app: parse env: %w", err)
	}
	return cfg.normalized(), nil
}

func (c Config) normalized() Config {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = ":8080"
	}
	if strings.TrimSpace(c.ContentDir) == "" {
		c.ContentDir = "content"
	}
	if strings.TrimSpace(c.ManifestFile) == "" {
		c.ManifestFile = "manifest.json"
	}
	if len(c.LogSinks) == 0 {
		c.LogSinks = []string{"console"}
	}
	if strings.TrimSpace(c.LogSeverity) == "" {
		c.LogSeverity = "info"
	}
	return c
}

// loggingConfig translates the app settings into the router's config.
func (c Config) loggingConfig() logging.Config {
	logCfg := logging.DefaultConfig()
	logCfg.EnabledSinks = append([]string(nil), c.LogSinks...)
	logCfg.MinimumSeverity = severityOf(c.LogSeverity)
	logCfg.JSON.FilePath = c.LogFile
	return logCfg
}

// severityOf maps a config name onto a severity, defaulting to info.
func severityOf(name string) logging.Severity {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return logging.SeverityDebug
	case "warn", "warning":
		return logging.SeverityWarn
	case "error":
		return logging.SeverityError
	default:
		return logging.SeverityInfo
	}
}
