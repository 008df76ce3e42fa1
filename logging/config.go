package logging

import (
	"maps"
	"time"
)

// Config shapes the router: which sinks run, how much backlog the queue
// absorbs, and the severity floor below which events are discarded.
type Config struct {
	EnabledSinks     []string
	MinimumSeverity  Severity
	BufferSize       int
	DropWarnInterval time.Duration
	Fields           map[string]any
	Console          ConsoleConfig
	JSON             JSONConfig
}

// ConsoleConfig adjusts the human-readable sink.
type ConsoleConfig struct {
	UseColor bool
}

// JSONConfig adjusts the newline-delimited file sink.
type JSONConfig struct {
	FilePath      string
	MaxBatch      int
	FlushInterval time.Duration
}

// DefaultConfig returns the settings used when nothing overrides them:
// console sink only, info severity, a 512-event queue.
func DefaultConfig() Config {
	return Config{
		EnabledSinks:     []string{"console"},
		MinimumSeverity:  SeverityInfo,
		BufferSize:       512,
		DropWarnInterval: 5 * time.Second,
		JSON: JSONConfig{
			MaxBatch:      32,
			FlushInterval: 2 * time.Second,
		},
	}
}

// normalized fills holes with defaults so the router never sees a zero
// queue or an out-of-range severity.
func (c Config) normalized() Config {
	fallback := DefaultConfig()
	if len(c.EnabledSinks) == 0 {
		c.EnabledSinks = append([]string(nil), fallback.EnabledSinks...)
	}
	if c.BufferSize <= 0 {
		c.BufferSize = fallback.BufferSize
	}
	if c.DropWarnInterval <= 0 {
		c.DropWarnInterval = fallback.DropWarnInterval
	}
	if c.MinimumSeverity < SeverityDebug || c.MinimumSeverity > SeverityError {
		c.MinimumSeverity = fallback.MinimumSeverity
	}
	return c
}

// CloneFields copies the base fields the router stamps onto every event.
func (c Config) CloneFields() map[string]any {
	if len(c.Fields) == 0 {
		return nil
	}
	return maps.Clone(c.Fields)
}
