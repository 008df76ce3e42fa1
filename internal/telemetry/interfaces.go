package telemetry

import (
	"log"

	"lorehall/server/logging"
)

// Logger is the printf-shaped logging surface pipeline components accept.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts a function into a Logger. A nil func discards.
type LoggerFunc func(format string, args ...any)

func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger. Passing nil yields a Logger
// that discards everything.
func WrapLogger(logger *log.Logger) Logger {
	return LoggerFunc(func(format string, args ...any) {
		if logger == nil {
			return
		}
		logger.Printf(format, args...)
	})
}

// Metrics is the counter surface pipeline components accept.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// WrapMetrics exposes the logging counters through the Metrics interface.
// A nil argument yields a no-op implementation.
func WrapMetrics(metrics *logging.Metrics) Metrics {
	return counterBridge{counters: metrics}
}

type counterBridge struct {
	counters *logging.Metrics
}

func (b counterBridge) Add(key string, delta uint64) {
	b.counters.TelemetryAdd(key, delta)
}

func (b counterBridge) Store(key string, value uint64) {
	b.counters.TelemetryStore(key, value)
}
