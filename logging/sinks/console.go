package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"lorehall/server/logging"
)

var severityColors = map[logging.Severity]string{
	logging.SeverityDebug: "\x1b[90m",
	logging.SeverityInfo:  "\x1b[36m",
	logging.SeverityWarn:  "\x1b[33m",
	logging.SeverityError: "\x1b[31m",
}

const colorReset = "\x1b[0m"

// ConsoleSink renders one event per line for humans watching the server.
type ConsoleSink struct {
	logger *log.Logger
	color  bool
}

// NewConsoleSink writes formatted events to w, coloring the severity tag
// when the config asks for it.
func NewConsoleSink(w io.Writer, cfg logging.ConsoleConfig) *ConsoleSink {
	return &ConsoleSink{
		logger: log.New(w, "", log.LstdFlags),
		color:  cfg.UseColor,
	}
}

func (s *ConsoleSink) Write(event logging.Event) error {
	if s == nil || s.logger == nil {
		return nil
	}
	line := fmt.Sprintf("%s [%s] %s", s.severityTag(event.Severity), event.Type, subjectLabel(event.Subject))
	if event.Payload != nil {
		if data, err := json.Marshal(event.Payload); err == nil {
			line += " " + string(data)
		} else {
			line += fmt.Sprintf(" %v", event.Payload)
		}
	}
	s.logger.Print(line)
	return nil
}

func (s *ConsoleSink) Close(context.Context) error {
	return nil
}

func (s *ConsoleSink) severityTag(sev logging.Severity) string {
	label := sev.String()
	if !s.color {
		return label
	}
	code, ok := severityColors[sev]
	if !ok {
		return label
	}
	return code + label + colorReset
}

// subjectLabel renders kind:id, degrading to whichever half is set.
func subjectLabel(ref logging.ContentRef) string {
	switch {
	case ref.ID == "":
		return string(ref.Kind)
	case ref.Kind == "":
		return ref.ID
	default:
		return fmt.Sprintf("%s:%s", ref.Kind, ref.ID)
	}
}
