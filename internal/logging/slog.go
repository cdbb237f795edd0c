package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ServiceName tags records shipped to OTel and Graylog.
const ServiceName = "tarkov-map-tracker"

// timeFormat keeps milliseconds; frame timings are sub-second.
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// consoleOut receives records when no log file is configured.
var consoleOut io.Writer = os.Stdout

// SlogManager owns the process logger: a text handler on the run log file
// (or the console), the OTel bridge and any extra handlers such as GELF.
// The text handler level can be changed while running.
type SlogManager struct {
	level       slog.LevelVar
	logger      *slog.Logger
	logProvider *sdklog.LoggerProvider
}

func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel accepts slog level names in any case, falling back to info.
func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

func replaceTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(timeFormat))
	}
	return a
}

// Setup replaces the logger. Records go to file, or to the console when
// file is nil, and to the OTel bridge when provider is set. extra handlers
// keep their own levels.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, extra ...slog.Handler) {
	m.level.Set(parseLevel(level))
	m.logProvider = provider

	out := file
	if out == nil {
		out = consoleOut
	}
	handlers := []slog.Handler{
		slog.NewTextHandler(out, &slog.HandlerOptions{Level: &m.level, ReplaceAttr: replaceTime}),
	}
	if provider != nil {
		handlers = append(handlers, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(provider)))
	}
	handlers = append(handlers, extra...)

	m.logger = slog.New(NewMultiHandler(handlers...))
	m.logger.Info("Logging initialized", "level", m.level.Level().String())
}

// SetLevel changes the text handler level and returns the level applied.
func (m *SlogManager) SetLevel(level string) slog.Level {
	lvl := parseLevel(level)
	if lvl != m.level.Level() {
		m.level.Set(lvl)
		if m.logger != nil {
			m.logger.Info("Log level changed", "level", lvl.String())
		}
	}
	return lvl
}

// Level returns the current text handler level.
func (m *SlogManager) Level() slog.Level {
	return m.level.Level()
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush exports pending OTel records.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider == nil {
		return nil
	}
	return m.logProvider.ForceFlush(ctx)
}
