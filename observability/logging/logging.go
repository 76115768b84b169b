package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// Setup installs a JSON slog handler as the process default and returns a
// logger tagged with the service name and environment. Local environments log
// at debug level, everything else at info. The standard logger is bridged to
// the same handler so the daemon's fatal startup paths share the structured
// format.
func Setup(service, env string) *slog.Logger {
	logger, handler := build(os.Stdout, service, env)
	slog.SetDefault(logger)

	std := slog.NewLogLogger(handler, slog.LevelError)
	std.SetFlags(0)
	log.SetOutput(std.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return logger
}

func build(w io.Writer, service, env string) (*slog.Logger, slog.Handler) {
	env = strings.TrimSpace(env)
	level := slog.LevelInfo
	if env == "" || env == "local" {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "timestamp"
			case slog.LevelKey:
				attr = slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				attr.Key = "message"
			}
			return attr
		},
	})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	tagged := handler.WithAttrs(attrs)
	return slog.New(tagged), tagged
}
