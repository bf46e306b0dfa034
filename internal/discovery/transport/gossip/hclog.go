package gossip

import (
	"bytes"
	"context"
	"io"
	"log"
	"log/slog"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// hclogAdapter adapts slog.Logger to hashicorp/go-hclog.Logger.
type hclogAdapter struct {
	logger *slog.Logger
	name   string
	args   []any
}

func newHCLogger(logger *slog.Logger, name string) *hclogAdapter {
	return &hclogAdapter{logger: logger.With("component", name), name: name}
}

func (l *hclogAdapter) Log(level hclog.Level, msg string, args ...any) {
	switch level {
	case hclog.Trace, hclog.Debug:
		l.logger.Debug(msg, args...)
	case hclog.Info:
		l.logger.Info(msg, args...)
	case hclog.Warn:
		l.logger.Warn(msg, args...)
	case hclog.Error:
		l.logger.Error(msg, args...)
	default:
		l.logger.Info(msg, args...)
	}
}

func (l *hclogAdapter) Trace(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *hclogAdapter) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *hclogAdapter) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *hclogAdapter) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *hclogAdapter) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *hclogAdapter) IsTrace() bool { return false }
func (l *hclogAdapter) IsDebug() bool { return l.logger.Enabled(context.Background(), slog.LevelDebug) }
func (l *hclogAdapter) IsInfo() bool  { return l.logger.Enabled(context.Background(), slog.LevelInfo) }
func (l *hclogAdapter) IsWarn() bool  { return l.logger.Enabled(context.Background(), slog.LevelWarn) }
func (l *hclogAdapter) IsError() bool { return true }

func (l *hclogAdapter) ImpliedArgs() []any { return l.args }

func (l *hclogAdapter) With(args ...any) hclog.Logger {
	return &hclogAdapter{
		logger: l.logger.With(args...),
		name:   l.name,
		args:   append(append([]any(nil), l.args...), args...),
	}
}

func (l *hclogAdapter) Name() string { return l.name }

func (l *hclogAdapter) Named(name string) hclog.Logger {
	full := name
	if l.name != "" {
		full = l.name + "." + name
	}
	return &hclogAdapter{logger: l.logger.With("subsystem", name), name: full, args: l.args}
}

func (l *hclogAdapter) ResetNamed(name string) hclog.Logger {
	return &hclogAdapter{logger: l.logger, name: name, args: l.args}
}

// SetLevel is a no-op: the level is owned by the slog handler.
func (l *hclogAdapter) SetLevel(hclog.Level) {}

func (l *hclogAdapter) GetLevel() hclog.Level {
	switch {
	case l.IsDebug():
		return hclog.Debug
	case l.IsInfo():
		return hclog.Info
	case l.IsWarn():
		return hclog.Warn
	default:
		return hclog.Error
	}
}

func (l *hclogAdapter) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(l.StandardWriter(opts), "", 0)
}

func (l *hclogAdapter) StandardWriter(opts *hclog.StandardLoggerOptions) io.Writer {
	infer := opts == nil || opts.InferLevels
	return &stdWriter{l: l, infer: infer}
}

// stdWriter routes standard-library log lines such as
// "[DEBUG] memberlist: msg" to the adapter at the embedded level.
type stdWriter struct {
	l     *hclogAdapter
	infer bool
}

func (w *stdWriter) Write(p []byte) (int, error) {
	line := string(bytes.TrimRight(p, "\r\n"))
	level := hclog.Info
	if w.infer {
		level, line = splitLevel(line)
	}
	w.l.Log(level, line)
	return len(p), nil
}

func splitLevel(line string) (hclog.Level, string) {
	if !strings.HasPrefix(line, "[") {
		return hclog.Info, line
	}
	end := strings.Index(line, "]")
	if end < 0 {
		return hclog.Info, line
	}
	tag := line[1:end]
	level := hclog.LevelFromString(tag)
	if strings.EqualFold(tag, "ERR") {
		level = hclog.Error
	}
	if level == hclog.NoLevel || level == hclog.Off {
		return hclog.Info, line
	}
	if level == hclog.Trace {
		level = hclog.Debug
	}
	return level, strings.TrimSpace(line[end+1:])
}
