package types

// Logger is the minimal structured logging interface used by pipeline
// packages. Lambda entrypoints adapt *slog.Logger to it; tests substitute a
// recording implementation. Args are alternating key/value pairs in the
// slog convention.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// NopLogger discards all log output. Useful as a default in tests.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (n NopLogger) With(...any) Logger { return n }
