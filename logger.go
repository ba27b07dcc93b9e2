package lum

// Logger defines the interface for framework logging.
// The framework emits structured diagnostic records with key-value pairs,
// so implementing applications control how framework logs appear.
//
// The variadic arguments come in key-value pairs, compatible with slog,
// logrus, zap, and similar structured logging libraries:
//
//	logger.Info("module initialized", "module", "greeter")
//
// Log emission must never block lifecycle or dispatch progress, so
// implementations should not perform unbounded blocking writes.
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, args ...any)
}
