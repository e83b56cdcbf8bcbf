package core

// Logger is any service that can log messages at the usual levels.
// Implementations may understand extra args (errors, key/value maps, the
// acting user) and forward them to an error-reporting backend.
type Logger interface {
	Enable(enabled bool)
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
