package core

// Logger is any service that can log leveled messages.
// Trailing args may carry extra structured context; implementations may
// recognize specific types (e.g. a session.Session to tag the current person).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
