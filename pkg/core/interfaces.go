package core

// Logger receives human readable progress lines
type Logger interface {
	Printf(format string, args ...interface{})
}
