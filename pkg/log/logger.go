package log

import (
	"io"
	"os"
	"sync"

	"github.com/op/go-logging"
)

type Level logging.Level

// The levels that can be passed to the SetLevel function.
const (
	Debug Level = iota
	Info
	Notice
	Warning
	Error
)

// The logger format
var format = logging.MustStringFormatter(
	`%{color}[%{time:15:04:05.000}] [%{module}] [%{level}]%{color:reset} %{message}`,
)

var (
	mu sync.Mutex

	// The formatted output backend and any attached capture backends.
	sinkBackend logging.Backend
	captures    []*Capture

	// The combined leveled backend installed into go-logging.
	leveledBackend logging.LeveledBackend
	level          = logging.NOTICE
)

// The logger interface
type Logger interface {
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	Notice(v ...interface{})
	Noticef(format string, v ...interface{})

	Info(v ...interface{})
	Infof(format string, v ...interface{})

	Warning(v ...interface{})
	Warningf(format string, v ...interface{})

	Error(v ...interface{})
	Errorf(format string, v ...interface{})

	// Critical is reserved for fatal local errors (unwritable checkpoint,
	// failed bind). It never terminates the process.
	Critical(v ...interface{})
	Criticalf(format string, v ...interface{})
}

// Create a new named logger.
func New(name string) Logger {
	return logging.MustGetLogger(name)
}

// Override the backend output sink.
func SetSink(sink io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	backend := logging.NewLogBackend(sink, "", 0)
	sinkBackend = logging.NewBackendFormatter(backend, format)
	rebuild()
}

// Set logger verbosity.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()

	switch l {
	case Debug:
		level = logging.DEBUG
	case Info:
		level = logging.INFO
	case Notice:
		level = logging.NOTICE
	case Warning:
		level = logging.WARNING
	case Error:
		level = logging.ERROR
	}

	leveledBackend.SetLevel(level, "")
}

// Attach a capture backend; every record that passes the level filter is
// also delivered to it.
func AddCapture(c *Capture) {
	mu.Lock()
	defer mu.Unlock()

	captures = append(captures, c)
	rebuild()
}

// Detach a previously attached capture backend.
func RemoveCapture(c *Capture) {
	mu.Lock()
	defer mu.Unlock()

	for i, existing := range captures {
		if existing == c {
			captures = append(captures[:i], captures[i+1:]...)
			break
		}
	}
	rebuild()
}

// rebuild must be called with mu held.
func rebuild() {
	backends := make([]logging.Backend, 0, len(captures)+1)
	backends = append(backends, sinkBackend)
	for _, c := range captures {
		backends = append(backends, c)
	}

	leveledBackend = logging.MultiLogger(backends...)
	leveledBackend.SetLevel(level, "")
	logging.SetBackend(leveledBackend)
}

func init() {
	SetSink(os.Stdout)
	SetLevel(Notice)
}
