package logger

import (
	"io"
	"io/ioutil"
	"sync"

	gnatsd "github.com/nats-io/nats-server/v2/server"
	log "github.com/sirupsen/logrus"
)

// Logger interface is used to allow tests to inject custom loggers.
type Logger interface {
	Fatalf(string, ...interface{})
	Debugf(string, ...interface{})
	Errorf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Debug(...interface{})
	Warn(...interface{})
	Info(...interface{})
	Fatal(...interface{})
	Prefix(string)
	Silent(bool)
	Writer() io.Writer
	SetWriter(io.Writer)
}

type logger struct {
	*log.Logger
	formatter *prefixFormatter

	mu       sync.Mutex
	silenced bool
	savedOut io.Writer
}

// NewLogger returns a new Logger instance backed by Logrus.
func NewLogger(level uint32) Logger {
	l := log.New()
	l.SetLevel(log.Level(level))
	formatter := &prefixFormatter{
		TextFormatter: &log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		},
	}
	l.Formatter = formatter
	return &logger{Logger: l, formatter: formatter}
}

// Prefix sets a string prepended to every message. An empty string clears it.
func (l *logger) Prefix(prefix string) {
	l.formatter.setPrefix(prefix)
}

// Silent discards all output while enabled. Disabling restores the writer
// that was in place when it was enabled; disabling without enabling first
// panics.
func (l *logger) Silent(enable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if enable {
		if l.silenced {
			return
		}
		l.savedOut = l.Out
		l.Logger.SetOutput(ioutil.Discard)
		l.silenced = true
		return
	}
	if !l.silenced {
		panic("logger: Silent(false) called without Silent(true)")
	}
	l.Logger.SetOutput(l.savedOut)
	l.savedOut = nil
	l.silenced = false
}

func (l *logger) Writer() io.Writer {
	return l.Out
}

func (l *logger) SetWriter(writer io.Writer) {
	l.Logger.SetOutput(writer)
}

// prefixFormatter prepends a fixed prefix to entry messages.
type prefixFormatter struct {
	*log.TextFormatter

	mu     sync.RWMutex
	prefix string
}

func (f *prefixFormatter) setPrefix(prefix string) {
	f.mu.Lock()
	f.prefix = prefix
	f.mu.Unlock()
}

func (f *prefixFormatter) Format(entry *log.Entry) ([]byte, error) {
	f.mu.RLock()
	prefix := f.prefix
	f.mu.RUnlock()
	if prefix != "" {
		entry.Message = prefix + entry.Message
	}
	return f.TextFormatter.Format(entry)
}

// natsLogger implements the NATS server logger interface by writing log
// messages to a Logger.
type natsLogger struct {
	logger Logger
}

// NewNATSLogger creates a logger for the embedded NATS server that writes to
// the given Logger. When disabled only fatal errors are forwarded.
func NewNATSLogger(logger Logger, enabled bool) gnatsd.Logger {
	if enabled {
		return &natsLogger{logger}
	}
	return &noopNATSLogger{logger}
}

// Noticef logs a notice statement.
func (n *natsLogger) Noticef(format string, v ...interface{}) {
	n.logger.Infof("nats: "+format, v...)
}

// Warnf logs a warning statement.
func (n *natsLogger) Warnf(format string, v ...interface{}) {
	n.logger.Warnf("nats: "+format, v...)
}

// Fatalf logs a fatal error.
func (n *natsLogger) Fatalf(format string, v ...interface{}) {
	n.logger.Fatalf("nats: "+format, v...)
}

// Errorf logs an error.
func (n *natsLogger) Errorf(format string, v ...interface{}) {
	n.logger.Errorf("nats: "+format, v...)
}

// Debugf logs a debug statement.
func (n *natsLogger) Debugf(format string, v ...interface{}) {
	n.logger.Debugf("nats: "+format, v...)
}

// Tracef logs a trace statement.
func (n *natsLogger) Tracef(format string, v ...interface{}) {
	n.logger.Debugf("nats: "+format, v...)
}

// noopNATSLogger drops everything except fatal errors.
type noopNATSLogger struct {
	logger Logger
}

func (n *noopNATSLogger) Noticef(format string, v ...interface{}) {}
func (n *noopNATSLogger) Warnf(format string, v ...interface{})   {}
func (n *noopNATSLogger) Errorf(format string, v ...interface{})  {}
func (n *noopNATSLogger) Debugf(format string, v ...interface{})  {}
func (n *noopNATSLogger) Tracef(format string, v ...interface{})  {}

// Fatalf logs a fatal error.
func (n *noopNATSLogger) Fatalf(format string, v ...interface{}) {
	n.logger.Fatalf("nats: "+format, v...)
}
