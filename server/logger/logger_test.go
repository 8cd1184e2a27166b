package logger

import (
	"bytes"
	"testing"

	gnatsd "github.com/nats-io/nats-server/v2/server"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newCapturedLogger(level log.Level) (Logger, *bytes.Buffer) {
	l := NewLogger(uint32(level))
	var buf bytes.Buffer
	l.SetWriter(&buf)
	return l, &buf
}

// Ensure log levels filter output.
func TestLoggerLevel(t *testing.T) {
	l, buf := newCapturedLogger(log.InfoLevel)

	l.Debugf("hidden %d", 1)
	require.Zero(t, buf.Len())

	l.Infof("reading %s", "12.5")
	require.Contains(t, buf.String(), "reading 12.5")

	l.Warn("backlog full")
	require.Contains(t, buf.String(), "backlog full")
}

// Ensure the prefix is applied and can be cleared.
func TestLoggerPrefix(t *testing.T) {
	l, buf := newCapturedLogger(log.DebugLevel)

	l.Prefix("[uplink] ")
	l.Info("published")
	require.Contains(t, buf.String(), "[uplink] published")

	l.Prefix("")
	buf.Reset()
	l.Info("published")
	require.NotContains(t, buf.String(), "[uplink]")
}

// Ensure silent mode discards output and restores the previous writer.
func TestLoggerSilent(t *testing.T) {
	l, buf := newCapturedLogger(log.DebugLevel)

	l.Silent(true)
	l.Info("should not appear")
	require.Zero(t, buf.Len())

	l.Silent(false)
	require.Same(t, buf, l.Writer())
	l.Info("should appear")
	require.Contains(t, buf.String(), "should appear")
}

// Ensure leaving silent mode without entering it is a programming error.
func TestLoggerSilentWithoutEnable(t *testing.T) {
	l := NewLogger(uint32(log.DebugLevel))
	require.Panics(t, func() { l.Silent(false) })
}

// Ensure the NATS adapter forwards with a prefix when enabled.
func TestNATSLogger(t *testing.T) {
	l, buf := newCapturedLogger(log.DebugLevel)

	natsLog := NewNATSLogger(l, true)
	require.IsType(t, &natsLogger{}, natsLog)

	natsLog.Noticef("listening on %d", 4222)
	require.Contains(t, buf.String(), "nats: listening on 4222")

	buf.Reset()
	natsLog.Tracef("trace")
	require.Contains(t, buf.String(), "nats: trace")
}

// Ensure the disabled NATS adapter drops non-fatal output.
func TestNoopNATSLogger(t *testing.T) {
	l, buf := newCapturedLogger(log.DebugLevel)

	natsLog := NewNATSLogger(l, false)
	require.IsType(t, &noopNATSLogger{}, natsLog)

	natsLog.Noticef("test")
	natsLog.Warnf("test")
	natsLog.Errorf("test")
	natsLog.Debugf("test")
	natsLog.Tracef("test")
	require.Zero(t, buf.Len())
}

var _ Logger = (*logger)(nil)
var _ gnatsd.Logger = (*natsLogger)(nil)
var _ gnatsd.Logger = (*noopNATSLogger)(nil)
