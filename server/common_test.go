package server

import (
	"fmt"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/liftbridge-io/telecipher/server/logger"
)

// Used by both testing.B and testing.T so need to use
// a common interface: tLogger
type tLogger interface {
	Fatalf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

func stackFatalf(t tLogger, f string, args ...interface{}) {
	lines := make([]string, 0, 32)
	msg := fmt.Sprintf(f, args...)
	lines = append(lines, msg)

	// Generate the Stack of callers:
	for i := 1; true; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		msg := fmt.Sprintf("%d - %s:%d", i, file, line)
		lines = append(lines, msg)
	}

	t.Fatalf("%s", strings.Join(lines, "\n"))
}

// waitForStats waits until the server has received and failed the given
// number of messages.
func waitForStats(t *testing.T, timeout time.Duration, s *Server, want Stats) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Stats() == want {
			return
		}
		time.Sleep(15 * time.Millisecond)
	}
	stackFatalf(t, "Expected stats %+v, got %+v", want, s.Stats())
}

func tempDataDir(t *testing.T) string {
	dir := t.TempDir()
	require.DirExists(t, dir)
	return dir
}

func noopLogger() logger.Logger {
	log := logger.NewLogger(0)
	log.Silent(true)
	return log
}
