//go:build !windows

package server

import (
	"os"
	"os/signal"
	"syscall"
)

// handleSignals sets up a handler for SIGINT and SIGTERM to do a graceful
// shutdown and for SIGHUP to reload the authorization policy.
func (s *Server) handleSignals() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	// Use a naked goroutine instead of startGoroutine because this stops the
	// server which would cause a deadlock.
	go func() {
		for {
			var sig os.Signal
			select {
			case sig = <-c:
			case <-s.shutdownCh:
				signal.Stop(c)
				return
			}

			if sig == syscall.SIGHUP {
				if s.authzEnforcer == nil {
					continue
				}
				if err := s.authzEnforcer.reload(); err != nil {
					s.logger.Errorf("Error occurred while reloading authorization policy: %v", err)
					continue
				}
				s.logger.Info("Reloaded authorization policy successfully")
				continue
			}

			if err := s.Stop(); err != nil {
				s.logger.Errorf("Error occurred shutting down server while handling interrupt: %v", err)
				os.Exit(1)
			}
			os.Exit(0)
		}
	}()
}
