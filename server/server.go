// Package server implements the telemetry receiver. It subscribes to the
// readings published by device uplinks, decrypts them and reports its
// readiness over gRPC health checks.
package server

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	natsdServer "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nuid"
	"github.com/pkg/errors"
	"google.golang.org/grpc"

	"github.com/liftbridge-io/telecipher/server/encryption"
	"github.com/liftbridge-io/telecipher/server/health"
	"github.com/liftbridge-io/telecipher/server/logger"
	"github.com/liftbridge-io/telecipher/server/telemetry"
)

const embeddedNATSReadyTimeout = 10 * time.Second

// Server is the telemetry receiver.
type Server struct {
	config        *Config
	id            string
	logger        logger.Logger
	listener      net.Listener
	api           *grpc.Server
	health        *health.Reporter
	natsServer    *natsdServer.Server
	nc            *nats.Conn
	sub           *nats.Subscription
	cipher        *encryption.Service
	decoder       *telemetry.Decoder
	authzEnforcer *authzEnforcer
	onReading     func(*telemetry.Reading)
	received      uint64
	failed        uint64
	rejected      uint64
	shutdownCh    chan struct{}
	mu            sync.RWMutex
	shutdown      bool
	running       bool
	goroutineWait sync.WaitGroup
}

// Stats holds receiver counters. Failed readings could not be decoded and
// rejected readings came from instances the authorization policy does not
// allow.
type Stats struct {
	Received uint64
	Failed   uint64
	Rejected uint64
}

// New creates a new Server with the given configuration. Call Start to run
// it.
func New(config *Config) *Server {
	log := logger.NewLogger(config.LogLevel)
	if config.LogSilent {
		log.Silent(true)
	}
	return &Server{
		config:     config,
		id:         nuid.Next(),
		logger:     log,
		health:     health.NewReporter(),
		shutdownCh: make(chan struct{}),
	}
}

// RunServerWithConfig creates and starts a new Server with the given
// configuration. It returns an error if the Server failed to start.
func RunServerWithConfig(config *Config) (*Server, error) {
	server := New(config)
	err := server.Start()
	return server, err
}

// Start the Server. It serves health checks right away, reporting SERVING
// once the cipher self-test has passed and the telemetry subscription is in
// place.
func (s *Server) Start() (err error) {
	defer func() {
		if err != nil {
			s.Stop()
		}
	}()

	passphrase, err := s.config.Passphrase()
	if err != nil {
		return errors.Wrap(err, "no cipher passphrase configured")
	}

	s.cipher, err = encryption.NewService(s.config.Cipher.CacheSize)
	if err != nil {
		return err
	}

	if s.config.AuthzPolicy != "" {
		s.authzEnforcer, err = newAuthzEnforcer(s.config.AuthzPolicy)
		if err != nil {
			return err
		}
		s.logger.Infof("Authorizing readings with policy %s", s.config.AuthzPolicy)
	}

	if err := s.startHealthAPI(); err != nil {
		return err
	}

	if s.config.EmbeddedNATS {
		if err := s.startEmbeddedNATS(); err != nil {
			return errors.Wrap(err, "failed to start embedded NATS server")
		}
	}

	s.nc, err = s.createNATSConn("receiver")
	if err != nil {
		return errors.Wrap(err, "failed to connect to NATS")
	}

	if err := s.cipher.SelfTest(); err != nil {
		return err
	}
	s.logger.Infof("%s self-test passed", s.cipher.Name())

	// Devices fall back to XOR when their own self-test fails.
	s.decoder = telemetry.NewDecoder(passphrase, s.cipher, encryption.XOR{})

	s.sub, err = s.nc.Subscribe(s.config.Telemetry.Subject, s.handleReading)
	if err != nil {
		return errors.Wrap(err, "failed to subscribe to telemetry subject")
	}
	if err := s.nc.Flush(); err != nil {
		return errors.Wrap(err, "failed to flush telemetry subscription")
	}

	s.logger.Infof("Telecipher Version: %s", Version)
	s.logger.Infof("Server ID:          %s", s.id)
	s.logger.Infof("Receiving readings on %q", s.config.Telemetry.Subject)

	s.handleSignals()

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	s.health.SetServing()
	return nil
}

// Stop will attempt to gracefully shut the Server down by signaling the stop
// and waiting for all goroutines to return.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.logger.Info("Shutting down...")

	close(s.shutdownCh)
	s.health.Shutdown()

	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.logger.Warnf("Failed to unsubscribe from telemetry subject: %v", err)
		}
	}

	if s.nc != nil {
		s.nc.Close()
	}

	if s.api != nil {
		s.api.Stop()
	}

	if s.listener != nil {
		s.listener.Close()
	}

	if s.natsServer != nil {
		s.natsServer.Shutdown()
	}

	s.running = false
	s.shutdown = true
	s.mu.Unlock()

	// Wait for goroutines to stop.
	s.goroutineWait.Wait()

	return nil
}

// IsRunning indicates if the Server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// HealthAddr returns the address the health service listens on.
func (s *Server) HealthAddr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// NATSClientURL returns the URL of the embedded NATS server, or an empty
// string if none is running.
func (s *Server) NATSClientURL() string {
	if s.natsServer == nil {
		return ""
	}
	return s.natsServer.ClientURL()
}

// Stats returns the receiver counters.
func (s *Server) Stats() Stats {
	return Stats{
		Received: atomic.LoadUint64(&s.received),
		Failed:   atomic.LoadUint64(&s.failed),
		Rejected: atomic.LoadUint64(&s.rejected),
	}
}

func (s *Server) startHealthAPI() error {
	l, err := net.Listen("tcp", s.config.HealthListen)
	if err != nil {
		return errors.Wrap(err, "failed starting health listener")
	}
	s.listener = l

	s.api = s.newGRPCServer()
	s.health.Register(s.api)

	s.logger.Infof("Starting health service on %s...", l.Addr())
	s.startGoroutine(func() {
		err := s.api.Serve(l)
		if err != nil && !s.isShutdown() {
			s.logger.Errorf("Health service stopped: %v", err)
		}
	})
	return nil
}

func (s *Server) startEmbeddedNATS() error {
	opts := &natsdServer.Options{
		Host:   "127.0.0.1",
		Port:   s.config.EmbeddedNATSPort,
		NoSigs: true,
	}
	ns, err := natsdServer.NewServer(opts)
	if err != nil {
		return err
	}
	ns.SetLoggerV2(logger.NewNATSLogger(s.logger, s.config.LogNATS), false, false, false)
	go ns.Start()
	if !ns.ReadyForConnections(embeddedNATSReadyTimeout) {
		ns.Shutdown()
		return errors.New("embedded NATS server not ready for connections")
	}
	s.natsServer = ns
	s.config.NATS.Servers = []string{ns.ClientURL()}
	s.logger.Infof("Embedded NATS server listening on %s", ns.ClientURL())
	return nil
}

func (s *Server) createNATSConn(name string) (*nats.Conn, error) {
	var err error
	opts := s.config.NATS
	opts.Name = fmt.Sprintf("TC-%s-%s", s.id, name)
	opts.ReconnectWait = 250 * time.Millisecond
	opts.MaxReconnect = -1

	if err = nats.ErrorHandler(s.natsErrorHandler)(&opts); err != nil {
		return nil, err
	}
	if err = nats.ReconnectHandler(s.natsReconnectedHandler)(&opts); err != nil {
		return nil, err
	}
	if err = nats.ClosedHandler(s.natsClosedHandler)(&opts); err != nil {
		return nil, err
	}
	if err = nats.DisconnectErrHandler(s.natsDisconnectedHandler)(&opts); err != nil {
		return nil, err
	}

	return opts.Connect()
}

// handleReading decrypts a telemetry payload and logs the level. Payloads
// that fail to decode are logged and dropped.
func (s *Server) handleReading(m *nats.Msg) {
	atomic.AddUint64(&s.received, 1)
	reading, err := s.decoder.Decode(m.Data)
	if err != nil {
		atomic.AddUint64(&s.failed, 1)
		s.logger.Warnf("Dropping reading on %s: %v", m.Subject, err)
		return
	}
	if s.authzEnforcer != nil {
		ok, err := s.authzEnforcer.authorized(reading.Payload.InstanceID, m.Subject)
		if err != nil {
			s.logger.Errorf("Failed to authorize reading %s: %v", reading.Payload.ID, err)
		}
		if !ok {
			atomic.AddUint64(&s.rejected, 1)
			s.logger.Warnf("Rejecting reading %s from unauthorized %s",
				reading.Payload.ID, instanceOrUnknown(reading.Payload.InstanceID))
			return
		}
	}
	s.logger.Infof("Level %s from %s [id=%s, algorithm=%s]",
		reading.Level, instanceOrUnknown(reading.Payload.InstanceID),
		reading.Payload.ID, reading.Payload.Algorithm)
	if s.onReading != nil {
		s.onReading(reading)
	}
}

func instanceOrUnknown(id string) string {
	if id == "" {
		return "unknown instance"
	}
	return id
}

func (s *Server) isShutdown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shutdown
}

func (s *Server) natsDisconnectedHandler(nc *nats.Conn, err error) {
	if s.isShutdown() {
		return
	}
	if err != nil {
		s.logger.Errorf("Connection %q has been disconnected from NATS: %v",
			nc.Opts.Name, err)
	} else {
		s.logger.Errorf("Connection %q has been disconnected from NATS", nc.Opts.Name)
	}
}

func (s *Server) natsReconnectedHandler(nc *nats.Conn) {
	s.logger.Infof("Connection %q reconnected to NATS at %q",
		nc.Opts.Name, nc.ConnectedUrl())
}

func (s *Server) natsClosedHandler(nc *nats.Conn) {
	if s.isShutdown() {
		return
	}
	s.logger.Debugf("Connection %q has been closed", nc.Opts.Name)
}

func (s *Server) natsErrorHandler(nc *nats.Conn, sub *nats.Subscription, err error) {
	subject := ""
	if sub != nil {
		subject = sub.Subject
	}
	s.logger.Errorf("Asynchronous error on connection %s, subject %s: %s",
		nc.Opts.Name, subject, err)
}

// startGoroutine starts a goroutine which is managed by the server. This adds
// the goroutine to a WaitGroup so that the server can wait for all running
// goroutines to stop on shutdown. This should be used instead of a "naked"
// goroutine.
func (s *Server) startGoroutine(f func()) {
	select {
	case <-s.shutdownCh:
		return
	default:
	}
	s.goroutineWait.Add(1)
	go func() {
		f()
		s.goroutineWait.Done()
	}()
}
