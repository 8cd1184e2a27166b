package server

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	natsdTest "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/liftbridge-io/telecipher/server/encryption"
	"github.com/liftbridge-io/telecipher/server/health"
	"github.com/liftbridge-io/telecipher/server/telemetry"
)

const testPassphrase = "MySecretKey123"

func getTestConfig(t *testing.T) *Config {
	config := NewDefaultConfig()
	config.LogLevel = uint32(log.DebugLevel)
	config.LogSilent = true
	config.DataDir = tempDataDir(t)
	config.HealthListen = "127.0.0.1:0"
	config.EmbeddedNATS = true
	config.EmbeddedNATSPort = -1
	config.Cipher.Passphrase = testPassphrase
	return config
}

func runServerWithConfig(t *testing.T, config *Config) *Server {
	server, err := RunServerWithConfig(config)
	require.NoError(t, err)
	return server
}

func healthStatus(t *testing.T, s *Server) grpc_health_v1.HealthCheckResponse_ServingStatus {
	conn, err := grpc.NewClient(s.HealthAddr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx,
		&grpc_health_v1.HealthCheckRequest{Service: health.ServiceName})
	require.NoError(t, err)
	return resp.Status
}

func publishPayload(t *testing.T, nc *nats.Conn, subject string, payload *telemetry.Payload) {
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, nc.Publish(subject, data))
}

// Ensure the server reports SERVING once started and stops cleanly.
func TestServerStartStop(t *testing.T) {
	s := runServerWithConfig(t, getTestConfig(t))
	defer s.Stop()

	require.True(t, s.IsRunning())
	require.NotEmpty(t, s.NATSClientURL())
	require.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, healthStatus(t, s))

	require.NoError(t, s.Stop())
	require.False(t, s.IsRunning())

	// Stopping twice is a no-op.
	require.NoError(t, s.Stop())
}

// Ensure the server refuses to start without a passphrase.
func TestServerStartNoPassphrase(t *testing.T) {
	config := getTestConfig(t)
	config.Cipher.Passphrase = ""

	s, err := RunServerWithConfig(config)
	require.Equal(t, encryption.ErrEmptyKey, errors.Cause(err))
	require.False(t, s.IsRunning())
}

// Ensure the server fails to start when NATS is unreachable.
func TestServerStartNoNATS(t *testing.T) {
	config := getTestConfig(t)
	config.EmbeddedNATS = false
	config.NATS.Servers = []string{"nats://127.0.0.1:1"}
	config.NATS.Url = ""

	_, err := RunServerWithConfig(config)
	require.Error(t, err)
}

// Ensure readings published by an uplink are decrypted by the server.
func TestServerReceivesReadings(t *testing.T) {
	config := getTestConfig(t)
	s := New(config)
	readings := make(chan *telemetry.Reading, 10)
	s.onReading = func(r *telemetry.Reading) { readings <- r }
	require.NoError(t, s.Start())
	defer s.Stop()

	nc, err := nats.Connect(s.NATSClientURL())
	require.NoError(t, err)
	defer nc.Close()

	service, err := encryption.NewService(0)
	require.NoError(t, err)
	encoder := telemetry.NewEncoder(service, testPassphrase, noopLogger())
	uplinkConfig := config.UplinkConfig(testPassphrase)
	uplinkConfig.Interval = time.Millisecond
	uplink, err := telemetry.NewUplink(uplinkConfig, nc, encoder, nil, noopLogger())
	require.NoError(t, err)

	require.NoError(t, uplink.Publish(12.5))
	require.NoError(t, nc.Flush())

	select {
	case r := <-readings:
		require.Equal(t, "12.5", r.Level)
		require.Equal(t, 12.5, r.Value)
		require.Equal(t, uplink.InstanceID(), r.Payload.InstanceID)
		require.Equal(t, encryption.AlgorithmDES, r.Payload.Algorithm)
	case <-time.After(5 * time.Second):
		t.Fatal("Did not receive reading")
	}
	waitForStats(t, 5*time.Second, s, Stats{Received: 1})
}

// Ensure readings from devices that fell back to XOR are accepted and
// malformed payloads are counted and dropped.
func TestServerFallbackAndFailures(t *testing.T) {
	config := getTestConfig(t)
	s := New(config)
	readings := make(chan *telemetry.Reading, 10)
	s.onReading = func(r *telemetry.Reading) { readings <- r }
	require.NoError(t, s.Start())
	defer s.Stop()

	nc, err := nats.Connect(s.NATSClientURL())
	require.NoError(t, err)
	defer nc.Close()

	subject := config.Telemetry.Subject
	publishPayload(t, nc, subject, &telemetry.Payload{
		ID:             "xor",
		Algorithm:      encryption.AlgorithmXOR,
		EncryptedLevel: "7C4B7D50",
	})
	publishPayload(t, nc, subject, &telemetry.Payload{ID: "bad-hex", EncryptedLevel: "XYZ1"})
	publishPayload(t, nc, subject, &telemetry.Payload{ID: "short", EncryptedLevel: "1A5A"})
	require.NoError(t, nc.Publish(subject, []byte("not json")))
	require.NoError(t, nc.Flush())

	select {
	case r := <-readings:
		require.Equal(t, "xor", r.Payload.ID)
		require.Equal(t, "12.5", r.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("Did not receive reading")
	}
	waitForStats(t, 5*time.Second, s, Stats{Received: 4, Failed: 3})
}

// Ensure the server can use an external NATS server.
func TestServerExternalNATS(t *testing.T) {
	opts := natsdTest.DefaultTestOptions
	opts.Port = -1
	ns := natsdTest.RunServer(&opts)
	defer ns.Shutdown()

	config := getTestConfig(t)
	config.EmbeddedNATS = false
	config.NATS.Servers = []string{ns.ClientURL()}
	s := runServerWithConfig(t, config)
	defer s.Stop()

	require.Empty(t, s.NATSClientURL())

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	publishPayload(t, nc, config.Telemetry.Subject, &telemetry.Payload{
		ID:             "des",
		EncryptedLevel: "1A5A145757E16537",
	})
	require.NoError(t, nc.Flush())
	waitForStats(t, 5*time.Second, s, Stats{Received: 1})
}

// Ensure readings from instances the policy does not allow are rejected and
// a reloaded policy takes effect.
func TestServerAuthorization(t *testing.T) {
	policy := filepath.Join(tempDataDir(t), "policy.csv")
	require.NoError(t, ioutil.WriteFile(policy,
		[]byte("p, device-1, telemetry.level, publish\n"), 0644))

	config := getTestConfig(t)
	config.AuthzPolicy = policy
	s := runServerWithConfig(t, config)
	defer s.Stop()

	nc, err := nats.Connect(s.NATSClientURL())
	require.NoError(t, err)
	defer nc.Close()

	reading := func(instance string) *telemetry.Payload {
		return &telemetry.Payload{
			ID:             instance,
			InstanceID:     instance,
			EncryptedLevel: "1A5A145757E16537",
		}
	}
	subject := config.Telemetry.Subject
	publishPayload(t, nc, subject, reading("device-1"))
	publishPayload(t, nc, subject, reading("device-2"))
	publishPayload(t, nc, subject, reading("root"))
	publishPayload(t, nc, subject, reading(""))
	require.NoError(t, nc.Flush())
	waitForStats(t, 5*time.Second, s, Stats{Received: 4, Rejected: 2})

	require.NoError(t, ioutil.WriteFile(policy,
		[]byte("p, device-1, telemetry.level, publish\np, device-2, telemetry.level, publish\n"), 0644))
	require.NoError(t, s.authzEnforcer.reload())

	publishPayload(t, nc, subject, reading("device-2"))
	require.NoError(t, nc.Flush())
	waitForStats(t, 5*time.Second, s, Stats{Received: 5, Rejected: 2})
}

// Ensure a missing policy file prevents the server from starting.
func TestServerAuthorizationMissingPolicy(t *testing.T) {
	config := getTestConfig(t)
	config.AuthzPolicy = filepath.Join(tempDataDir(t), "missing.csv")
	_, err := RunServerWithConfig(config)
	require.Error(t, err)
}
