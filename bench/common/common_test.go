package common

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/liftbridge-io/telecipher/server/encryption"
)

// Ensure generated readings are repeatable and in range.
func TestPreGenerateReadings(t *testing.T) {
	levels := PreGenerateReadings(100, 7)
	require.Len(t, levels, 100)
	require.Equal(t, levels, PreGenerateReadings(100, 7))
	for _, level := range levels {
		require.True(t, level >= 0 && level < MaxLevel)
	}
}

func TestPreEncryptReadings(t *testing.T) {
	ciphertexts, err := PreEncryptReadings(encryption.XOR{}, "MySecretKey123", []float64{12.5})
	require.NoError(t, err)
	require.Equal(t, []string{"7C4B7D50"}, ciphertexts)

	_, err = PreEncryptReadings(encryption.XOR{}, "", []float64{12.5})
	require.Equal(t, encryption.ErrEmptyKey, err)
}

func TestSplit(t *testing.T) {
	require.Equal(t, [][2]int{{0, 3}, {3, 6}, {6, 10}}, Split(10, 3))
	require.Equal(t, [][2]int{{0, 5}}, Split(5, 0))
	require.Equal(t, [][2]int{{0, 1}, {1, 2}}, Split(2, 2))
}

func TestSplitServers(t *testing.T) {
	require.Nil(t, SplitServers(nil))
	require.Equal(t, []string{"nats://a:4222", "nats://b:4222", "nats://c:4222"},
		SplitServers([]string{" nats://a:4222 ,nats://b:4222", "", "nats://c:4222"}))
}

func TestStats(t *testing.T) {
	stats := NewStats()
	stats.Start()
	stats.RecordOperation(16)
	stats.RecordOperation(16)
	stats.RecordError()
	stats.RecordLatency(time.Microsecond)
	stats.RecordLatency(3 * time.Microsecond)
	stats.Stop()

	require.Equal(t, int64(2), stats.Operations())
	require.Equal(t, int64(32), stats.Bytes())
	require.Equal(t, int64(1), stats.Errors())
	latency := stats.Latency()
	require.Equal(t, int64(2), latency.Count)
	require.Equal(t, time.Microsecond, latency.Min)
	require.InDelta(t, float64(3*time.Microsecond), float64(latency.Max), float64(10*time.Nanosecond))

	result := NewBenchmarkResult("DES Encrypt", stats)
	require.Equal(t, int64(2), result.TotalOperations)
	require.NotEmpty(t, result.LatencyP99)

	var out bytes.Buffer
	WriteResults(&out, "DES Encrypt", stats, "json")
	decoded := BenchmarkResult{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Equal(t, result, decoded)

	out.Reset()
	WriteResults(&out, "DES Encrypt", stats, "text")
	require.Contains(t, out.String(), "=== DES Encrypt ===")
	require.Contains(t, out.String(), "p99.9")
}
