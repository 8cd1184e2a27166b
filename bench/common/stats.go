package common

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Stats tracks benchmark throughput and latency.
type Stats struct {
	mu        sync.Mutex
	startTime time.Time
	endTime   time.Time

	operations int64
	bytes      int64
	errors     int64

	// Latency in nanoseconds, 1ns to 60s with 3 significant figures. Cipher
	// operations finish in well under a microsecond.
	latencyHist *hdrhistogram.Histogram
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{
		latencyHist: hdrhistogram.New(1, int64(time.Minute), 3),
	}
}

// Start marks the beginning of the timed run.
func (s *Stats) Start() { s.startTime = time.Now() }

// Stop marks the end of the timed run.
func (s *Stats) Stop() { s.endTime = time.Now() }

// RecordOperation records a completed operation over the given number of
// bytes.
func (s *Stats) RecordOperation(bytes int) {
	atomic.AddInt64(&s.operations, 1)
	atomic.AddInt64(&s.bytes, int64(bytes))
}

// RecordLatency adds one latency sample. Samples beyond the histogram range
// count as errors.
func (s *Stats) RecordLatency(d time.Duration) {
	s.mu.Lock()
	err := s.latencyHist.RecordValue(int64(d))
	s.mu.Unlock()
	if err != nil {
		s.RecordError()
	}
}

// RecordError counts a failed operation.
func (s *Stats) RecordError() {
	atomic.AddInt64(&s.errors, 1)
}

// Duration returns the time between Start and Stop.
func (s *Stats) Duration() time.Duration {
	return s.endTime.Sub(s.startTime)
}

// Operations returns the number of completed operations.
func (s *Stats) Operations() int64 { return atomic.LoadInt64(&s.operations) }

// Bytes returns the number of bytes processed.
func (s *Stats) Bytes() int64 { return atomic.LoadInt64(&s.bytes) }

// Errors returns the number of failed operations.
func (s *Stats) Errors() int64 { return atomic.LoadInt64(&s.errors) }

// OperationsPerSecond calculates operation throughput.
func (s *Stats) OperationsPerSecond() float64 {
	return s.rate(s.Operations())
}

// BytesPerSecond calculates byte throughput.
func (s *Stats) BytesPerSecond() float64 {
	return s.rate(s.Bytes())
}

func (s *Stats) rate(n int64) float64 {
	if secs := s.Duration().Seconds(); secs > 0 {
		return float64(n) / secs
	}
	return 0
}

// LatencySummary is a snapshot of the latency distribution.
type LatencySummary struct {
	Count int64
	Min   time.Duration
	Mean  time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	P999  time.Duration
	Max   time.Duration
}

// Latency summarizes the recorded latencies.
func (s *Stats) Latency() LatencySummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.latencyHist
	at := func(q float64) time.Duration { return time.Duration(h.ValueAtQuantile(q)) }
	return LatencySummary{
		Count: h.TotalCount(),
		Min:   time.Duration(h.Min()),
		Mean:  time.Duration(h.Mean()),
		P50:   at(50),
		P95:   at(95),
		P99:   at(99),
		P999:  at(99.9),
		Max:   time.Duration(h.Max()),
	}
}
