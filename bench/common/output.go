package common

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
)

// BenchmarkResult holds the formatted benchmark results.
type BenchmarkResult struct {
	Name                string  `json:"name"`
	Duration            string  `json:"duration"`
	TotalOperations     int64   `json:"total_operations"`
	TotalBytes          int64   `json:"total_bytes"`
	OperationsPerSecond float64 `json:"operations_per_second"`
	BytesPerSecond      float64 `json:"bytes_per_second"`
	LatencyMin          string  `json:"latency_min,omitempty"`
	LatencyMean         string  `json:"latency_mean,omitempty"`
	LatencyP50          string  `json:"latency_p50,omitempty"`
	LatencyP95          string  `json:"latency_p95,omitempty"`
	LatencyP99          string  `json:"latency_p99,omitempty"`
	LatencyP999         string  `json:"latency_p999,omitempty"`
	LatencyMax          string  `json:"latency_max,omitempty"`
	Errors              int64   `json:"errors"`
}

// NewBenchmarkResult summarizes stats.
func NewBenchmarkResult(name string, stats *Stats) BenchmarkResult {
	result := BenchmarkResult{
		Name:                name,
		Duration:            durafmt.Parse(stats.Duration()).String(),
		TotalOperations:     stats.Operations(),
		TotalBytes:          stats.Bytes(),
		OperationsPerSecond: stats.OperationsPerSecond(),
		BytesPerSecond:      stats.BytesPerSecond(),
		Errors:              stats.Errors(),
	}

	if l := stats.Latency(); l.Count > 0 {
		result.LatencyMin = l.Min.String()
		result.LatencyMean = l.Mean.String()
		result.LatencyP50 = l.P50.String()
		result.LatencyP95 = l.P95.String()
		result.LatencyP99 = l.P99.String()
		result.LatencyP999 = l.P999.String()
		result.LatencyMax = l.Max.String()
	}
	return result
}

// PrintResults writes benchmark results to stdout as text or JSON.
func PrintResults(name string, stats *Stats, format string) {
	WriteResults(os.Stdout, name, stats, format)
}

// WriteResults writes benchmark results to w as text or JSON.
func WriteResults(w io.Writer, name string, stats *Stats, format string) {
	result := NewBenchmarkResult(name, stats)
	if format == "json" {
		printJSON(w, result)
		return
	}
	printText(w, result)
}

func printJSON(w io.Writer, result BenchmarkResult) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(result)
}

func printText(out io.Writer, r BenchmarkResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\n=== %s ===\n\n", r.Name)
	fmt.Fprintf(w, "Elapsed:\t%s\n", r.Duration)
	fmt.Fprintf(w, "Operations:\t%s\n", humanize.Comma(r.TotalOperations))
	fmt.Fprintf(w, "Bytes:\t%s\n", humanize.Bytes(uint64(r.TotalBytes)))
	fmt.Fprintf(w, "Throughput:\t%s ops/sec\n", humanize.CommafWithDigits(r.OperationsPerSecond, 2))
	fmt.Fprintf(w, "Bandwidth:\t%s/sec\n", humanize.Bytes(uint64(r.BytesPerSecond)))
	fmt.Fprintln(w, "")

	if r.LatencyP50 != "" {
		fmt.Fprintln(w, "Latency per operation:")
		for _, row := range [][2]string{
			{"min", r.LatencyMin},
			{"mean", r.LatencyMean},
			{"p50", r.LatencyP50},
			{"p95", r.LatencyP95},
			{"p99", r.LatencyP99},
			{"p99.9", r.LatencyP999},
			{"max", r.LatencyMax},
		} {
			fmt.Fprintf(w, "  %s\t%s\n", row[0], row[1])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Errors:\t%d\n\n", r.Errors)
	w.Flush()
}
