package main

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/urfave/cli"

	"github.com/liftbridge-io/telecipher/bench/common"
	"github.com/liftbridge-io/telecipher/server/encryption"
	"github.com/liftbridge-io/telecipher/server/telemetry"
)

func main() {
	app := cli.NewApp()
	app.Name = "telecipher-bench-cipher"
	app.Usage = "Benchmark tool for reading encryption and decryption"
	app.Version = "1.0.0"
	app.Flags = getFlags()
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "algorithm, a",
			Usage: "Cipher algorithm: des, xor",
			Value: "des",
		},
		cli.StringFlag{
			Name:   "key, k",
			Usage:  "Passphrase",
			Value:  "MySecretKey123",
			EnvVar: "TELECIPHER_KEY",
		},
		cli.StringFlag{
			Name:  "mode, m",
			Usage: "Operation to benchmark: encrypt, decrypt",
			Value: "encrypt",
		},
		cli.IntFlag{
			Name:  "readings, n",
			Usage: "Total number of readings to process",
			Value: 100000,
		},
		cli.IntFlag{
			Name:  "concurrent, c",
			Usage: "Number of concurrent worker goroutines",
			Value: 1,
		},
		cli.IntFlag{
			Name:  "cache-size",
			Usage: "Key schedule cache size, 0 disables the cache",
			Value: encryption.DefaultCacheSize,
		},
		cli.Int64Flag{
			Name:  "seed",
			Usage: "Seed for generated readings",
			Value: 1,
		},
		cli.StringFlag{
			Name:  "output, o",
			Usage: "Output format: text, json",
			Value: "text",
		},
	}
}

func run(c *cli.Context) error {
	algorithm := c.String("algorithm")
	passphrase := c.String("key")
	mode := strings.ToLower(c.String("mode"))
	numReadings := c.Int("readings")
	concurrent := c.Int("concurrent")
	outputFormat := c.String("output")

	// Validate
	if numReadings <= 0 {
		return fmt.Errorf("readings must be > 0")
	}
	if mode != "encrypt" && mode != "decrypt" {
		return fmt.Errorf("invalid mode: %s (use encrypt or decrypt)", mode)
	}
	if concurrent <= 0 {
		concurrent = 1
	}

	cipher, err := encryption.NewCipher(algorithm, c.Int("cache-size"))
	if err != nil {
		return err
	}

	// Pre-generate readings (NOT timed)
	fmt.Printf("Pre-generating %d readings...\n", numReadings)
	levels := common.PreGenerateReadings(numReadings, c.Int64("seed"))
	var ciphertexts []string
	if mode == "decrypt" {
		ciphertexts, err = common.PreEncryptReadings(cipher, passphrase, levels)
		if err != nil {
			return fmt.Errorf("failed to prepare ciphertexts: %w", err)
		}
	}

	stats := common.NewStats()

	fmt.Printf("Starting %s %s benchmark with %d worker(s)...\n", cipher.Name(), mode, concurrent)
	fmt.Println("---")

	stats.Start()
	runBenchmark(cipher, passphrase, levels, ciphertexts, concurrent, stats)
	stats.Stop()

	common.PrintResults(fmt.Sprintf("%s %s", cipher.Name(), strings.ToUpper(mode[:1])+mode[1:]), stats, outputFormat)
	return nil
}

func runBenchmark(
	cipher encryption.Cipher,
	passphrase string,
	levels []float64,
	ciphertexts []string,
	concurrent int,
	stats *common.Stats,
) {
	var (
		wg        sync.WaitGroup
		processed int64
		total     = len(levels)
	)

	progressTicker := time.NewTicker(2 * time.Second)
	defer progressTicker.Stop()

	// Progress reporter
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-progressTicker.C:
				count := atomic.LoadInt64(&processed)
				pct := float64(count) / float64(total) * 100
				fmt.Printf("Progress: %d/%d (%.1f%%)\n", count, total, pct)
			case <-done:
				return
			}
		}
	}()

	for _, bounds := range common.Split(total, concurrent) {
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				var (
					n   int
					err error
				)
				begin := time.Now()
				if ciphertexts != nil {
					var plaintext string
					plaintext, err = cipher.Decrypt(ciphertexts[i], passphrase)
					n = len(plaintext)
				} else {
					var ct string
					ct, err = cipher.Encrypt(telemetry.FormatLevel(levels[i]), passphrase)
					n = len(ct)
				}
				latency := time.Since(begin)

				if err != nil {
					stats.RecordError()
					continue
				}
				stats.RecordLatency(latency)
				stats.RecordOperation(n)
				atomic.AddInt64(&processed, 1)
			}
		}(bounds[0], bounds[1])
	}

	wg.Wait()
	close(done)
}
