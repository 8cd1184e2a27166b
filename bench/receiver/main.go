package main

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/urfave/cli"

	"github.com/liftbridge-io/telecipher/bench/common"
	"github.com/liftbridge-io/telecipher/server/encryption"
	"github.com/liftbridge-io/telecipher/server/telemetry"
)

func main() {
	app := cli.NewApp()
	app.Name = "telecipher-bench-receiver"
	app.Usage = "Benchmark tool for decoding telemetry readings from NATS"
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
		cli.StringSliceFlag{
			Name:   "servers, s",
			Usage:  "NATS server addresses",
			EnvVar: "NATS_SERVERS",
		},
		cli.StringFlag{
			Name:  "subject",
			Usage: "Subject readings are published on",
			Value: telemetry.DefaultSubject,
		},
		cli.StringFlag{
			Name:   "key, k",
			Usage:  "Passphrase",
			Value:  "MySecretKey123",
			EnvVar: "TELECIPHER_KEY",
		},
		cli.IntFlag{
			Name:  "expected, n",
			Usage: "Expected number of readings to decode (0 = unlimited)",
			Value: 0,
		},
		cli.DurationFlag{
			Name:  "duration, d",
			Usage: "Maximum duration to run the receiver benchmark",
			Value: 30 * time.Second,
		},
		cli.StringFlag{
			Name:  "output, o",
			Usage: "Output format: text, json",
			Value: "text",
		},
	}
}

func run(c *cli.Context) error {
	servers := common.SplitServers(c.StringSlice("servers"))
	if len(servers) == 0 {
		servers = []string{nats.DefaultURL}
	}

	subject := c.String("subject")
	expected := c.Int("expected")
	duration := c.Duration("duration")
	outputFormat := c.String("output")

	service, err := encryption.NewService(encryption.DefaultCacheSize)
	if err != nil {
		return err
	}
	decoder := telemetry.NewDecoder(c.String("key"), service, encryption.XOR{})

	fmt.Printf("Connecting to NATS: %v\n", servers)
	nc, err := nats.Connect(strings.Join(servers, ","))
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer nc.Close()

	stats := common.NewStats()

	var (
		count     int64
		closeOnce sync.Once
		done      = make(chan struct{})
	)

	fmt.Printf("Subscribing to '%s'...\n", subject)
	if expected > 0 {
		fmt.Printf("Will decode until %d readings received or %s timeout\n", expected, duration)
	} else {
		fmt.Printf("Will decode for %s\n", duration)
	}
	fmt.Println("---")

	stats.Start()

	sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
		begin := time.Now()
		_, err := decoder.Decode(m.Data)
		latency := time.Since(begin)
		if err != nil {
			stats.RecordError()
			return
		}
		stats.RecordLatency(latency)
		stats.RecordOperation(len(m.Data))

		if n := atomic.AddInt64(&count, 1); expected > 0 && n >= int64(expected) {
			closeOnce.Do(func() { close(done) })
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	// Wait for completion
	select {
	case <-done:
		fmt.Println("Received expected number of readings")
	case <-time.After(duration):
		fmt.Println("Duration timeout reached")
	}

	stats.Stop()

	common.PrintResults("Receiver", stats, outputFormat)
	return nil
}
