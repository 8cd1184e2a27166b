package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/liftbridge-io/telecipher/server"
	"github.com/liftbridge-io/telecipher/server/encryption"
	"github.com/liftbridge-io/telecipher/server/logger"
	"github.com/liftbridge-io/telecipher/server/telemetry"
)

// stdin is the reading source for the uplink command.
var stdin io.Reader = os.Stdin

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "telecipher"
	app.Usage = "Encrypted level telemetry over NATS"
	app.Version = server.Version
	app.Writer = out
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "load configuration from `FILE`",
		},
		cli.StringFlag{
			Name:  "level, l",
			Usage: "logging level [debug|info|warn|error]",
		},
	}
	keyFlag := cli.StringFlag{
		Name:   "key, k",
		Usage:  "passphrase, overrides the configured one",
		EnvVar: "TELECIPHER_KEY",
	}
	algorithmFlag := cli.StringFlag{
		Name:  "algorithm, a",
		Usage: "cipher algorithm [des|xor], overrides the configured one",
	}
	natsFlag := cli.StringSliceFlag{
		Name:  "nats-servers, n",
		Usage: "connect to NATS server(s) at `ADDR`",
	}
	app.Commands = []cli.Command{
		{
			Name:      "encrypt",
			Usage:     "encrypt TEXT and print the hex ciphertext",
			ArgsUsage: "TEXT",
			Flags:     []cli.Flag{keyFlag, algorithmFlag},
			Action:    encryptAction,
		},
		{
			Name:      "decrypt",
			Usage:     "decrypt a hex ciphertext and print the text",
			ArgsUsage: "HEX",
			Flags:     []cli.Flag{keyFlag, algorithmFlag},
			Action:    decryptAction,
		},
		{
			Name:   "selftest",
			Usage:  "check the DES implementation against known answers",
			Action: selfTestAction,
		},
		{
			Name:      "seal",
			Usage:     "seal a passphrase with the master key in " + encryption.MasterKeyVarName,
			ArgsUsage: "PASSPHRASE",
			Action:    sealAction,
		},
		{
			Name:  "serve",
			Usage: "run the telemetry receiver",
			Flags: []cli.Flag{
				keyFlag,
				natsFlag,
				cli.BoolFlag{
					Name:  "embedded-nats, e",
					Usage: "run an embedded NATS server",
				},
				cli.StringFlag{
					Name:  "health-listen",
					Usage: "serve gRPC health checks on `ADDR`",
				},
			},
			Action: serveAction,
		},
		{
			Name:  "uplink",
			Usage: "publish readings from stdin, one level per line",
			Flags: []cli.Flag{
				keyFlag,
				algorithmFlag,
				natsFlag,
				cli.DurationFlag{
					Name:  "interval, i",
					Usage: "sampling interval, overrides the configured one",
				},
			},
			Action: uplinkAction,
		},
	}
	return app
}

func loadConfig(c *cli.Context) (*server.Config, error) {
	config, err := server.NewConfig(c.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	if c.GlobalIsSet("level") {
		level, err := server.GetLogLevel(c.GlobalString("level"))
		if err != nil {
			return nil, err
		}
		config.LogLevel = level
	}
	if c.IsSet("key") {
		config.Cipher.Passphrase = c.String("key")
	}
	if c.IsSet("algorithm") {
		config.Cipher.Algorithm = c.String("algorithm")
	}
	if c.IsSet("nats-servers") {
		servers, err := normalizeNatsServers(c.StringSlice("nats-servers"))
		if err != nil {
			return nil, err
		}
		config.NATS.Servers = servers
	}
	return config, nil
}

func singleArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", errors.Errorf("expected exactly one %s argument", name)
	}
	return c.Args().First(), nil
}

func cipherFromConfig(config *server.Config) (encryption.Cipher, string, error) {
	passphrase, err := config.Passphrase()
	if err != nil {
		return nil, "", err
	}
	c, err := encryption.NewCipher(config.Cipher.Algorithm, config.Cipher.CacheSize)
	if err != nil {
		return nil, "", err
	}
	return c, passphrase, nil
}

func encryptAction(c *cli.Context) error {
	text, err := singleArg(c, "TEXT")
	if err != nil {
		return err
	}
	config, err := loadConfig(c)
	if err != nil {
		return err
	}
	cipher, passphrase, err := cipherFromConfig(config)
	if err != nil {
		return err
	}
	ciphertext, err := cipher.Encrypt(text, passphrase)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, ciphertext)
	return nil
}

func decryptAction(c *cli.Context) error {
	ciphertext, err := singleArg(c, "HEX")
	if err != nil {
		return err
	}
	config, err := loadConfig(c)
	if err != nil {
		return err
	}
	cipher, passphrase, err := cipherFromConfig(config)
	if err != nil {
		return err
	}
	text, err := cipher.Decrypt(ciphertext, passphrase)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, text)
	return nil
}

func selfTestAction(c *cli.Context) error {
	service, err := encryption.NewService(0)
	if err != nil {
		return err
	}
	if err := service.SelfTest(); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	fmt.Fprintf(c.App.Writer, "%s self-test passed\n", service.Name())
	return nil
}

func sealAction(c *cli.Context) error {
	passphrase, err := singleArg(c, "PASSPHRASE")
	if err != nil {
		return err
	}
	keyHandler, err := encryption.NewLocalKeyHandler()
	if err != nil {
		return err
	}
	sealed, err := keyHandler.Seal(passphrase)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, sealed)
	return nil
}

func serveAction(c *cli.Context) error {
	config, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("embedded-nats") {
		config.EmbeddedNATS = c.Bool("embedded-nats")
	}
	if c.IsSet("health-listen") {
		config.HealthListen = c.String("health-listen")
	}

	s := server.New(config)
	if err := s.Start(); err != nil {
		return err
	}
	runtime.Goexit()
	return nil
}

func uplinkAction(c *cli.Context) error {
	config, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("interval") {
		config.Telemetry.Interval = c.Duration("interval")
	}

	log := logger.NewLogger(config.LogLevel)
	log.Prefix("uplink: ")
	if config.LogSilent {
		log.Silent(true)
	}

	cipher, passphrase, err := cipherFromConfig(config)
	if err != nil {
		return err
	}

	opts := config.NATS
	opts.Name = "telecipher-uplink"
	opts.MaxReconnect = -1
	nc, err := opts.Connect()
	if err != nil {
		return errors.Wrap(err, "failed to connect to NATS")
	}
	defer nc.Close()

	encoder := telemetry.NewEncoder(cipher, passphrase, log)
	uplink, err := telemetry.NewUplink(config.UplinkConfig(passphrase), nc, encoder,
		telemetry.NewLineSampler(stdin), log)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	uplink.Start()
	select {
	case <-uplink.Done():
	case <-sigCh:
	}
	uplink.Stop()

	if err := nc.Flush(); err != nil {
		return errors.Wrap(err, "failed to flush readings")
	}
	if pending := uplink.Pending(); pending > 0 {
		return cli.NewExitError(fmt.Sprintf("%d readings were not delivered", pending), 1)
	}
	return nil
}

// normalizeNatsServers splits comma-separated lists given to repeated
// --nats-servers flags and trims the entries.
func normalizeNatsServers(servers []string) ([]string, error) {
	var result []string
	for _, s := range servers {
		for _, part := range strings.Split(s, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if _, err := url.Parse(trimmed); err != nil {
				return nil, errors.Wrapf(err, "invalid NATS server %q", trimmed)
			}
			result = append(result, trimmed)
		}
	}
	return result, nil
}
