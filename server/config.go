package server

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/liftbridge-io/telecipher/server/encryption"
	"github.com/liftbridge-io/telecipher/server/telemetry"
)

const (
	// DefaultHealthListen is the address the gRPC health service binds to if
	// one is not specified.
	DefaultHealthListen = "0.0.0.0:9393"

	// DefaultEmbeddedNATSPort is the port used by the embedded NATS server if
	// one is not specified.
	DefaultEmbeddedNATSPort = 4222
)

const defaultDataDir = "./data"

// knownKeys lists every setting a config file may contain.
var knownKeys = map[string]struct{}{
	"log.level":                {},
	"log.silent":               {},
	"log.nats":                 {},
	"data.dir":                 {},
	"cipher.algorithm":         {},
	"cipher.passphrase":        {},
	"cipher.sealed.passphrase": {},
	"cipher.cache.size":        {},
	"telemetry.subject":        {},
	"telemetry.interval":       {},
	"telemetry.backlog":        {},
	"nats.servers":             {},
	"nats.user":                {},
	"nats.password":            {},
	"nats.embedded.enabled":    {},
	"nats.embedded.port":       {},
	"health.listen":            {},
	"authz.policy":             {},
}

// CipherConfig contains settings for the string cipher.
type CipherConfig struct {
	Algorithm        string
	Passphrase       string
	SealedPassphrase string
	CacheSize        int
}

// TelemetryConfig contains settings for the reading uplink.
type TelemetryConfig struct {
	Subject  string
	Interval time.Duration
	Backlog  int
}

// Config contains all settings for the telemetry receiver and uplink.
type Config struct {
	LogLevel         uint32
	LogSilent        bool
	LogNATS          bool
	DataDir          string
	HealthListen     string
	AuthzPolicy      string
	EmbeddedNATS     bool
	EmbeddedNATSPort int
	NATS             nats.Options
	Cipher           CipherConfig
	Telemetry        TelemetryConfig
}

// NewDefaultConfig creates a new Config with default settings.
func NewDefaultConfig() *Config {
	config := &Config{
		NATS:             nats.GetDefaultOptions(),
		DataDir:          defaultDataDir,
		HealthListen:     DefaultHealthListen,
		EmbeddedNATSPort: DefaultEmbeddedNATSPort,
	}
	config.LogLevel = uint32(log.InfoLevel)
	config.Cipher.Algorithm = encryption.AlgorithmDES
	config.Cipher.CacheSize = encryption.DefaultCacheSize
	config.Telemetry.Subject = telemetry.DefaultSubject
	config.Telemetry.Interval = telemetry.DefaultInterval
	config.Telemetry.Backlog = telemetry.DefaultBacklog
	return config
}

// GetLogLevel converts the level string to its corresponding int value. It
// returns an error if the level is invalid.
func GetLogLevel(level string) (uint32, error) {
	var l uint32
	switch strings.ToLower(level) {
	case "debug":
		l = uint32(log.DebugLevel)
	case "info":
		l = uint32(log.InfoLevel)
	case "warn":
		l = uint32(log.WarnLevel)
	case "error":
		l = uint32(log.ErrorLevel)
	default:
		return 0, fmt.Errorf("Invalid log.level setting %q", level)
	}
	return l, nil
}

// NewConfig creates a new Config with default settings and applies any
// settings from the given configuration file. An empty path yields the
// defaults.
func NewConfig(configFile string) (*Config, error) {
	config := NewDefaultConfig()
	if configFile == "" {
		return config, nil
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configFile)
	}

	for _, key := range v.AllKeys() {
		if _, ok := knownKeys[key]; !ok {
			return nil, fmt.Errorf("Unknown configuration setting %q", key)
		}
	}

	if v.IsSet("log.level") {
		level, err := GetLogLevel(v.GetString("log.level"))
		if err != nil {
			return nil, err
		}
		config.LogLevel = level
	}

	if v.IsSet("log.silent") {
		config.LogSilent = v.GetBool("log.silent")
	}

	if v.IsSet("log.nats") {
		config.LogNATS = v.GetBool("log.nats")
	}

	if v.IsSet("data.dir") {
		config.DataDir = v.GetString("data.dir")
	}

	if v.IsSet("health.listen") {
		listen := v.GetString("health.listen")
		if _, _, err := net.SplitHostPort(listen); err != nil {
			return nil, fmt.Errorf("Could not parse address string %q", listen)
		}
		config.HealthListen = listen
	}

	if v.IsSet("authz.policy") {
		config.AuthzPolicy = v.GetString("authz.policy")
	}

	if err := parseNATSConfig(config, v); err != nil {
		return nil, err
	}

	if err := parseCipherConfig(config, v); err != nil {
		return nil, err
	}

	if err := parseTelemetryConfig(config, v); err != nil {
		return nil, err
	}

	return config, nil
}

// Passphrase returns the configured passphrase, opening the sealed form with
// the master key when no plaintext passphrase is set.
func (c *Config) Passphrase() (string, error) {
	if c.Cipher.Passphrase != "" {
		return c.Cipher.Passphrase, nil
	}
	if c.Cipher.SealedPassphrase == "" {
		return "", encryption.ErrEmptyKey
	}
	keyHandler, err := encryption.NewLocalKeyHandler()
	if err != nil {
		return "", err
	}
	passphrase, err := keyHandler.Open(c.Cipher.SealedPassphrase)
	if err != nil {
		return "", errors.Wrap(err, "failed to open sealed passphrase")
	}
	return passphrase, nil
}

// UplinkConfig returns the uplink settings for the given passphrase.
func (c *Config) UplinkConfig(passphrase string) *telemetry.Config {
	return &telemetry.Config{
		Subject:    c.Telemetry.Subject,
		Interval:   c.Telemetry.Interval,
		Backlog:    c.Telemetry.Backlog,
		DataDir:    c.DataDir,
		Passphrase: passphrase,
	}
}

// parseNATSConfig parses the `nats` section of a config file.
func parseNATSConfig(config *Config, v *viper.Viper) error {
	if v.IsSet("nats.servers") {
		config.NATS.Servers = v.GetStringSlice("nats.servers")
	}

	if v.IsSet("nats.user") {
		config.NATS.User = v.GetString("nats.user")
	}

	if v.IsSet("nats.password") {
		config.NATS.Password = v.GetString("nats.password")
	}

	if v.IsSet("nats.embedded.enabled") {
		config.EmbeddedNATS = v.GetBool("nats.embedded.enabled")
	}

	if v.IsSet("nats.embedded.port") {
		port := v.GetInt("nats.embedded.port")
		if port <= 0 || port > 65535 {
			return fmt.Errorf("Invalid nats.embedded.port setting %d", port)
		}
		config.EmbeddedNATSPort = port
	}

	return nil
}

// parseCipherConfig parses the `cipher` section of a config file.
func parseCipherConfig(config *Config, v *viper.Viper) error {
	if v.IsSet("cipher.algorithm") {
		algorithm := strings.ToUpper(v.GetString("cipher.algorithm"))
		if algorithm != encryption.AlgorithmDES && algorithm != encryption.AlgorithmXOR {
			return errors.Wrapf(encryption.ErrUnknownAlgorithm, "cipher.algorithm %q", algorithm)
		}
		config.Cipher.Algorithm = algorithm
	}

	if v.IsSet("cipher.passphrase") {
		config.Cipher.Passphrase = v.GetString("cipher.passphrase")
	}

	if v.IsSet("cipher.sealed.passphrase") {
		config.Cipher.SealedPassphrase = v.GetString("cipher.sealed.passphrase")
	}

	if v.IsSet("cipher.cache.size") {
		config.Cipher.CacheSize = v.GetInt("cipher.cache.size")
	}

	return nil
}

// parseTelemetryConfig parses the `telemetry` section of a config file.
func parseTelemetryConfig(config *Config, v *viper.Viper) error {
	if v.IsSet("telemetry.subject") {
		config.Telemetry.Subject = v.GetString("telemetry.subject")
	}

	if v.IsSet("telemetry.interval") {
		interval, err := time.ParseDuration(v.GetString("telemetry.interval"))
		if err != nil {
			return err
		}
		config.Telemetry.Interval = interval
	}

	if v.IsSet("telemetry.backlog") {
		config.Telemetry.Backlog = v.GetInt("telemetry.backlog")
	}

	return nil
}
