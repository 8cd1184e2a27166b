// Package telemetry carries encrypted level readings from devices to the
// receiving service. Readings travel as JSON payloads whose encrypted_level
// field holds the hex ciphertext.
package telemetry

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nuid"
	"github.com/pkg/errors"

	"github.com/liftbridge-io/telecipher/server/encryption"
	"github.com/liftbridge-io/telecipher/server/logger"
)

const (
	// DefaultSubject is the NATS subject readings are published on.
	DefaultSubject = "telemetry.level"

	// DefaultInterval is the sampling interval.
	DefaultInterval = 5 * time.Second

	// DefaultBacklog is the number of unpublished readings kept for retry.
	DefaultBacklog = 128

	timestampFormat = "2006-01-02T15:04:05Z"
)

var (
	// ErrInvalidPayload is returned when a message is not a telemetry
	// payload.
	ErrInvalidPayload = errors.New("invalid telemetry payload")

	// ErrInvalidReading is returned when a decrypted level is not a number.
	ErrInvalidReading = errors.New("invalid level reading")
)

// Config holds uplink configuration.
type Config struct {
	Subject    string
	Interval   time.Duration
	Backlog    int
	DataDir    string
	Passphrase string
}

// DefaultConfig returns the default uplink configuration.
func DefaultConfig() *Config {
	return &Config{
		Subject:  DefaultSubject,
		Interval: DefaultInterval,
		Backlog:  DefaultBacklog,
		DataDir:  "./data",
	}
}

// Payload is the message published for each reading.
type Payload struct {
	ID             string `json:"id"`
	InstanceID     string `json:"instance_id,omitempty"`
	Algorithm      string `json:"algorithm,omitempty"`
	EncryptedLevel string `json:"encrypted_level"`
	Timestamp      string `json:"timestamp"`
}

// FormatLevel renders a level with one decimal place, the plaintext form
// devices encrypt.
func FormatLevel(level float64) string {
	return strconv.FormatFloat(level, 'f', 1, 64)
}

type selfTester interface {
	SelfTest() error
}

// Encoder encrypts readings into payloads.
type Encoder struct {
	cipher     encryption.Cipher
	passphrase string
}

// NewEncoder returns an Encoder for c. A cipher that fails its self-test is
// replaced by the XOR fallback.
func NewEncoder(c encryption.Cipher, passphrase string, log logger.Logger) *Encoder {
	if st, ok := c.(selfTester); ok {
		if err := st.SelfTest(); err != nil {
			log.Warnf("%s self-test failed, falling back to %s: %v",
				c.Name(), encryption.AlgorithmXOR, err)
			c = encryption.XOR{}
		} else {
			log.Debugf("%s self-test passed", c.Name())
		}
	}
	return &Encoder{cipher: c, passphrase: passphrase}
}

// Algorithm returns the name of the cipher in use.
func (e *Encoder) Algorithm() string {
	return e.cipher.Name()
}

// Encode encrypts level and wraps it in a Payload.
func (e *Encoder) Encode(level float64) (*Payload, error) {
	ciphertext, err := e.cipher.Encrypt(FormatLevel(level), e.passphrase)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encrypt reading")
	}
	return &Payload{
		ID:             nuid.Next(),
		Algorithm:      e.cipher.Name(),
		EncryptedLevel: ciphertext,
		Timestamp:      time.Now().UTC().Format(timestampFormat),
	}, nil
}

// Reading is a decoded payload.
type Reading struct {
	Payload *Payload
	Level   string
	Value   float64
}

// Decoder turns payloads back into readings. Payloads without an algorithm
// are treated as DES, which is what devices send by default.
type Decoder struct {
	passphrase string
	ciphers    map[string]encryption.Cipher
}

// NewDecoder returns a Decoder accepting the given ciphers.
func NewDecoder(passphrase string, ciphers ...encryption.Cipher) *Decoder {
	d := &Decoder{
		passphrase: passphrase,
		ciphers:    make(map[string]encryption.Cipher, len(ciphers)),
	}
	for _, c := range ciphers {
		d.ciphers[strings.ToUpper(c.Name())] = c
	}
	return d
}

// Decode parses and decrypts a JSON payload.
func (d *Decoder) Decode(data []byte) (*Reading, error) {
	payload := &Payload{}
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, errors.Wrap(ErrInvalidPayload, err.Error())
	}
	if payload.EncryptedLevel == "" {
		return nil, errors.Wrap(ErrInvalidPayload, "missing encrypted_level")
	}

	algorithm := strings.ToUpper(payload.Algorithm)
	if algorithm == "" {
		algorithm = encryption.AlgorithmDES
	}
	c, ok := d.ciphers[algorithm]
	if !ok {
		return nil, errors.Wrapf(encryption.ErrUnknownAlgorithm, "%q", payload.Algorithm)
	}

	level, err := c.Decrypt(payload.EncryptedLevel, d.passphrase)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decrypt reading %s", payload.ID)
	}
	value, err := strconv.ParseFloat(level, 64)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidReading, "%q", level)
	}
	return &Reading{Payload: payload, Level: level, Value: value}, nil
}
