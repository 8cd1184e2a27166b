package encryption

import (
	"bytes"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/liftbridge-io/telecipher/server/codec"
	"github.com/liftbridge-io/telecipher/server/des"
)

const (
	// AlgorithmDES names the DES-ECB string cipher.
	AlgorithmDES = "DES"

	// AlgorithmXOR names the repeating-key XOR fallback cipher.
	AlgorithmXOR = "XOR"

	// DefaultCacheSize is the default number of key schedules kept by a
	// Service.
	DefaultCacheSize = 64
)

// Reference values checked by SelfTest.
const (
	selfTestPlaintext  = "12.5"
	selfTestPassphrase = "MySecretKey123"
)

var (
	knownAnswerKey    = []byte{0x13, 0x34, 0x57, 0x79, 0x9b, 0xbc, 0xdf, 0xf1}
	knownAnswerPlain  = []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}
	knownAnswerCipher = []byte{0x85, 0xe8, 0x13, 0x54, 0x0f, 0x0a, 0xb4, 0x05}
)

// Cipher is a string-in/string-out cipher keyed by a passphrase. Ciphertext
// is uppercase hex.
type Cipher interface {
	Encrypt(plaintext, passphrase string) (string, error)
	Decrypt(ciphertext, passphrase string) (string, error)
	Name() string
}

// NewCipher returns the cipher registered under algorithm, matched
// case-insensitively. cacheSize only applies to DES.
func NewCipher(algorithm string, cacheSize int) (Cipher, error) {
	switch strings.ToUpper(algorithm) {
	case AlgorithmDES, "":
		return NewService(cacheSize)
	case AlgorithmXOR:
		return XOR{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownAlgorithm, "%q", algorithm)
	}
}

// Service encrypts and decrypts strings with DES in ECB mode. Key schedules
// are cached per derived key when a cache size is configured. Service is safe
// for concurrent use.
type Service struct {
	schedules *lru.Cache
}

var _ Cipher = (*Service)(nil)

// NewService creates a Service caching up to cacheSize key schedules. A
// cacheSize of zero or less disables the cache.
func NewService(cacheSize int) (*Service, error) {
	s := &Service{}
	if cacheSize > 0 {
		cache, err := lru.New(cacheSize)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create key schedule cache")
		}
		s.schedules = cache
	}
	return s, nil
}

// Name returns AlgorithmDES.
func (s *Service) Name() string {
	return AlgorithmDES
}

// DeriveKey builds an 8-byte key by repeating the passphrase bytes. Longer
// passphrases are truncated to their first 8 bytes.
func DeriveKey(passphrase string) ([]byte, error) {
	p := []byte(passphrase)
	if len(p) == 0 {
		return nil, ErrEmptyKey
	}
	key := make([]byte, des.KeySize)
	for i := range key {
		key[i] = p[i%len(p)]
	}
	return key, nil
}

// Encrypt pads the UTF-8 bytes of plaintext, encrypts each block
// independently and returns the ciphertext as uppercase hex.
func (s *Service) Encrypt(plaintext, passphrase string) (string, error) {
	c, err := s.cipherFor(passphrase)
	if err != nil {
		return "", err
	}
	ciphertext, err := c.EncryptBlocks(codec.AddPadding([]byte(plaintext)))
	if err != nil {
		return "", errors.Wrap(err, "failed to encrypt blocks")
	}
	return codec.ToHex(ciphertext), nil
}

// Decrypt reverses Encrypt.
func (s *Service) Decrypt(ciphertext, passphrase string) (string, error) {
	data, err := codec.FromHex(ciphertext)
	if err != nil {
		return "", err
	}
	if len(data) == 0 || len(data)%des.BlockSize != 0 {
		return "", errors.Wrapf(ErrInvalidCiphertextLength, "%d bytes", len(data))
	}
	c, err := s.cipherFor(passphrase)
	if err != nil {
		return "", err
	}
	padded, err := c.DecryptBlocks(data)
	if err != nil {
		return "", errors.Wrap(err, "failed to decrypt blocks")
	}
	plaintext, err := codec.RemovePadding(padded)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plaintext) {
		return "", ErrInvalidText
	}
	return string(plaintext), nil
}

// SelfTest checks the block cipher against the published known-answer vector
// and round-trips a reference reading. Devices run it before switching to DES.
func (s *Service) SelfTest() error {
	c, err := des.NewCipher(knownAnswerKey)
	if err != nil {
		return errors.Wrap(ErrSelfTestFailed, err.Error())
	}
	out := make([]byte, des.BlockSize)
	c.Encrypt(out, knownAnswerPlain)
	if !bytes.Equal(out, knownAnswerCipher) {
		return errors.Wrapf(ErrSelfTestFailed, "known answer mismatch: got %s", codec.ToHex(out))
	}

	ciphertext, err := s.Encrypt(selfTestPlaintext, selfTestPassphrase)
	if err != nil {
		return errors.Wrap(ErrSelfTestFailed, err.Error())
	}
	plaintext, err := s.Decrypt(ciphertext, selfTestPassphrase)
	if err != nil {
		return errors.Wrap(ErrSelfTestFailed, err.Error())
	}
	if plaintext != selfTestPlaintext {
		return errors.Wrapf(ErrSelfTestFailed, "round trip returned %q", plaintext)
	}
	return nil
}

func (s *Service) cipherFor(passphrase string) (*des.Cipher, error) {
	key, err := DeriveKey(passphrase)
	if err != nil {
		return nil, err
	}
	schedule, err := s.schedule(key)
	if err != nil {
		return nil, err
	}
	return des.NewCipherWithSchedule(schedule), nil
}

func (s *Service) schedule(key []byte) (*des.Schedule, error) {
	if s.schedules == nil {
		return des.NewSchedule(key)
	}
	id := string(key)
	if cached, ok := s.schedules.Get(id); ok {
		return cached.(*des.Schedule), nil
	}
	schedule, err := des.NewSchedule(key)
	if err != nil {
		return nil, err
	}
	s.schedules.Add(id, schedule)
	return schedule, nil
}

// cachedSchedules reports how many schedules are cached.
func (s *Service) cachedSchedules() int {
	if s.schedules == nil {
		return 0
	}
	return s.schedules.Len()
}
