package encryption

import (
	"github.com/pkg/errors"

	"github.com/liftbridge-io/telecipher/server/codec"
)

var (
	// ErrEmptyKey is returned when the passphrase is empty.
	ErrEmptyKey = errors.New("empty key")

	// ErrInvalidCiphertextLength is returned when decoded ciphertext is not a
	// positive multiple of the block size.
	ErrInvalidCiphertextLength = errors.New("invalid ciphertext length")

	// ErrInvalidText is returned when decrypted bytes are not valid UTF-8.
	ErrInvalidText = errors.New("decrypted data is not valid text")

	// ErrSelfTestFailed is returned by SelfTest when the cipher does not
	// reproduce its reference values.
	ErrSelfTestFailed = errors.New("self-test failed")

	// ErrUnknownAlgorithm is returned by NewCipher for an unsupported name.
	ErrUnknownAlgorithm = errors.New("unknown cipher algorithm")

	// ErrInvalidPadding is returned when decrypted data carries a bad
	// padding length byte.
	ErrInvalidPadding = codec.ErrInvalidPadding

	// ErrMalformedHex is returned when ciphertext is not valid hex.
	ErrMalformedHex = codec.ErrMalformedHex
)
