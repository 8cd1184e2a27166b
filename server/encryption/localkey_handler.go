package encryption

import (
	"os"

	"github.com/google/tink/go/kwp/subtle"
	"github.com/pkg/errors"

	"github.com/liftbridge-io/telecipher/server/codec"
)

const (
	// MasterKeyVarName is the environment variable holding the master key
	// used to seal passphrases. It must be 16 or 32 bytes long.
	MasterKeyVarName = "TELECIPHER_MASTER_KEY"

	// minSealedSize is the smallest input the key wrapper accepts.
	minSealedSize = 16

	// maxPassphraseLength fits the one-byte length prefix.
	maxPassphraseLength = 255
)

var (
	// ErrPassphraseTooLong is returned when a passphrase cannot be framed
	// for sealing.
	ErrPassphraseTooLong = errors.New("passphrase too long to seal")

	// ErrInvalidSealedPassphrase is returned when an unwrapped value does
	// not carry a well-formed passphrase frame.
	ErrInvalidSealedPassphrase = errors.New("invalid sealed passphrase")
)

// LocalKeyHandler seals and opens passphrases with a master key loaded from
// the environment.
type LocalKeyHandler struct {
	keyWrapper *subtle.KWP
}

var _ Handler = (*LocalKeyHandler)(nil)

// NewLocalKeyHandler creates a LocalKeyHandler using the master key in
// MasterKeyVarName.
func NewLocalKeyHandler() (*LocalKeyHandler, error) {
	masterKey := []byte(os.Getenv(MasterKeyVarName))
	if len(masterKey) == 0 {
		return nil, errors.Errorf("%s is not set", MasterKeyVarName)
	}
	kwp, err := subtle.NewKWP(masterKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create key wrapper")
	}
	return &LocalKeyHandler{keyWrapper: kwp}, nil
}

// Seal wraps the passphrase with the master key and returns it as hex.
// The wrapped frame is laid out as follows, zero-filled to at least 16 bytes:
//
// |  byte 0  |   byte 1   |  ...  |   byte n   | byte n+1 ... |
// |----------|------------|-------|------------|--------------|
// |  length  | passphrase |  ...  | passphrase | zero fill    |
func (h *LocalKeyHandler) Seal(passphrase string) (string, error) {
	if len(passphrase) == 0 {
		return "", ErrEmptyKey
	}
	if len(passphrase) > maxPassphraseLength {
		return "", errors.Wrapf(ErrPassphraseTooLong, "%d bytes", len(passphrase))
	}

	size := len(passphrase) + 1
	if size < minSealedSize {
		size = minSealedSize
	}
	frame := make([]byte, size)
	frame[0] = byte(len(passphrase))
	copy(frame[1:], passphrase)

	wrapped, err := h.keyWrapper.Wrap(frame)
	if err != nil {
		return "", errors.Wrap(err, "failed to wrap passphrase")
	}
	return codec.ToHex(wrapped), nil
}

// Open reverses Seal.
func (h *LocalKeyHandler) Open(sealed string) (string, error) {
	wrapped, err := codec.FromHex(sealed)
	if err != nil {
		return "", err
	}
	frame, err := h.keyWrapper.Unwrap(wrapped)
	if err != nil {
		return "", errors.Wrap(err, "failed to unwrap passphrase")
	}
	if len(frame) < minSealedSize {
		return "", ErrInvalidSealedPassphrase
	}
	n := int(frame[0])
	if n == 0 || n+1 > len(frame) {
		return "", errors.Wrapf(ErrInvalidSealedPassphrase, "length byte %d", n)
	}
	return string(frame[1 : n+1]), nil
}
