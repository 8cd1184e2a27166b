package encryption

import (
	"unicode/utf8"

	"github.com/liftbridge-io/telecipher/server/codec"
)

// XOR is the fallback cipher used by devices whose DES self-test fails. Each
// plaintext byte is XORed with the passphrase byte at the same position,
// repeating the passphrase as needed.
type XOR struct{}

var _ Cipher = XOR{}

// Name returns AlgorithmXOR.
func (XOR) Name() string {
	return AlgorithmXOR
}

// Encrypt returns the XORed bytes of plaintext as uppercase hex.
func (XOR) Encrypt(plaintext, passphrase string) (string, error) {
	out, err := xorBytes([]byte(plaintext), passphrase)
	if err != nil {
		return "", err
	}
	return codec.ToHex(out), nil
}

// Decrypt reverses Encrypt.
func (XOR) Decrypt(ciphertext, passphrase string) (string, error) {
	data, err := codec.FromHex(ciphertext)
	if err != nil {
		return "", err
	}
	out, err := xorBytes(data, passphrase)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(out) {
		return "", ErrInvalidText
	}
	return string(out), nil
}

func xorBytes(data []byte, passphrase string) ([]byte, error) {
	key := []byte(passphrase)
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out, nil
}
