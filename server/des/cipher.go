// Package des implements the classical Data Encryption Standard block cipher
// with a 56-bit effective key. It exists to interoperate with devices that
// obscure telemetry with DES and offers no protection against a capable
// attacker.
package des

import (
	"crypto/cipher"
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	// BlockSize is the DES block size in bytes.
	BlockSize = 8

	// KeySize is the DES key size in bytes, parity bits included.
	KeySize = 8

	// Rounds is the number of Feistel rounds.
	Rounds = 16
)

var (
	// ErrInvalidKeySize is returned when a key is not exactly KeySize bytes.
	ErrInvalidKeySize = errors.New("des: invalid key size")

	// ErrInvalidBlockLength is returned when data handed to the ECB helpers
	// is not a whole number of blocks.
	ErrInvalidBlockLength = errors.New("des: input not a multiple of the block size")
)

// Cipher is a DES instance bound to one key schedule. It implements
// crypto/cipher.Block.
type Cipher struct {
	schedule *Schedule
}

var _ cipher.Block = (*Cipher)(nil)

// NewCipher creates a Cipher for the given 8-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	s, err := NewSchedule(key)
	if err != nil {
		return nil, err
	}
	return &Cipher{schedule: s}, nil
}

// NewCipherWithSchedule creates a Cipher from an already derived schedule.
func NewCipherWithSchedule(s *Schedule) *Cipher {
	return &Cipher{schedule: s}
}

// BlockSize returns the DES block size.
func (c *Cipher) BlockSize() int { return BlockSize }

// Encrypt encrypts the first block of src into dst. dst and src may overlap
// entirely.
func (c *Cipher) Encrypt(dst, src []byte) { c.crypt(dst, src, false) }

// Decrypt decrypts the first block of src into dst. dst and src may overlap
// entirely.
func (c *Cipher) Decrypt(dst, src []byte) { c.crypt(dst, src, true) }

// EncryptBlocks encrypts every block of src independently (ECB) and returns
// the ciphertext in a new slice.
func (c *Cipher) EncryptBlocks(src []byte) ([]byte, error) {
	return c.cryptBlocks(src, false)
}

// DecryptBlocks decrypts every block of src independently (ECB) and returns
// the plaintext in a new slice.
func (c *Cipher) DecryptBlocks(src []byte) ([]byte, error) {
	return c.cryptBlocks(src, true)
}

func (c *Cipher) cryptBlocks(src []byte, decrypt bool) ([]byte, error) {
	if len(src)%BlockSize != 0 {
		return nil, errors.Wrapf(ErrInvalidBlockLength, "got %d bytes", len(src))
	}
	dst := make([]byte, len(src))
	for i := 0; i < len(src); i += BlockSize {
		c.crypt(dst[i:i+BlockSize], src[i:i+BlockSize], decrypt)
	}
	return dst, nil
}

func (c *Cipher) crypt(dst, src []byte, decrypt bool) {
	if len(src) < BlockSize {
		panic("des: input not full block")
	}
	if len(dst) < BlockSize {
		panic("des: output not full block")
	}

	b := Permute(binary.BigEndian.Uint64(src), 64, initialPermutation)
	l, r := uint32(b>>32), uint32(b)

	for i := 0; i < Rounds; i++ {
		k := c.schedule.keys[i]
		if decrypt {
			k = c.schedule.keys[Rounds-1-i]
		}
		l, r = r, l^feistel(r, k)
	}

	// The halves are not swapped back after the last round.
	preoutput := uint64(r)<<32 | uint64(l)
	binary.BigEndian.PutUint64(dst, Permute(preoutput, 64, finalPermutation))
}
