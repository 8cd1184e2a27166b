package des

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const mask28 = 1<<28 - 1

// Schedule holds the 16 round keys derived from a single 8-byte key. Each
// round key occupies the low 48 bits of a uint64. A Schedule is immutable
// once built and can be shared between goroutines.
type Schedule struct {
	keys [Rounds]uint64
}

// NewSchedule derives the round keys for key, which must be exactly KeySize
// bytes long.
func NewSchedule(key []byte) (*Schedule, error) {
	if len(key) != KeySize {
		return nil, errors.Wrapf(ErrInvalidKeySize, "got %d bytes", len(key))
	}

	cd := Permute(binary.BigEndian.Uint64(key), 64, permutedChoice1)
	c := uint32(cd>>28) & mask28
	d := uint32(cd) & mask28

	s := &Schedule{}
	for round := 0; round < Rounds; round++ {
		c = rotate28(c, rotations[round])
		d = rotate28(d, rotations[round])
		s.keys[round] = Permute(uint64(c)<<28|uint64(d), 56, permutedChoice2)
	}
	return s, nil
}

// RoundKey returns the 48-bit key for the given round, numbered 1 through 16.
func (s *Schedule) RoundKey(round int) uint64 {
	if round < 1 || round > Rounds {
		panic("des: round out of range")
	}
	return s.keys[round-1]
}

// RoundKeys returns a copy of all round keys in round order.
func (s *Schedule) RoundKeys() []uint64 {
	keys := make([]uint64, Rounds)
	copy(keys, s.keys[:])
	return keys
}

func rotate28(v uint32, n uint) uint32 {
	v &= mask28
	return (v<<n | v>>(28-n)) & mask28
}
