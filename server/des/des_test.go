package des

import (
	"bytes"
	stddes "crypto/des"
	"encoding/hex"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// Ensure Bit and SetBit number positions from the most significant bit.
func TestBitAddressing(t *testing.T) {
	v := uint64(0x8000000000000001)
	require.Equal(t, uint64(1), Bit(v, 64, 1))
	require.Equal(t, uint64(0), Bit(v, 64, 2))
	require.Equal(t, uint64(1), Bit(v, 64, 64))

	// Narrower widths count from their own MSB.
	require.Equal(t, uint64(1), Bit(0x20, 6, 1))
	require.Equal(t, uint64(0), Bit(0x20, 6, 6))

	require.Equal(t, uint64(0x80000000), SetBit(0, 32, 1, 1))
	require.Equal(t, uint64(1), SetBit(0, 32, 32, 1))
	require.Equal(t, uint64(0x7fffffff), SetBit(0xffffffff, 32, 1, 0))
	require.Equal(t, uint64(0xffffffff), SetBit(0xffffffff, 32, 5, 1))
}

// Ensure out-of-range positions are treated as programming errors.
func TestBitAddressingOutOfRange(t *testing.T) {
	require.Panics(t, func() { Bit(0, 64, 0) })
	require.Panics(t, func() { Bit(0, 64, 65) })
	require.Panics(t, func() { SetBit(0, 32, 33, 1) })
	require.Panics(t, func() { Bit(0, 65, 1) })
}

// Ensure Permute output width follows the table and bits are routed by
// 1-based source positions.
func TestPermute(t *testing.T) {
	identity := make([]uint8, 64)
	for i := range identity {
		identity[i] = uint8(i + 1)
	}
	require.Equal(t, uint64(0x0123456789abcdef), Permute(0x0123456789abcdef, 64, identity))

	reverse := []uint8{4, 3, 2, 1}
	require.Equal(t, uint64(0x1), Permute(0x8, 4, reverse))
	require.Equal(t, uint64(0xc), Permute(0x3, 4, reverse))

	// Selecting a single source bit yields a 1-bit value.
	require.Equal(t, uint64(1), Permute(0x4, 4, []uint8{2}))

	// The final permutation undoes the initial permutation.
	v := uint64(0xdeadbeefcafebabe)
	require.Equal(t, v, Permute(Permute(v, 64, initialPermutation), 64, finalPermutation))
}

// Ensure every table entry references a valid source position.
func TestTablesWellFormed(t *testing.T) {
	tables := []struct {
		name     string
		table    []uint8
		srcWidth int
		outWidth int
	}{
		{"initial", initialPermutation, 64, 64},
		{"final", finalPermutation, 64, 64},
		{"expansion", expansion, 32, 48},
		{"permutation", permutation, 32, 32},
		{"pc1", permutedChoice1, 64, 56},
		{"pc2", permutedChoice2, 56, 48},
	}
	for _, tc := range tables {
		t.Run(tc.name, func(t *testing.T) {
			require.Len(t, tc.table, tc.outWidth)
			for _, pos := range tc.table {
				require.True(t, pos >= 1 && int(pos) <= tc.srcWidth)
			}
		})
	}

	for i, box := range sBoxes {
		for row := 0; row < 4; row++ {
			seen := make(map[uint8]bool)
			for col := 0; col < 16; col++ {
				seen[box[row*16+col]] = true
			}
			require.Len(t, seen, 16, "S%d row %d is not a permutation of 0..15", i+1, row)
		}
	}
}

// Ensure the key schedule produces the published round keys.
func TestKeySchedule(t *testing.T) {
	s, err := NewSchedule(mustHex(t, "133457799BBCDFF1"))
	require.NoError(t, err)
	require.Equal(t, uint64(0x1b02effc7072), s.RoundKey(1))
	require.Equal(t, uint64(0xcb3d8b0e17f5), s.RoundKey(16))

	keys := s.RoundKeys()
	require.Len(t, keys, Rounds)
	for _, k := range keys {
		require.Zero(t, k>>48)
	}

	// RoundKeys hands out a copy.
	keys[0] = 0
	require.Equal(t, uint64(0x1b02effc7072), s.RoundKey(1))

	require.Panics(t, func() { s.RoundKey(0) })
	require.Panics(t, func() { s.RoundKey(17) })
}

// Ensure keys of the wrong size are rejected.
func TestKeyScheduleInvalidKey(t *testing.T) {
	for _, n := range []int{0, 7, 9, 16} {
		_, err := NewSchedule(make([]byte, n))
		require.Error(t, err)
		require.Equal(t, ErrInvalidKeySize, errors.Cause(err))
	}
}

// Ensure the rotation amounts wrap within 28 bits.
func TestRotate28(t *testing.T) {
	require.Equal(t, uint32(1), rotate28(1<<27, 1))
	require.Equal(t, uint32(3), rotate28(3<<26, 2))
	require.Equal(t, uint32(mask28), rotate28(mask28, 2))
}

// Ensure single-block encryption matches the known-answer vectors.
func TestKnownAnswer(t *testing.T) {
	vectors := []struct {
		key, plain, cipher string
	}{
		{"133457799BBCDFF1", "0123456789ABCDEF", "85E813540F0AB405"},
		{"0000000000000000", "0000000000000000", "8CA64DE9C1B123A7"},
		{"4D79536563726574", "31322E3504040404", "1A5A145757E16537"},
	}
	for _, v := range vectors {
		t.Run(v.key, func(t *testing.T) {
			c, err := NewCipher(mustHex(t, v.key))
			require.NoError(t, err)

			out := make([]byte, BlockSize)
			c.Encrypt(out, mustHex(t, v.plain))
			require.Equal(t, mustHex(t, v.cipher), out)

			c.Decrypt(out, out)
			require.Equal(t, mustHex(t, v.plain), out)
		})
	}
}

// Ensure the implementation agrees with the standard library for random
// keys and blocks.
func TestMatchesStandardLibrary(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	key := make([]byte, KeySize)
	block := make([]byte, BlockSize)
	for i := 0; i < 200; i++ {
		rng.Read(key)
		rng.Read(block)

		ours, err := NewCipher(key)
		require.NoError(t, err)
		ref, err := stddes.NewCipher(key)
		require.NoError(t, err)

		got := make([]byte, BlockSize)
		want := make([]byte, BlockSize)
		ours.Encrypt(got, block)
		ref.Encrypt(want, block)
		require.Equal(t, want, got)

		ours.Decrypt(got, got)
		require.Equal(t, block, got)
	}
}

// Ensure ECB helpers encrypt blocks independently.
func TestECBBlocks(t *testing.T) {
	c, err := NewCipher([]byte("ABABABAB"))
	require.NoError(t, err)

	plain := bytes.Repeat([]byte("repeated"), 3)
	ct, err := c.EncryptBlocks(plain)
	require.NoError(t, err)
	require.Len(t, ct, len(plain))
	require.Equal(t, ct[0:8], ct[8:16])
	require.Equal(t, ct[8:16], ct[16:24])

	pt, err := c.DecryptBlocks(ct)
	require.NoError(t, err)
	require.Equal(t, plain, pt)

	_, err = c.EncryptBlocks(make([]byte, 12))
	require.Equal(t, ErrInvalidBlockLength, errors.Cause(err))

	empty, err := c.DecryptBlocks(nil)
	require.NoError(t, err)
	require.Empty(t, empty)
}

// Ensure short buffers panic like the standard library block ciphers.
func TestShortBlockPanics(t *testing.T) {
	c, err := NewCipher(make([]byte, KeySize))
	require.NoError(t, err)
	require.Equal(t, BlockSize, c.BlockSize())
	require.Panics(t, func() { c.Encrypt(make([]byte, 8), make([]byte, 7)) })
	require.Panics(t, func() { c.Decrypt(make([]byte, 7), make([]byte, 8)) })
}

// Ensure a shared schedule yields the same cipher as deriving it again.
func TestCipherWithSchedule(t *testing.T) {
	key := []byte("MySecret")
	s, err := NewSchedule(key)
	require.NoError(t, err)

	a := NewCipherWithSchedule(s)
	b, err := NewCipher(key)
	require.NoError(t, err)

	src := []byte("12.5\x04\x04\x04\x04")
	outA := make([]byte, BlockSize)
	outB := make([]byte, BlockSize)
	a.Encrypt(outA, src)
	b.Encrypt(outB, src)
	require.Equal(t, outB, outA)
}

func BenchmarkEncrypt(b *testing.B) {
	c, err := NewCipher([]byte("MySecret"))
	if err != nil {
		b.Fatal(err)
	}
	src := []byte("12.5\x04\x04\x04\x04")
	dst := make([]byte, BlockSize)
	b.SetBytes(BlockSize)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Encrypt(dst, src)
	}
}
