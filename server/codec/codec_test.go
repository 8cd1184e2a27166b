package codec

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// Ensure padding always lands on a block boundary and aligned input gets a
// whole extra block.
func TestAddPadding(t *testing.T) {
	for n := 0; n <= 24; n++ {
		data := bytes.Repeat([]byte{'x'}, n)
		padded := AddPadding(data)
		require.Zero(t, len(padded)%BlockSize)

		pad := BlockSize - n%BlockSize
		require.Len(t, padded, n+pad)
		require.Equal(t, bytes.Repeat([]byte{byte(pad)}, pad), padded[n:])
	}

	require.Equal(t, []byte("12.5\x04\x04\x04\x04"), AddPadding([]byte("12.5")))
	require.Equal(t, append([]byte("ABCDEFGH"), bytes.Repeat([]byte{8}, 8)...), AddPadding([]byte("ABCDEFGH")))
}

// Ensure AddPadding leaves its input untouched.
func TestAddPaddingDoesNotAlias(t *testing.T) {
	data := make([]byte, 4, 16)
	copy(data, "12.5")
	AddPadding(data)
	require.Equal(t, []byte{0, 0, 0, 0}, data[4:8])
}

// Ensure RemovePadding undoes AddPadding.
func TestPaddingRoundTrip(t *testing.T) {
	inputs := [][]byte{
		{},
		[]byte("a"),
		[]byte("12.5"),
		[]byte("exactly8"),
		[]byte("more than one block of data"),
		{0x00, 0x08, 0x01},
	}
	for _, in := range inputs {
		out, err := RemovePadding(AddPadding(in))
		require.NoError(t, err)
		require.Equal(t, in, out)
	}
}

// Ensure invalid length bytes are rejected and only the length byte is checked.
func TestRemovePadding(t *testing.T) {
	out, err := RemovePadding(nil)
	require.NoError(t, err)
	require.Empty(t, out)

	for _, last := range []byte{0, 9, 0xff} {
		_, err := RemovePadding([]byte{'a', 'b', 'c', 'd', 'e', 'f', 'g', last})
		require.Error(t, err)
		require.Equal(t, ErrInvalidPadding, errors.Cause(err))
	}

	_, err = RemovePadding([]byte{'a', 3})
	require.Equal(t, ErrInvalidPadding, errors.Cause(err))

	// Inner padding bytes are not validated.
	out, err = RemovePadding([]byte{'a', 'b', 'c', 'd', 'e', 9, 9, 3})
	require.NoError(t, err)
	require.Equal(t, []byte("abcde"), out)
}

func TestHex(t *testing.T) {
	require.Equal(t, "", ToHex(nil))
	require.Equal(t, "00FF0A", ToHex([]byte{0x00, 0xff, 0x0a}))
	require.Equal(t, "85E813540F0AB405", ToHex([]byte{0x85, 0xe8, 0x13, 0x54, 0x0f, 0x0a, 0xb4, 0x05}))

	b, err := FromHex("00FF0a")
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0xff, 0x0a}, b)

	b, err = FromHex("")
	require.NoError(t, err)
	require.Empty(t, b)
}

func TestFromHexMalformed(t *testing.T) {
	for _, s := range []string{"A", "ABC", "GG", "0x12", "12 4"} {
		_, err := FromHex(s)
		require.Error(t, err, s)
		require.Equal(t, ErrMalformedHex, errors.Cause(err), s)
	}
}
