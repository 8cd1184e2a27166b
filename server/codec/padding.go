// Package codec frames byte sequences for the block cipher: padding to whole
// blocks and the hex text form used on the wire.
package codec

import (
	"github.com/pkg/errors"
)

// BlockSize is the block size padding aligns to.
const BlockSize = 8

// ErrInvalidPadding is returned when the trailing length byte is outside
// [1, BlockSize] or longer than the data it frames.
var ErrInvalidPadding = errors.New("invalid padding")

// AddPadding appends n bytes of value n so the result is a whole number of
// blocks. Aligned input gets a full block of padding.
func AddPadding(data []byte) []byte {
	n := BlockSize - len(data)%BlockSize
	padded := make([]byte, len(data), len(data)+n)
	copy(padded, data)
	for i := 0; i < n; i++ {
		padded = append(padded, byte(n))
	}
	return padded
}

// RemovePadding strips the padding added by AddPadding. Only the final length
// byte is validated; the remaining padding bytes are not compared against it.
// Empty input is returned unchanged.
func RemovePadding(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	n := int(data[len(data)-1])
	if n < 1 || n > BlockSize {
		return nil, errors.Wrapf(ErrInvalidPadding, "length byte %d", n)
	}
	if n > len(data) {
		return nil, errors.Wrapf(ErrInvalidPadding, "length byte %d exceeds %d bytes of data", n, len(data))
	}
	return data[:len(data)-n], nil
}
