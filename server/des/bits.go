package des

import "fmt"

// Bit returns the bit at position pos of the width-bit value v. Positions are
// 1-based and counted from the most significant bit, so position 1 is the MSB
// and position width is the LSB. An out-of-range position panics.
func Bit(v uint64, width, pos int) uint64 {
	checkPosition(width, pos)
	return (v >> uint(width-pos)) & 1
}

// SetBit returns v with the bit at position pos set to the low bit of bit.
// Numbering follows Bit.
func SetBit(v uint64, width, pos int, bit uint64) uint64 {
	checkPosition(width, pos)
	mask := uint64(1) << uint(width-pos)
	if bit&1 == 1 {
		return v | mask
	}
	return v &^ mask
}

// Permute builds a value of len(table) bits where output bit i is source bit
// table[i-1].
func Permute(src uint64, srcWidth int, table []uint8) uint64 {
	width := len(table)
	var out uint64
	for i, pos := range table {
		out = SetBit(out, width, i+1, Bit(src, srcWidth, int(pos)))
	}
	return out
}

func checkPosition(width, pos int) {
	if width < 1 || width > 64 || pos < 1 || pos > width {
		panic(fmt.Sprintf("des: bit position %d out of range for %d-bit value", pos, width))
	}
}
