package des

// feistel is the round function: expand r to 48 bits, mix in the round key,
// substitute each 6-bit group through its S-box and permute the result.
func feistel(r uint32, roundKey uint64) uint32 {
	x := Permute(uint64(r), 32, expansion) ^ roundKey

	var out uint64
	for i := 0; i < len(sBoxes); i++ {
		b := (x >> uint(42-6*i)) & 0x3f
		row := ((b & 0x20) >> 4) | (b & 0x01)
		col := (b & 0x1e) >> 1
		out |= uint64(sBoxes[i][row*16+col]) << uint(28-4*i)
	}

	return uint32(Permute(out, 32, permutation))
}
