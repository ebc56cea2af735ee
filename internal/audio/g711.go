package audio

import "math"

// G.711 expansion tables, indexed by the encoded byte.
var (
	ulawTable = buildTable(expandUlaw)
	alawTable = buildTable(expandAlaw)

	decodeG711Ulaw = tableDecoder(&ulawTable)
	decodeG711Alaw = tableDecoder(&alawTable)
)

func buildTable(expand func(byte) int16) [256]int16 {
	var t [256]int16
	for i := range t {
		t[i] = expand(byte(i))
	}
	return t
}

// tableDecoder returns a decoder producing one normalized sample per input byte.
func tableDecoder(table *[256]int16) func([]byte) []float32 {
	return func(data []byte) []float32 {
		out := make([]float32, len(data))
		for i, b := range data {
			out[i] = float32(table[b]) / math.MaxInt16
		}
		return out
	}
}

// expandUlaw follows ITU-T G.711 with the 0x84 bias.
func expandUlaw(code byte) int16 {
	const bias = 0x84
	code = ^code
	seg := (code >> 4) & 0x07
	mag := (int16(code&0x0F)<<3 + bias) << seg
	mag -= bias
	if code&0x80 != 0 {
		return -mag
	}
	return mag
}

// expandAlaw follows ITU-T G.711 with even-bit inversion.
func expandAlaw(code byte) int16 {
	code ^= 0x55
	seg := (code >> 4) & 0x07
	mant := int16(code & 0x0F)
	var mag int16
	if seg == 0 {
		mag = mant<<4 + 8
	} else {
		mag = (mant<<4 + 0x108) << (seg - 1)
	}
	if code&0x80 == 0 {
		return -mag
	}
	return mag
}
