package id3v2

import "fmt"

// Bit-padded integers carry only the low bits of every byte; the
// remaining high bits are padding and must be zero. ID3v2.3/2.4 size fields use
// bits=7 ("synchsafe") so that no 0xFF byte can appear inside a size and
// be mistaken for an MPEG frame sync. Some legacy writers used plain
// 8-bit bytes instead, which the reader auto-detects elsewhere.

// DecodeBitPadded converts b to an integer, taking bits significant bits
// from each byte. Padding bits are masked off structurally; use
// HasValidPadding to reject inputs whose padding bits are set.
func DecodeBitPadded(b []byte, bits uint, bigEndian bool) uint64 {
	mask := byte(1<<bits - 1)
	var v uint64
	if bigEndian {
		for _, c := range b {
			v = v<<bits | uint64(c&mask)
		}
		return v
	}
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<bits | uint64(b[i]&mask)
	}
	return v
}

// HasValidPadding reports whether every byte of b keeps its high
// padding bits zero.
func HasValidPadding(b []byte, bits uint) bool {
	if bits >= 8 {
		return true
	}
	mask := byte(0xFF) << bits
	for _, c := range b {
		if c&mask != 0 {
			return false
		}
	}
	return true
}

// EncodeBitPadded converts v to bytes using bits significant bits per
// byte. A fixed width left-pads with zero bytes and fails if v does not
// fit; width -1 grows as needed but never shrinks below four bytes,
// which is what counters that may exceed 32 bits require.
func EncodeBitPadded(v uint64, bits uint, bigEndian bool, width int) ([]byte, error) {
	if bits < 1 || bits > 8 {
		return nil, fmt.Errorf("id3v2: bit width %d out of range 1..8", bits)
	}
	mask := uint64(1<<bits - 1)

	// Little-endian first, most significant byte last.
	var out []byte
	for rem := v; rem != 0; rem >>= bits {
		out = append(out, byte(rem&mask))
	}
	minWidth := width
	if width == -1 {
		minWidth = 4
	}
	for len(out) < minWidth {
		out = append(out, 0)
	}
	if width != -1 && len(out) > width {
		return nil, fmt.Errorf("id3v2: %d does not fit in %d bytes of %d bits", v, width, bits)
	}
	if bigEndian {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// synchsafeMax is the largest value a 4-byte synchsafe integer holds.
const synchsafeMax = 1<<28 - 1

// decodeSynchsafe reads a 4-byte big-endian synchsafe integer.
func decodeSynchsafe(b []byte) int {
	return int(DecodeBitPadded(b, 7, true))
}

// encodeSynchsafe writes v as a 4-byte big-endian synchsafe integer.
// Callers bound v by synchsafeMax first.
func encodeSynchsafe(v int) []byte {
	return []byte{
		byte(v >> 21 & 0x7F),
		byte(v >> 14 & 0x7F),
		byte(v >> 7 & 0x7F),
		byte(v & 0x7F),
	}
}
