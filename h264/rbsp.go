package h264

// ParseRBSP removes emulation prevention bytes from an escaped NAL unit
// payload, returning the raw byte sequence payload. Every 0x03 that follows
// two zero bytes is dropped.
func ParseRBSP(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); {
		if len(b)-i >= 3 && b[i] == 0 && b[i+1] == 0 && b[i+2] == 3 {
			out = append(out, 0, 0)
			i += 3
			continue
		}
		out = append(out, b[i])
		i++
	}
	return out
}

// WriteRBSP escapes a raw byte sequence payload for placement in a NAL unit
// by inserting 0x03 before any byte <= 0x03 that follows two zero bytes.
func WriteRBSP(b []byte) []byte {
	out := make([]byte, 0, len(b)+len(b)/2)
	zeros := 0
	for _, c := range b {
		if c <= 3 && zeros >= 2 {
			out = append(out, 3)
			zeros = 0
		}
		out = append(out, c)
		if c == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}
