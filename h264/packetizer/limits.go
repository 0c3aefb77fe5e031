package packetizer

// PayloadSizeLimits bounds the payload size of generated packets. Reduction
// lengths leave room in the first, last or only packet of an access unit
// for data added by the caller, such as header extensions.
type PayloadSizeLimits struct {
	MaxPayloadLen            int
	FirstPacketReductionLen  int
	LastPacketReductionLen   int
	SinglePacketReductionLen int
}

// DefaultLimits returns limits suited to a typical 1500 byte MTU path.
func DefaultLimits() PayloadSizeLimits {
	return PayloadSizeLimits{MaxPayloadLen: 1200}
}

// SplitAboutEqually splits payloadLen bytes into packet sizes that differ by
// at most one byte, after accounting for the first and last packet
// reductions. If the payload fits in a single packet, taking the single
// packet reduction into account, one size is returned. An empty result
// means the limits cannot hold the payload.
func SplitAboutEqually(payloadLen int, limits PayloadSizeLimits) []int {
	if payloadLen <= 0 || limits.MaxPayloadLen <= 0 {
		return nil
	}
	if limits.MaxPayloadLen >= limits.SinglePacketReductionLen+payloadLen {
		return []int{payloadLen}
	}
	if limits.MaxPayloadLen-limits.FirstPacketReductionLen < 1 ||
		limits.MaxPayloadLen-limits.LastPacketReductionLen < 1 {
		return nil
	}

	// Treat the first and last packets as full size packets carrying extra
	// payload.
	total := payloadLen + limits.FirstPacketReductionLen + limits.LastPacketReductionLen
	left := (total + limits.MaxPayloadLen - 1) / limits.MaxPayloadLen
	if left == 1 {
		left = 2
	}
	if payloadLen < left {
		return nil
	}

	perPacket := total / left
	numLarger := total % left
	remaining := payloadLen

	sizes := make([]int, 0, left)
	for first := true; remaining > 0; first = false {
		// The last numLarger packets carry one more byte.
		if left == numLarger {
			perPacket++
		}
		n := perPacket
		if first {
			if n > limits.FirstPacketReductionLen+1 {
				n -= limits.FirstPacketReductionLen
			} else {
				n = 1
			}
		}
		if n > remaining {
			n = remaining
		}
		// Leave at least one byte for the last packet.
		if left == 2 && n == remaining {
			n--
		}
		sizes = append(sizes, n)
		remaining -= n
		left--
	}
	return sizes
}
