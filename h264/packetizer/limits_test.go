package packetizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitAboutEqually(t *testing.T) {
	tests := []struct {
		name   string
		len    int
		limits PayloadSizeLimits
		want   []int
	}{
		{name: "fits", len: 1000, limits: PayloadSizeLimits{MaxPayloadLen: 1200}, want: []int{1000}},
		{name: "fits exactly", len: 1195, limits: PayloadSizeLimits{MaxPayloadLen: 1200, SinglePacketReductionLen: 5}, want: []int{1195}},
		{name: "two equal", len: 10, limits: PayloadSizeLimits{MaxPayloadLen: 5}, want: []int{5, 5}},
		{name: "one larger", len: 11, limits: PayloadSizeLimits{MaxPayloadLen: 5}, want: []int{3, 4, 4}},
		{name: "single reduction forces split", len: 5, limits: PayloadSizeLimits{MaxPayloadLen: 5, SinglePacketReductionLen: 1}, want: []int{2, 3}},
		{name: "first reduction", len: 20, limits: PayloadSizeLimits{MaxPayloadLen: 10, FirstPacketReductionLen: 4}, want: []int{4, 8, 8}},
		{name: "last reduction", len: 20, limits: PayloadSizeLimits{MaxPayloadLen: 10, LastPacketReductionLen: 4}, want: []int{8, 8, 4}},
		{name: "first too large", len: 20, limits: PayloadSizeLimits{MaxPayloadLen: 10, FirstPacketReductionLen: 10}, want: nil},
		{name: "last too large", len: 20, limits: PayloadSizeLimits{MaxPayloadLen: 10, LastPacketReductionLen: 11}, want: nil},
		{name: "empty payload", len: 0, limits: PayloadSizeLimits{MaxPayloadLen: 1, SinglePacketReductionLen: 3}, want: nil},
		{name: "no payload space", len: 10, limits: PayloadSizeLimits{MaxPayloadLen: 0}, want: nil},
		{name: "not enough bytes", len: 1, limits: PayloadSizeLimits{MaxPayloadLen: 2, FirstPacketReductionLen: 1, LastPacketReductionLen: 1, SinglePacketReductionLen: 2}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitAboutEqually(tt.len, tt.limits)
			assert.Equal(t, tt.want, got)

			sum := 0
			for _, n := range got {
				assert.Greater(t, n, 0)
				sum += n
			}
			if len(got) > 0 {
				assert.Equal(t, tt.len, sum)
			}
		})
	}
}

func TestSplitAboutEquallyBounds(t *testing.T) {
	limits := PayloadSizeLimits{MaxPayloadLen: 100, FirstPacketReductionLen: 7, LastPacketReductionLen: 13, SinglePacketReductionLen: 100}
	for n := 2; n < 2000; n++ {
		sizes := SplitAboutEqually(n, limits)
		if len(sizes) < 2 {
			t.Fatalf("SplitAboutEqually(%d) = %v, want at least two packets", n, sizes)
		}
		sum := 0
		for i, s := range sizes {
			max := limits.MaxPayloadLen
			if i == 0 {
				max -= limits.FirstPacketReductionLen
			}
			if i == len(sizes)-1 {
				max -= limits.LastPacketReductionLen
			}
			if s < 1 || s > max {
				t.Fatalf("SplitAboutEqually(%d) = %v, packet %d out of range", n, sizes, i)
			}
			sum += s
		}
		if sum != n {
			t.Fatalf("SplitAboutEqually(%d) = %v, sums to %d", n, sizes, sum)
		}
	}
}
