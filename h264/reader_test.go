package h264

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderAccessUnits(t *testing.T) {
	spsIn := spsParams{widthMBsMinus1: 19, heightMapUnitsMinus1: 14, maxNumRefFrames: 1}
	ppsIn := ppsParams{}
	sps, err := ParseSPS(spsIn.payload())
	require.NoError(t, err)
	pps, err := ParsePPS(ppsIn.payload())
	require.NoError(t, err)

	aud := []byte{0x09, 0xf0}
	spsNALU := withHeader(TypeSPS, 3, spsIn.payload())
	ppsNALU := withHeader(TypePPS, 3, ppsIn.payload())
	idr0 := sliceParams{nalType: TypeIDR, refIDC: 3, sliceType: 7}.nalu(sps, pps)
	idr1 := sliceParams{nalType: TypeIDR, refIDC: 3, sliceType: 7, firstMB: 150}.nalu(sps, pps)
	p0 := sliceParams{nalType: TypeSlice, refIDC: 2, sliceType: 5}.nalu(sps, pps)
	p1 := sliceParams{nalType: TypeSlice, refIDC: 2, sliceType: 5, firstMB: 100}.nalu(sps, pps)
	sei := []byte{0x06, 0x05, 0x01, 0xaa, 0x80}

	want := [][]byte{
		annexB(aud, spsNALU, ppsNALU, idr0, idr1),
		annexB(p0, p1),
		annexB(sei, p0),
		annexB(aud, p0),
	}

	var stream []byte
	// Garbage before the first start code is dropped.
	stream = append(stream, 0xde, 0xad)
	for _, au := range want {
		stream = append(stream, au...)
	}

	readers := map[string]io.Reader{
		"whole":    bytes.NewReader(stream),
		"one byte": iotest.OneByteReader(bytes.NewReader(stream)),
		"half":     iotest.HalfReader(bytes.NewReader(stream)),
	}
	for name, src := range readers {
		t.Run(name, func(t *testing.T) {
			r := NewReader(src)
			for i, w := range want {
				got, err := r.ReadAccessUnit()
				require.NoError(t, err, "access unit %d", i)
				assert.Equal(t, w, got, "access unit %d", i)
			}
			_, err := r.ReadAccessUnit()
			assert.Equal(t, io.EOF, err)
		})
	}
}

func TestReaderDataPartitions(t *testing.T) {
	// Partition A starts with first_mb_in_slice; B and C start with
	// slice_id, here 0.
	partA := []byte{0x22, 0x88, 0x11}
	partB := []byte{0x23, 0x88, 0x11}
	partC := []byte{0x24, 0x88, 0x11}

	want := [][]byte{
		annexB(partA, partB, partC),
		annexB(partA, partB, partC),
	}
	r := NewReader(bytes.NewReader(append(want[0], want[1]...)))
	for i, w := range want {
		got, err := r.ReadAccessUnit()
		require.NoError(t, err, "access unit %d", i)
		assert.Equal(t, w, got, "access unit %d", i)
	}
	_, err := r.ReadAccessUnit()
	assert.Equal(t, io.EOF, err)
}

func TestReaderEmpty(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x01, 0x02, 0x03}))
	_, err := r.ReadAccessUnit()
	assert.Equal(t, io.EOF, err)
}

func TestReaderError(t *testing.T) {
	r := NewReader(iotest.ErrReader(io.ErrClosedPipe))
	_, err := r.ReadAccessUnit()
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
