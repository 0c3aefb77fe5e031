package h264

import (
	"io"

	"github.com/ausocean/h264rtp/h264/bits"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// readChunk is the minimum number of bytes requested from the source per
// read.
const readChunk = 64 << 10

// Reader splits an Annex-B byte stream into access units.
type Reader struct {
	src io.Reader
	eof bool

	// buf holds stream bytes not yet assigned to an access unit.
	buf []byte

	// au is the access unit being assembled.
	au      []byte
	vclSeen bool
}

// NewReader returns a Reader that reads an Annex-B byte stream from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{src: r}
}

// ReadAccessUnit returns the next access unit, start codes included. A new
// access unit starts at an access unit delimiter, SPS, PPS, SEI or prefix
// NAL unit, or at a slice with first_mb_in_slice of zero, once a slice of
// the current access unit has been seen. io.EOF is returned when the
// stream is exhausted.
func (r *Reader) ReadAccessUnit() ([]byte, error) {
	for {
		nalu, err := r.nextNALU()
		if err == io.EOF {
			if len(r.au) == 0 {
				return nil, io.EOF
			}
			au := r.au
			r.au, r.vclSeen = nil, false
			return au, nil
		}
		if err != nil {
			return nil, err
		}

		typ, first := classify(nalu)
		if r.vclSeen && first {
			au := r.au
			r.au = append([]byte(nil), nalu...)
			r.vclSeen = isVCL(typ)
			logger.WithFields(logrus.Fields{"size": len(au)}).Debug("read access unit")
			return au, nil
		}
		r.au = append(r.au, nalu...)
		if isVCL(typ) {
			r.vclSeen = true
		}
	}
}

// nextNALU returns the next NAL unit with its start code. Bytes preceding
// the first start code of the stream are discarded.
func (r *Reader) nextNALU() ([]byte, error) {
	for {
		idx := FindNALUIndices(r.buf)
		if len(idx) > 1 {
			nalu := r.buf[idx[0].StartOffset:idx[1].StartOffset]
			r.buf = r.buf[idx[1].StartOffset:]
			return nalu, nil
		}
		if r.eof {
			if len(idx) == 0 {
				r.buf = nil
				return nil, io.EOF
			}
			nalu := r.buf[idx[0].StartOffset:]
			r.buf = nil
			return nalu, nil
		}
		if err := r.fill(); err != nil {
			return nil, err
		}
	}
}

func (r *Reader) fill() error {
	if cap(r.buf)-len(r.buf) < readChunk {
		b := make([]byte, len(r.buf), 2*len(r.buf)+readChunk)
		copy(b, r.buf)
		r.buf = b
	}
	n, err := r.src.Read(r.buf[len(r.buf):cap(r.buf)])
	r.buf = r.buf[:len(r.buf)+n]
	switch {
	case err == io.EOF:
		r.eof = true
	case err != nil:
		return errors.Wrap(err, "could not read byte stream")
	}
	return nil
}

// classify returns the type of an Annex-B NAL unit and whether it begins a
// new access unit.
func classify(nalu []byte) (typ int, first bool) {
	idx := FindNALUIndices(nalu)
	if len(idx) == 0 || idx[0].PayloadSize == 0 {
		return naluTypeUnspecified, false
	}
	payload := nalu[idx[0].PayloadStartOffset:]
	typ = NALType(payload[0])
	switch typ {
	case naluTypeAccessUnitDelimiter, naluTypeSPS, naluTypePPS, naluTypeSEI, naluTypePrefixNALU:
		return typ, true
	}
	if typ != naluTypeSliceNonIDRPicture && typ != naluTypeSlicePartA && typ != naluTypeSliceIDRPicture {
		// Data partitions B and C begin with slice_id.
		return typ, false
	}

	// first_mb_in_slice is the first syntax element of the slice header.
	hdr := payload[1:]
	if len(hdr) > 8 {
		hdr = hdr[:8]
	}
	br := bits.NewBitReader(ParseRBSP(hdr))
	firstMB := br.ReadExpGolomb()
	return typ, br.Ok() && firstMB == 0
}

// isVCL reports whether typ is a coded slice NAL unit type.
func isVCL(typ int) bool {
	return typ >= naluTypeSliceNonIDRPicture && typ <= naluTypeSliceIDRPicture
}
