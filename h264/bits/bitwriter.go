/*
DESCRIPTION
  bitwriter.go provides a bounded bit writer used to re-encode H.264 syntax
  structures.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2017-2018 the Australian Ocean Lab (AusOcean)

  It is free software: you can redistribute it and/or modify them
  under the terms of the GNU General Public License as published by the
  Free Software Foundation, either version 3 of the License, or (at your
  option) any later version.

  It is distributed in the hope that it will be useful, but WITHOUT
  ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
  FITNESS FOR A PARTICULAR PURPOSE. See the GNU General Public License
  for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt.  If not, see http://www.gnu.org/licenses.
*/

package bits

import (
	"math/bits"

	"github.com/icza/bitio"
	"github.com/pkg/errors"
)

// ErrBufferFull is returned once a BitWriter has been asked to write more
// bits than its capacity allows.
var ErrBufferFull = errors.New("bit writer capacity exceeded")

// sink is a byte destination with a fixed capacity.
type sink struct {
	buf []byte
}

func (s *sink) WriteByte(c byte) error {
	if len(s.buf) == cap(s.buf) {
		return ErrBufferFull
	}
	s.buf = append(s.buf, c)
	return nil
}

func (s *sink) Write(p []byte) (int, error) {
	for i, c := range p {
		if err := s.WriteByte(c); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// BitWriter writes bits MSB first into a buffer of fixed capacity. Like
// BitReader, failures are sticky: the first failed write is kept and all
// later writes are ignored. Check Err once after a series of writes.
type BitWriter struct {
	w   *bitio.Writer
	dst *sink
	n   int // Bits written.
	max int // Capacity in bits.
	err error
}

// NewBitWriter returns a BitWriter that can hold up to capacity bytes.
func NewBitWriter(capacity int) *BitWriter {
	dst := &sink{buf: make([]byte, 0, capacity)}
	return &BitWriter{w: bitio.NewWriter(dst), dst: dst, max: capacity * 8}
}

// Err returns the first error encountered while writing, if any.
func (bw *BitWriter) Err() error {
	if bw.err != nil {
		return bw.err
	}
	return bw.w.TryError
}

// BitsWritten returns the number of bits written so far.
func (bw *BitWriter) BitsWritten() int { return bw.n }

// WriteBits writes the n least-significant bits of v, for 0 <= n <= 64.
func (bw *BitWriter) WriteBits(v uint64, n int) {
	if bw.Err() != nil {
		return
	}
	if n < 0 || n > 64 {
		bw.err = errors.Errorf("invalid bit count %d", n)
		return
	}
	if bw.n+n > bw.max {
		bw.err = ErrBufferFull
		return
	}
	if n == 0 {
		return
	}
	if n < 64 {
		v &= 1<<uint(n) - 1
	}
	bw.w.TryWriteBits(v, uint8(n))
	bw.n += n
}

// WriteBit writes a single bit; any non-zero b writes a 1.
func (bw *BitWriter) WriteBit(b int) {
	if b != 0 {
		b = 1
	}
	bw.WriteBits(uint64(b), 1)
}

// WriteBool writes a flag as a single bit.
func (bw *BitWriter) WriteBool(b bool) {
	if b {
		bw.WriteBits(1, 1)
		return
	}
	bw.WriteBits(0, 1)
}

// WriteUint8 writes v as 8 bits.
func (bw *BitWriter) WriteUint8(v uint8) { bw.WriteBits(uint64(v), 8) }

// WriteExpGolomb writes v as an unsigned Exp-Golomb code, ue(v).
func (bw *BitWriter) WriteExpGolomb(v uint32) {
	x := uint64(v) + 1
	l := bits.Len64(x)
	bw.WriteBits(0, l-1)
	bw.WriteBits(x, l)
}

// WriteSignedExpGolomb writes v as a signed Exp-Golomb code, se(v).
func (bw *BitWriter) WriteSignedExpGolomb(v int32) {
	if v > 0 {
		bw.WriteExpGolomb(uint32(v)*2 - 1)
		return
	}
	bw.WriteExpGolomb(uint32(-int64(v)) * 2)
}

// AlignZero pads with zero bits up to the next byte boundary.
func (bw *BitWriter) AlignZero() {
	if rem := bw.n % 8; rem != 0 {
		bw.WriteBits(0, 8-rem)
	}
}

// Bytes returns the complete bytes written so far. Bits of a partially
// written final byte are not included; call AlignZero first to flush them.
func (bw *BitWriter) Bytes() []byte { return bw.dst.buf }
