/*
DESCRIPTION
  bitreader.go provides a bit reader implementation that reads from a byte
  slice, with a sticky failure state in place of per-read errors.

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

// Package bits provides bit granularity readers and writers for H.264
// syntax elements, including Exp-Golomb coded values.
package bits

// maxGolombZeros is the largest count of leading zeros for which an
// Exp-Golomb value still fits in 32 bits.
const maxGolombZeros = 31

// BitReader reads bits MSB first from a byte slice. It does not copy the
// slice, so the slice must not be modified while the reader is in use.
//
// Reads never return errors. Instead, a read past the end of the data puts
// the reader in a failed state in which all further reads return 0. Callers
// perform a series of reads and check Ok once before trusting the values.
type BitReader struct {
	data []byte

	// remaining is the number of unread bits; negative once failed.
	remaining int
}

// NewBitReader returns a new BitReader over b.
func NewBitReader(b []byte) *BitReader {
	return &BitReader{data: b, remaining: len(b) * 8}
}

// Ok reports whether every read since construction has succeeded.
func (br *BitReader) Ok() bool { return br.remaining >= 0 }

// Invalidate puts the reader into the failed state.
func (br *BitReader) Invalidate() { br.remaining = -1 }

// RemainingBitCount returns the number of unread bits, or a negative value
// if the reader has failed.
func (br *BitReader) RemainingBitCount() int { return br.remaining }

// ReadBits reads n bits and returns them in the least-significant part of a
// uint64. For example, with a source of []byte{0x8f,0xe3} (1000 1111,
// 1110 0011), we would get the following results for consecutive reads
// with n values:
// n = 4, res = 0x8 (1000)
// n = 2, res = 0x3 (0011)
// n = 4, res = 0xf (1111)
// n = 6, res = 0x23 (0010 0011)
func (br *BitReader) ReadBits(n int) uint64 {
	if n < 0 || n > 64 || br.remaining < n {
		br.Invalidate()
		return 0
	}

	var r uint64
	for n > 0 {
		pos := len(br.data)*8 - br.remaining
		off := pos % 8
		avail := 8 - off
		take := avail
		if n < take {
			take = n
		}
		// Shift the wanted bits of the current byte down and mask off the
		// bits above them.
		b := uint64(br.data[pos/8]>>uint(avail-take)) & (1<<uint(take) - 1)
		r = r<<uint(take) | b
		br.remaining -= take
		n -= take
	}
	return r
}

// ReadBit reads a single bit.
func (br *BitReader) ReadBit() int { return int(br.ReadBits(1)) }

// ReadBool reads a single bit as a flag.
func (br *BitReader) ReadBool() bool { return br.ReadBits(1) == 1 }

// ReadUint8 reads 8 bits.
func (br *BitReader) ReadUint8() uint8 { return uint8(br.ReadBits(8)) }

// ReadUint16 reads 16 bits.
func (br *BitReader) ReadUint16() uint16 { return uint16(br.ReadBits(16)) }

// ReadUint32 reads 32 bits.
func (br *BitReader) ReadUint32() uint32 { return uint32(br.ReadBits(32)) }

// ConsumeBits skips n bits.
func (br *BitReader) ConsumeBits(n int) {
	if n < 0 || br.remaining < n {
		br.Invalidate()
		return
	}
	br.remaining -= n
}

// ReadExpGolomb reads an unsigned Exp-Golomb coded value, ue(v), as
// described by section 9.1 of the specifications.
func (br *BitReader) ReadExpGolomb() uint32 {
	zeros := 0
	for br.ReadBits(1) == 0 {
		if !br.Ok() {
			return 0
		}
		zeros++
		if zeros > maxGolombZeros {
			br.Invalidate()
			return 0
		}
	}
	v := br.ReadBits(zeros)
	if !br.Ok() {
		return 0
	}
	return uint32(1<<uint(zeros) - 1 + v)
}

// ReadSignedExpGolomb reads a signed Exp-Golomb coded value, se(v), mapping
// codeNum k to (-1)^(k+1) * ceil(k/2) as per section 9.1.1.
func (br *BitReader) ReadSignedExpGolomb() int32 {
	k := br.ReadExpGolomb()
	if k&1 == 0 {
		return -int32(k / 2)
	}
	return int32(k/2) + 1
}
