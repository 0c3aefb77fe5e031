// Package packetizer splits H.264 access units into RTP payloads as
// described by RFC 6184, using single NAL unit, STAP-A and FU-A packets.
package packetizer

import (
	"encoding/binary"

	"github.com/ausocean/h264rtp/h264"
	"github.com/pion/rtp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Mode is an RFC 6184 packetization mode.
type Mode int

// Packetization modes. Interleaved mode is not supported.
const (
	NonInterleaved Mode = iota
	SingleNALUnit
)

func (m Mode) String() string {
	switch m {
	case NonInterleaved:
		return "non-interleaved"
	case SingleNALUnit:
		return "single-nal"
	default:
		return "unknown"
	}
}

// NAL unit types and header fields used by the payload formats.
const (
	typeSTAPA = 24
	typeFUA   = 28

	nalHeaderSize   = 1
	fuAHeaderSize   = 2
	lengthFieldSize = 2

	// maxAggregatedLen is the largest NAL unit a STAP-A length field can
	// describe.
	maxAggregatedLen = 1<<16 - 1

	fBitNRIMask = 0xe0
	typeMask    = 0x1f
	fuStartBit  = 0x80
	fuEndBit    = 0x40
)

// Errors returned by New.
var (
	ErrEmptyNALU   = errors.New("empty NAL unit")
	ErrNALUTooLong = errors.New("NAL unit does not fit payload limits")
)

// logger is used for packetization diagnostics.
var logger logrus.FieldLogger = logrus.StandardLogger()

// SetLogger replaces the package logger.
func SetLogger(l logrus.FieldLogger) { logger = l }

// packetUnit is the plan for one NAL unit, or one part of a NAL unit, within
// a packet.
type packetUnit struct {
	fragment   []byte
	first      bool
	last       bool
	aggregated bool
	header     byte
}

// Packetizer holds the packets planned for one access unit and hands them
// out in order.
type Packetizer struct {
	limits     PayloadSizeLimits
	fragments  [][]byte
	units      []packetUnit
	numPackets int
}

// New plans the packets for an Annex-B access unit. The payload is not
// copied and must not change until every packet has been taken. Either all
// NAL units are planned or an error is returned.
func New(payload []byte, limits PayloadSizeLimits, mode Mode) (*Packetizer, error) {
	if mode != NonInterleaved && mode != SingleNALUnit {
		return nil, errors.Errorf("unsupported packetization mode: %d", mode)
	}
	p := &Packetizer{limits: limits, fragments: h264.SplitNALUs(payload)}

	var err error
	for i := 0; i < len(p.fragments) && err == nil; {
		if len(p.fragments[i]) == 0 {
			err = errors.Wrapf(ErrEmptyNALU, "NAL unit %d", i)
			break
		}
		if mode == SingleNALUnit {
			err = p.packetizeSingleNALU(i)
			i++
			continue
		}
		if len(p.fragments[i]) > p.capacity(i) {
			err = p.packetizeFUA(i)
			i++
			continue
		}
		i, err = p.packetizeSTAPA(i)
	}
	if err != nil {
		logger.WithFields(logrus.Fields{"mode": mode, "nalus": len(p.fragments), "error": err}).Warn("could not packetize access unit")
		p.units, p.numPackets = nil, 0
		return nil, err
	}
	return p, nil
}

// NumPackets returns the number of packets not yet taken.
func (p *Packetizer) NumPackets() int { return p.numPackets }

// capacity returns the payload space available to the NAL unit at index i
// when sent whole.
func (p *Packetizer) capacity(i int) int {
	c := p.limits.MaxPayloadLen
	switch {
	case len(p.fragments) == 1:
		c -= p.limits.SinglePacketReductionLen
	case i == 0:
		c -= p.limits.FirstPacketReductionLen
	case i == len(p.fragments)-1:
		c -= p.limits.LastPacketReductionLen
	}
	return c
}

func (p *Packetizer) packetizeSingleNALU(i int) error {
	f := p.fragments[i]
	if c := p.capacity(i); len(f) > c {
		return errors.Wrapf(ErrNALUTooLong, "%d bytes exceeds %d", len(f), c)
	}
	p.units = append(p.units, packetUnit{fragment: f, first: true, last: true, header: f[0]})
	p.numPackets++
	return nil
}

func (p *Packetizer) packetizeFUA(i int) error {
	limits := p.limits
	limits.MaxPayloadLen -= fuAHeaderSize
	n := len(p.fragments)
	if n != 1 {
		switch i {
		case n - 1:
			limits.SinglePacketReductionLen = p.limits.LastPacketReductionLen
		case 0:
			limits.SinglePacketReductionLen = p.limits.FirstPacketReductionLen
		default:
			limits.SinglePacketReductionLen = 0
		}
	}
	if i != 0 {
		limits.FirstPacketReductionLen = 0
	}
	if i != n-1 {
		limits.LastPacketReductionLen = 0
	}

	f := p.fragments[i]
	sizes := SplitAboutEqually(len(f)-nalHeaderSize, limits)
	if len(sizes) == 0 {
		return errors.Wrapf(ErrNALUTooLong, "cannot fragment %d bytes", len(f))
	}
	off := nalHeaderSize
	for j, size := range sizes {
		if size <= 0 {
			return errors.Wrapf(ErrNALUTooLong, "empty fragment for %d bytes", len(f))
		}
		p.units = append(p.units, packetUnit{
			fragment: f[off : off+size],
			first:    j == 0,
			last:     j == len(sizes)-1,
			header:   f[0],
		})
		off += size
	}
	p.numPackets += len(sizes)
	return nil
}

// packetizeSTAPA aggregates NAL units starting at index i into one packet
// and returns the index of the first NAL unit not included.
func (p *Packetizer) packetizeSTAPA(i int) (int, error) {
	left := p.limits.MaxPayloadLen
	switch {
	case len(p.fragments) == 1:
		left -= p.limits.SinglePacketReductionLen
	case i == 0:
		left -= p.limits.FirstPacketReductionLen
	}

	needed := func(i, headers int) int {
		n := len(p.fragments[i]) + headers
		if len(p.fragments) > 1 && i == len(p.fragments)-1 {
			n += p.limits.LastPacketReductionLen
		}
		return n
	}

	aggregated, headers := 0, 0
	for i < len(p.fragments) && left >= needed(i, headers) {
		f := p.fragments[i]
		if len(f) == 0 {
			return i, errors.Wrapf(ErrEmptyNALU, "NAL unit %d", i)
		}
		if len(f) > maxAggregatedLen && aggregated > 0 {
			break
		}
		p.units = append(p.units, packetUnit{fragment: f, first: aggregated == 0, aggregated: true, header: f[0]})
		left -= len(f) + headers

		// Each further NAL unit needs a length field. The first further one
		// also pays for the STAP-A header and the first length field.
		headers = lengthFieldSize
		if aggregated == 0 {
			headers += nalHeaderSize + lengthFieldSize
		}
		aggregated++
		i++
		if len(f) > maxAggregatedLen {
			// Too long for a length field, so it goes out alone.
			break
		}
	}
	if aggregated == 0 {
		return i, errors.Wrapf(ErrNALUTooLong, "NAL unit %d", i)
	}
	p.units[len(p.units)-1].last = true
	p.numPackets++
	return i, nil
}

// NextPacket sets the payload and marker bit of pkt to those of the next
// packet. The marker bit is set on the last packet of the access unit. It
// returns false once all packets have been taken.
func (p *Packetizer) NextPacket(pkt *rtp.Packet) bool {
	if len(p.units) == 0 {
		return false
	}

	u := p.units[0]
	switch {
	case u.first && u.last:
		pkt.Payload = append([]byte(nil), u.fragment...)
		p.units = p.units[1:]
	case u.aggregated:
		pkt.Payload = p.nextAggregate()
	default:
		pkt.Payload = p.nextFragment()
	}
	pkt.Marker = len(p.units) == 0
	p.numPackets--
	return true
}

// nextAggregate builds a STAP-A payload from the queued aggregated units.
func (p *Packetizer) nextAggregate() []byte {
	b := make([]byte, 0, p.limits.MaxPayloadLen)
	b = append(b, p.units[0].header&fBitNRIMask|typeSTAPA)
	for len(p.units) > 0 {
		u := p.units[0]
		p.units = p.units[1:]
		b = binary.BigEndian.AppendUint16(b, uint16(len(u.fragment)))
		b = append(b, u.fragment...)
		if u.last {
			break
		}
	}
	return b
}

// nextFragment builds an FU-A payload from the next queued unit.
func (p *Packetizer) nextFragment() []byte {
	u := p.units[0]
	p.units = p.units[1:]

	fuHeader := u.header & typeMask
	if u.first {
		fuHeader |= fuStartBit
	}
	if u.last {
		fuHeader |= fuEndBit
	}
	b := make([]byte, 0, fuAHeaderSize+len(u.fragment))
	b = append(b, u.header&fBitNRIMask|typeFUA, fuHeader)
	return append(b, u.fragment...)
}
