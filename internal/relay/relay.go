// Package relay turns an Annex-B byte stream into a sequence of RTP
// datagrams.
package relay

import (
	"context"
	"io"

	"github.com/ausocean/h264rtp/h264"
	"github.com/ausocean/h264rtp/h264/packetizer"
	"github.com/ausocean/h264rtp/internal/config"
	"github.com/pion/randutil"
	"github.com/pion/rtp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// clockRate is the RTP clock rate for H.264 video. RFC 6184 section 8.2.1
const clockRate = 90000

// Stats counts the work done by a Relay.
type Stats struct {
	AccessUnits int
	Dropped     int
	Packets     int
	Bytes       int
	VUI         h264.VUIStats
}

// Relay packetizes access units and writes each packet to a destination as
// one datagram. A Relay is not safe for concurrent use.
type Relay struct {
	dst io.Writer
	log logrus.FieldLogger

	limits     packetizer.PayloadSizeLimits
	mode       packetizer.Mode
	rewriteVUI bool
	cs         *h264.ColorSpace

	payloadType uint8
	ssrc        uint32
	seq         uint16
	timestamp   uint32
	tsStep      uint32

	parser h264.BitstreamParser
	stats  Stats
}

// New returns a Relay that writes RTP packets to dst.
func New(cfg config.Config, dst io.Writer, log logrus.FieldLogger) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	mode, _ := cfg.Mode()

	rng := randutil.NewMathRandomGenerator()
	ssrc := cfg.SSRC
	for ssrc == 0 {
		ssrc = rng.Uint32()
	}

	return &Relay{
		dst:         dst,
		log:         log.WithField("ssrc", ssrc),
		limits:      cfg.Limits(),
		mode:        mode,
		rewriteVUI:  cfg.RewriteVUI,
		cs:          cfg.ColorSpace(),
		payloadType: cfg.PayloadType,
		ssrc:        ssrc,
		seq:         uint16(rng.Intn(1 << 16)),
		timestamp:   rng.Uint32(),
		tsStep:      uint32(clockRate / cfg.FrameRate),
	}, nil
}

// SSRC returns the synchronization source of the packets written.
func (r *Relay) SSRC() uint32 { return r.ssrc }

// Stats returns the counters accumulated so far.
func (r *Relay) Stats() Stats { return r.stats }

// Run relays access units read from src until src is exhausted or ctx is
// cancelled. Reaching the end of src is not an error.
func (r *Relay) Run(ctx context.Context, src io.Reader) error {
	rd := h264.NewReader(src)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		au, err := rd.ReadAccessUnit()
		if err == io.EOF {
			r.log.WithFields(logrus.Fields{
				"access_units": r.stats.AccessUnits,
				"dropped":      r.stats.Dropped,
				"packets":      r.stats.Packets,
			}).Debug("end of stream")
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "could not read access unit")
		}
		if err := r.WriteAccessUnit(au); err != nil {
			return err
		}
	}
}

// WriteAccessUnit packetizes one Annex-B access unit and writes its packets.
// All packets of the access unit share a timestamp. An access unit that
// cannot be packetized is dropped and logged; only write errors are
// returned.
func (r *Relay) WriteAccessUnit(au []byte) error {
	ts := r.timestamp
	r.timestamp += r.tsStep
	r.stats.AccessUnits++

	r.parser.ParseBitstream(au)
	if qp, ok := r.parser.LastSliceQP(); ok {
		r.log.WithFields(logrus.Fields{"qp": qp, "size": len(au)}).Debug("access unit")
	}

	if r.rewriteVUI {
		au = h264.RewriteOutgoingBitstream(au, r.cs, &r.stats.VUI)
	}

	p, err := packetizer.New(au, r.limits, r.mode)
	if err != nil {
		r.stats.Dropped++
		r.log.WithError(err).WithField("size", len(au)).Warn("dropping access unit")
		return nil
	}

	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:     2,
			PayloadType: r.payloadType,
			Timestamp:   ts,
			SSRC:        r.ssrc,
		},
	}
	for p.NextPacket(&pkt) {
		pkt.SequenceNumber = r.seq
		r.seq++

		b, err := pkt.Marshal()
		if err != nil {
			return errors.Wrap(err, "could not marshal RTP packet")
		}
		if _, err := r.dst.Write(b); err != nil {
			return errors.Wrap(err, "could not write RTP packet")
		}
		r.stats.Packets++
		r.stats.Bytes += len(b)
	}
	return nil
}
