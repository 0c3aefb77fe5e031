package h264

import "github.com/sirupsen/logrus"

const (
	minQP = 0
	maxQP = 51

	// picInitQPBase is added to pic_init_qp_minus26.
	picInitQPBase = 26
)

// BitstreamParser tracks the active parameter sets of a stream so that the
// QP of the most recent slice can be recovered.
type BitstreamParser struct {
	sps *SPS
	pps *PPS

	lastSliceQPDelta int32
	haveQPDelta      bool
}

// SPS returns the active sequence parameter set, or nil.
func (p *BitstreamParser) SPS() *SPS { return p.sps }

// PPS returns the active picture parameter set, or nil.
func (p *BitstreamParser) PPS() *PPS { return p.pps }

// ParseBitstream parses every NAL unit in an Annex-B buffer. Parameter sets
// replace the active ones; a parameter set that fails to parse clears the
// active one. Slices update the value reported by LastSliceQP.
func (p *BitstreamParser) ParseBitstream(annexB []byte) {
	for _, nalu := range SplitNALUs(annexB) {
		p.parseNALU(nalu)
	}
}

func (p *BitstreamParser) parseNALU(nalu []byte) {
	if len(nalu) == 0 {
		return
	}
	typ := NALType(nalu[0])
	log := logger.WithFields(logrus.Fields{"nal_type": TypeName(typ), "size": len(nalu)})

	var err error
	switch typ {
	case naluTypeSPS:
		p.sps, err = ParseSPS(nalu[1:])
		if err != nil {
			log.WithError(err).Debug("could not parse SPS")
		}
	case naluTypePPS:
		p.pps, err = ParsePPS(nalu[1:])
		if err != nil {
			log.WithError(err).Debug("could not parse PPS")
		}
	case naluTypeAccessUnitDelimiter, naluTypeSEI, naluTypePrefixNALU:
		// No slice header to parse.
	default:
		p.haveQPDelta = false
		p.lastSliceQPDelta, err = ParseSliceQPDelta(nalu, p.sps, p.pps)
		if err != nil {
			log.WithError(err).Debug("could not parse slice header")
			return
		}
		p.haveQPDelta = true
	}
}

// LastSliceQP returns the QP of the last successfully parsed slice. ok is
// false if there is no such slice or the QP falls outside [0, 51].
func (p *BitstreamParser) LastSliceQP() (qp int, ok bool) {
	if !p.haveQPDelta || p.pps == nil {
		return 0, false
	}
	qp = picInitQPBase + int(p.pps.PicInitQPMinus26) + int(p.lastSliceQPDelta)
	if qp < minQP || qp > maxQP {
		logger.WithField("qp", qp).Debug("parsed slice QP out of range")
		return 0, false
	}
	return qp, true
}
