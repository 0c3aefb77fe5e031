package h264

import (
	"math"
	mbits "math/bits"

	"github.com/ausocean/h264rtp/h264/bits"
	"github.com/pkg/errors"
)

const (
	minPicInitQPMinus26 = -26
	maxPicInitQPMinus26 = 25
)

// PPS holds the picture parameter set fields needed to parse slice headers.
// Specification Page 46 7.3.2.2
type PPS struct {
	ID, SPSID uint32

	EntropyCodingModeFlag                 bool
	BottomFieldPicOrderInFramePresentFlag bool
	WeightedPredFlag                      bool
	RedundantPicCntPresentFlag            bool

	// Range 0 - 2.
	WeightedBipredIDC uint32

	// Range -26 - 25.
	PicInitQPMinus26 int32
}

// ParsePPS parses an escaped PPS payload, NAL unit header excluded.
func ParsePPS(payload []byte) (*PPS, error) {
	br := bits.NewBitReader(ParseRBSP(payload))
	pps := &PPS{}

	pps.ID = br.ReadExpGolomb()
	pps.SPSID = br.ReadExpGolomb()
	pps.EntropyCodingModeFlag = br.ReadBool()
	pps.BottomFieldPicOrderInFramePresentFlag = br.ReadBool()

	numSliceGroupsMinus1 := br.ReadExpGolomb()
	if numSliceGroupsMinus1 > 0 {
		switch mapType := br.ReadExpGolomb(); mapType {
		case 0:
			for i := uint32(0); i <= numSliceGroupsMinus1 && br.Ok(); i++ {
				// run_length_minus1[i].
				br.ReadExpGolomb()
			}
		case 2:
			for i := uint32(0); i < numSliceGroupsMinus1 && br.Ok(); i++ {
				// top_left[i], bottom_right[i].
				br.ReadExpGolomb()
				br.ReadExpGolomb()
			}
		case 3, 4, 5:
			// slice_group_change_direction_flag, slice_group_change_rate_minus1.
			br.ConsumeBits(1)
			br.ReadExpGolomb()
		case 6:
			picSizeInMapUnits := int64(br.ReadExpGolomb()) + 1
			// Ceil(Log2(num_slice_groups_minus1 + 1)) bits per slice_group_id.
			n := int64(mbits.Len32(numSliceGroupsMinus1))
			total := n * picSizeInMapUnits
			if !br.Ok() || total > math.MaxInt32 {
				return nil, errors.Wrapf(ErrInvalidPPS, "slice_group_id size out of range: %d bits", total)
			}
			br.ConsumeBits(int(total))
		}
	}

	// num_ref_idx_l0_default_active_minus1, num_ref_idx_l1_default_active_minus1.
	br.ReadExpGolomb()
	br.ReadExpGolomb()
	pps.WeightedPredFlag = br.ReadBool()
	pps.WeightedBipredIDC = uint32(br.ReadBits(2))

	pps.PicInitQPMinus26 = br.ReadSignedExpGolomb()
	if !br.Ok() || pps.PicInitQPMinus26 < minPicInitQPMinus26 || pps.PicInitQPMinus26 > maxPicInitQPMinus26 {
		return nil, errors.Wrapf(ErrInvalidPPS, "pic_init_qp_minus26 out of range: %d", pps.PicInitQPMinus26)
	}

	// pic_init_qs_minus26, chroma_qp_index_offset.
	br.ReadExpGolomb()
	br.ReadExpGolomb()
	// deblocking_filter_control_present_flag, constrained_intra_pred_flag.
	br.ConsumeBits(2)
	pps.RedundantPicCntPresentFlag = br.ReadBool()

	if !br.Ok() {
		return nil, errors.Wrap(ErrInvalidPPS, "truncated picture parameter set")
	}
	return pps, nil
}

// ParsePPSIDs returns pic_parameter_set_id and seq_parameter_set_id from an
// escaped PPS payload.
func ParsePPSIDs(payload []byte) (ppsID, spsID uint32, err error) {
	br := bits.NewBitReader(ParseRBSP(payload))
	ppsID = br.ReadExpGolomb()
	spsID = br.ReadExpGolomb()
	if !br.Ok() {
		return 0, 0, errors.Wrap(ErrInvalidPPS, "could not read parameter set ids")
	}
	return ppsID, spsID, nil
}

// ParsePPSIDFromSlice returns the pic_parameter_set_id referenced by an
// escaped slice payload, NAL unit header excluded.
func ParsePPSIDFromSlice(payload []byte) (uint32, error) {
	br := bits.NewBitReader(ParseRBSP(payload))
	// first_mb_in_slice, slice_type.
	br.ReadExpGolomb()
	br.ReadExpGolomb()
	id := br.ReadExpGolomb()
	if !br.Ok() {
		return 0, errors.Wrap(ErrInvalidStream, "could not read slice pic_parameter_set_id")
	}
	return id, nil
}
