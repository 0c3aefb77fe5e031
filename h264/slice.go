package h264

import (
	"github.com/ausocean/h264rtp/h264/bits"
	"github.com/pkg/errors"
)

// Slice types, modulo 5. Table 7-6
const (
	sliceTypeP = iota
	sliceTypeB
	sliceTypeI
	sliceTypeSP
	sliceTypeSI
)

// maxAbsQPDelta bounds slice_qp_delta.
const maxAbsQPDelta = 51

// ParseSliceQPDelta parses the slice header of an escaped slice NAL unit,
// header byte included, and returns slice_qp_delta. The active sps and pps
// provide the context the slice header syntax depends on.
//
// The returned error wraps ErrInvalidStream for malformed or truncated
// headers, and ErrUnsupportedStream for syntax that is not parsed, such as
// slice extensions and explicit weighted prediction tables.
// Specification Page 50 7.3.3
func ParseSliceQPDelta(nalu []byte, sps *SPS, pps *PPS) (int32, error) {
	if sps == nil || pps == nil {
		return 0, errors.Wrap(ErrInvalidStream, "no active parameter sets")
	}
	if len(nalu) < 1 {
		return 0, errors.Wrap(ErrInvalidStream, "empty NAL unit")
	}

	nalType := NALType(nalu[0])
	isIDR := nalType == naluTypeSliceIDRPicture
	refIDC := NALRefIDC(nalu[0])

	br := bits.NewBitReader(ParseRBSP(nalu))
	// NAL unit header.
	br.ConsumeBits(8)

	// first_mb_in_slice.
	br.ReadExpGolomb()
	sliceType := br.ReadExpGolomb() % 5
	// pic_parameter_set_id.
	br.ReadExpGolomb()
	if sps.SeparateColourPlaneFlag {
		// colour_plane_id.
		br.ConsumeBits(2)
	}
	// frame_num.
	br.ConsumeBits(int(sps.Log2MaxFrameNum))

	fieldPic := false
	if !sps.FrameMBSOnlyFlag {
		fieldPic = br.ReadBool()
		if fieldPic {
			// bottom_field_flag.
			br.ConsumeBits(1)
		}
	}
	if isIDR {
		// idr_pic_id.
		br.ReadExpGolomb()
	}

	switch {
	case sps.PicOrderCntType == 0:
		// pic_order_cnt_lsb.
		br.ConsumeBits(int(sps.Log2MaxPicOrderCntLSB))
		if pps.BottomFieldPicOrderInFramePresentFlag && !fieldPic {
			// delta_pic_order_cnt_bottom.
			br.ReadExpGolomb()
		}
	case sps.PicOrderCntType == 1 && !sps.DeltaPicOrderAlwaysZeroFlag:
		// delta_pic_order_cnt[0].
		br.ReadExpGolomb()
		if pps.BottomFieldPicOrderInFramePresentFlag && !fieldPic {
			// delta_pic_order_cnt[1].
			br.ReadExpGolomb()
		}
	}

	if pps.RedundantPicCntPresentFlag {
		// redundant_pic_cnt.
		br.ReadExpGolomb()
	}
	if sliceType == sliceTypeB {
		// direct_spatial_mv_pred_flag.
		br.ConsumeBits(1)
	}
	switch sliceType {
	case sliceTypeP, sliceTypeB, sliceTypeSP:
		if br.ReadBool() { // num_ref_idx_active_override_flag
			// num_ref_idx_l0_active_minus1.
			br.ReadExpGolomb()
			if sliceType == sliceTypeB {
				// num_ref_idx_l1_active_minus1.
				br.ReadExpGolomb()
			}
		}
	}
	if !br.Ok() {
		return 0, errors.Wrap(ErrInvalidStream, "truncated slice header")
	}

	if nalType == naluTypeSliceExtension || nalType == naluTypeSliceExtensionDepth {
		return 0, errors.Wrapf(ErrUnsupportedStream, "ref_pic_list_mvc_modification for %s", TypeName(nalType))
	}

	// ref_pic_list_modification(). 7.3.3.1
	if sliceType != sliceTypeI && sliceType != sliceTypeSI {
		skipRefPicListModification(br)
	}
	if sliceType == sliceTypeB {
		skipRefPicListModification(br)
	}
	if !br.Ok() {
		return 0, errors.Wrap(ErrInvalidStream, "truncated ref_pic_list_modification")
	}

	if (pps.WeightedPredFlag && (sliceType == sliceTypeP || sliceType == sliceTypeSP)) ||
		(pps.WeightedBipredIDC == 1 && sliceType == sliceTypeB) {
		return 0, errors.Wrap(ErrUnsupportedStream, "pred_weight_table")
	}

	// dec_ref_pic_marking(). 7.3.3.3
	if refIDC != 0 {
		if isIDR {
			// no_output_of_prior_pics_flag, long_term_reference_flag.
			br.ConsumeBits(2)
		} else if br.ReadBool() { // adaptive_ref_pic_marking_mode_flag
			skipMemoryManagementControl(br)
		}
	}

	if pps.EntropyCodingModeFlag && sliceType != sliceTypeI && sliceType != sliceTypeSI {
		// cabac_init_idc.
		br.ReadExpGolomb()
	}

	delta := br.ReadSignedExpGolomb()
	if !br.Ok() {
		return 0, errors.Wrap(ErrInvalidStream, "could not read slice_qp_delta")
	}
	if delta > maxAbsQPDelta || delta < -maxAbsQPDelta {
		return 0, errors.Wrapf(ErrInvalidStream, "slice_qp_delta out of range: %d", delta)
	}
	return delta, nil
}

// skipRefPicListModification consumes one list of ref_pic_list_modification
// syntax.
func skipRefPicListModification(br *bits.BitReader) {
	if !br.ReadBool() { // ref_pic_list_modification_flag_lX
		return
	}
	for br.Ok() {
		idc := br.ReadExpGolomb() // modification_of_pic_nums_idc
		switch idc {
		case 0, 1:
			// abs_diff_pic_num_minus1.
			br.ReadExpGolomb()
		case 2:
			// long_term_pic_num.
			br.ReadExpGolomb()
		case 3:
			return
		}
	}
}

// skipMemoryManagementControl consumes memory_management_control_operation
// entries up to and including the terminating zero.
func skipMemoryManagementControl(br *bits.BitReader) {
	for br.Ok() {
		op := br.ReadExpGolomb()
		if op == 0 {
			return
		}
		if op == 1 || op == 3 {
			// difference_of_pic_nums_minus1.
			br.ReadExpGolomb()
		}
		if op == 2 {
			// long_term_pic_num.
			br.ReadExpGolomb()
		}
		if op == 3 || op == 6 {
			// long_term_frame_idx.
			br.ReadExpGolomb()
		}
		if op == 4 {
			// max_long_term_frame_idx_plus1.
			br.ReadExpGolomb()
		}
	}
}
