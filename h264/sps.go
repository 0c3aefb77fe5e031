package h264

import (
	"github.com/ausocean/h264rtp/h264/bits"
	"github.com/pkg/errors"
)

const (
	chroma400 = iota
	chroma420
	chroma422
	chroma444
)

const (
	// maxLog2Minus4 bounds log2_max_frame_num_minus4 and
	// log2_max_pic_order_cnt_lsb_minus4.
	maxLog2Minus4 = 28

	scalingDeltaMin = -128
	scalingDeltaMax = 127
)

// Profiles carrying chroma format, bit depth and scaling matrix syntax.
var highProfiles = map[uint8]bool{
	100: true, 110: true, 122: true, 244: true, 44: true, 83: true,
	86: true, 118: true, 128: true, 138: true, 139: true, 134: true,
}

// SPS holds the sequence parameter set fields needed to parse slice headers
// and to rewrite VUI parameters.
// Specification Page 43 7.3.2.1.1
type SPS struct {
	ProfileIDC      uint8
	LevelIDC        uint8
	ID              uint32
	ChromaFormatIDC uint32

	// Frame size in pixels with cropping applied.
	Width, Height int

	SeparateColourPlaneFlag     bool
	FrameMBSOnlyFlag            bool
	DeltaPicOrderAlwaysZeroFlag bool
	VUIParamsPresent            bool

	// Range 4 - 32.
	Log2MaxFrameNum       uint32
	Log2MaxPicOrderCntLSB uint32

	// Range 0 - 2.
	PicOrderCntType uint32
	MaxNumRefFrames uint32
}

// ParseSPS parses an escaped SPS payload, NAL unit header excluded.
func ParseSPS(payload []byte) (*SPS, error) {
	return parseSPSUpToVUI(bits.NewBitReader(ParseRBSP(payload)))
}

// parseSPSUpToVUI reads the SPS syntax up to and including
// vui_parameters_present_flag, leaving br positioned at the VUI parameters.
func parseSPSUpToVUI(br *bits.BitReader) (*SPS, error) {
	sps := &SPS{ChromaFormatIDC: chroma420}

	sps.ProfileIDC = br.ReadUint8()
	// constraint_set0-5_flag, reserved_zero_2bits.
	br.ConsumeBits(8)
	sps.LevelIDC = br.ReadUint8()
	sps.ID = br.ReadExpGolomb()

	if highProfiles[sps.ProfileIDC] {
		sps.ChromaFormatIDC = br.ReadExpGolomb()
		if sps.ChromaFormatIDC == chroma444 {
			sps.SeparateColourPlaneFlag = br.ReadBool()
		}
		// bit_depth_luma_minus8, bit_depth_chroma_minus8.
		br.ReadExpGolomb()
		br.ReadExpGolomb()
		// qpprime_y_zero_transform_bypass_flag.
		br.ConsumeBits(1)

		if br.ReadBool() { // seq_scaling_matrix_present_flag
			n := 8
			if sps.ChromaFormatIDC == chroma444 {
				n = 12
			}
			for i := 0; i < n; i++ {
				if !br.ReadBool() { // seq_scaling_list_present_flag
					continue
				}
				size := 16
				if i >= 6 {
					size = 64
				}
				if err := skipScalingList(br, size); err != nil {
					return nil, err
				}
			}
		}
	}

	v := br.ReadExpGolomb()
	if v > maxLog2Minus4 {
		return nil, errors.Wrapf(ErrInvalidSPS, "log2_max_frame_num_minus4 out of range: %d", v)
	}
	sps.Log2MaxFrameNum = v + 4

	sps.PicOrderCntType = br.ReadExpGolomb()
	switch sps.PicOrderCntType {
	case 0:
		v = br.ReadExpGolomb()
		if v > maxLog2Minus4 {
			return nil, errors.Wrapf(ErrInvalidSPS, "log2_max_pic_order_cnt_lsb_minus4 out of range: %d", v)
		}
		sps.Log2MaxPicOrderCntLSB = v + 4
	case 1:
		sps.DeltaPicOrderAlwaysZeroFlag = br.ReadBool()
		// offset_for_non_ref_pic, offset_for_top_to_bottom_field.
		br.ReadExpGolomb()
		br.ReadExpGolomb()
		n := br.ReadExpGolomb()
		for i := uint32(0); i < n; i++ {
			// offset_for_ref_frame[i].
			br.ReadExpGolomb()
			if !br.Ok() {
				return nil, errors.Wrap(ErrInvalidSPS, "truncated offset_for_ref_frame")
			}
		}
	}

	sps.MaxNumRefFrames = br.ReadExpGolomb()
	// gaps_in_frame_num_value_allowed_flag.
	br.ConsumeBits(1)

	picWidthInMBSMinus1 := br.ReadExpGolomb()
	picHeightInMapUnitsMinus1 := br.ReadExpGolomb()
	sps.FrameMBSOnlyFlag = br.ReadBool()
	if !sps.FrameMBSOnlyFlag {
		// mb_adaptive_frame_field_flag.
		br.ConsumeBits(1)
	}
	// direct_8x8_inference_flag.
	br.ConsumeBits(1)

	var cropLeft, cropRight, cropTop, cropBottom uint32
	if br.ReadBool() { // frame_cropping_flag
		cropLeft = br.ReadExpGolomb()
		cropRight = br.ReadExpGolomb()
		cropTop = br.ReadExpGolomb()
		cropBottom = br.ReadExpGolomb()
	}
	sps.VUIParamsPresent = br.ReadBool()

	if !br.Ok() {
		return nil, errors.Wrap(ErrInvalidSPS, "truncated sequence parameter set")
	}

	// Crop offsets are in chroma sample units.
	fieldFactor := uint32(2)
	if sps.FrameMBSOnlyFlag {
		fieldFactor = 1
	}
	switch {
	case sps.SeparateColourPlaneFlag || sps.ChromaFormatIDC == chroma400:
		cropTop *= fieldFactor
		cropBottom *= fieldFactor
	case sps.ChromaFormatIDC == chroma420:
		cropLeft *= 2
		cropRight *= 2
		cropTop *= 2
		cropBottom *= 2
	case sps.ChromaFormatIDC == chroma422:
		cropLeft *= 2
		cropRight *= 2
	}

	sps.Width = 16*(int(picWidthInMBSMinus1)+1) - int(cropLeft) - int(cropRight)
	sps.Height = 16*int(fieldFactor)*(int(picHeightInMapUnitsMinus1)+1) - int(cropTop) - int(cropBottom)
	return sps, nil
}

// skipScalingList consumes a scaling_list() structure of the given size.
// Section 7.3.2.1.1.1
func skipScalingList(br *bits.BitReader, size int) error {
	lastScale, nextScale := int32(8), int32(8)
	for j := 0; j < size; j++ {
		if nextScale != 0 {
			delta := br.ReadSignedExpGolomb()
			if !br.Ok() || delta < scalingDeltaMin || delta > scalingDeltaMax {
				return errors.Wrapf(ErrInvalidSPS, "bad delta_scale: %d", delta)
			}
			nextScale = (lastScale + delta + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
	return nil
}
