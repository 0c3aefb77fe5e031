package h264

import (
	"github.com/ausocean/h264rtp/h264/bits"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// VUIResult is the outcome of ParseAndRewriteSPS.
type VUIResult int

// Results of ParseAndRewriteSPS.
const (
	VUIFailure VUIResult = iota
	VUIOk
	VUIRewritten
)

func (r VUIResult) String() string {
	switch r {
	case VUIOk:
		return "ok"
	case VUIRewritten:
		return "rewritten"
	default:
		return "failure"
	}
}

// maxVUISPSIncrease is the most a rewritten SPS may grow by, in bytes.
const maxVUISPSIncrease = 64

// maxCPBCntMinus1 bounds cpb_cnt_minus1. Section E.2.2
const maxCPBCntMinus1 = 31

// ParseAndRewriteSPS parses an escaped SPS payload, NAL unit header
// excluded, and rewrites its VUI so that decoders neither reorder nor buffer
// frames beyond the reference frames. If cs is not nil its colour
// information is stamped into the video signal type.
//
// On VUIOk the returned buffer is payload itself. On VUIRewritten it is the
// escaped replacement payload. On VUIFailure sps and the buffer are nil.
func ParseAndRewriteSPS(payload []byte, cs *ColorSpace) (VUIResult, *SPS, []byte) {
	rbsp := ParseRBSP(payload)
	src := bits.NewBitReader(rbsp)
	sps, err := parseSPSUpToVUI(src)
	if err != nil {
		logger.WithError(err).Debug("could not parse SPS for VUI rewrite")
		return VUIFailure, nil, nil
	}

	dst := bits.NewBitWriter(len(rbsp) + maxVUISPSIncrease)

	// Copy everything before vui_parameters_present_flag.
	prefix := len(rbsp)*8 - src.RemainingBitCount() - 1
	copyBits(bits.NewBitReader(rbsp), dst, prefix)

	res, err := copyAndRewriteVUI(sps, src, dst, cs)
	if err == nil && !src.Ok() {
		err = errors.Wrap(ErrInvalidSPS, "truncated VUI parameters")
	}
	if err == nil {
		err = dst.Err()
	}
	if err != nil {
		logger.WithError(err).Debug("could not rewrite VUI")
		return VUIFailure, nil, nil
	}
	if res == VUIOk {
		return VUIOk, sps, payload
	}

	copyRemainingBits(src, dst)
	dst.AlignZero()
	if err := dst.Err(); err != nil {
		logger.WithError(err).Debug("could not copy SPS trailing bits")
		return VUIFailure, nil, nil
	}
	return VUIRewritten, sps, WriteRBSP(dst.Bytes())
}

// copyAndRewriteVUI writes vui_parameters_present_flag and a VUI to dst,
// taking the VUI from src when the SPS carries one. Section E.1.1
func copyAndRewriteVUI(sps *SPS, src *bits.BitReader, dst *bits.BitWriter, cs *ColorSpace) (VUIResult, error) {
	// vui_parameters_present_flag.
	dst.WriteBit(1)

	if !sps.VUIParamsPresent {
		// aspect_ratio_info_present_flag, overscan_info_present_flag.
		dst.WriteBits(0, 2)
		overrideVideoSignalType(cs, videoSignalType{}).write(dst)
		// chroma_loc_info_present_flag, timing_info_present_flag,
		// nal_hrd_parameters_present_flag, vcl_hrd_parameters_present_flag,
		// pic_struct_present_flag.
		dst.WriteBits(0, 5)
		// bitstream_restriction_flag.
		dst.WriteBit(1)
		addBitstreamRestriction(dst, sps.MaxNumRefFrames)
		return VUIRewritten, nil
	}

	res := VUIOk

	if copyBits(src, dst, 1) == 1 { // aspect_ratio_info_present_flag
		// aspect_ratio_idc, Extended_SAR.
		if copyBits(src, dst, 8) == 255 {
			// sar_width, sar_height.
			copyBits(src, dst, 32)
		}
	}
	if copyBits(src, dst, 1) == 1 { // overscan_info_present_flag
		// overscan_appropriate_flag.
		copyBits(src, dst, 1)
	}

	orig := readVideoSignalType(src)
	vst := overrideVideoSignalType(cs, orig)
	vst.write(dst)
	if vst != orig {
		res = VUIRewritten
	}

	if copyBits(src, dst, 1) == 1 { // chroma_loc_info_present_flag
		// chroma_sample_loc_type_top_field, chroma_sample_loc_type_bottom_field.
		copyExpGolomb(src, dst)
		copyExpGolomb(src, dst)
	}
	if copyBits(src, dst, 1) == 1 { // timing_info_present_flag
		// num_units_in_tick, time_scale, fixed_frame_rate_flag.
		copyBits(src, dst, 32)
		copyBits(src, dst, 32)
		copyBits(src, dst, 1)
	}

	nalHRD := copyBits(src, dst, 1) == 1
	if nalHRD {
		if err := copyHRDParameters(src, dst); err != nil {
			return VUIFailure, err
		}
	}
	vclHRD := copyBits(src, dst, 1) == 1
	if vclHRD {
		if err := copyHRDParameters(src, dst); err != nil {
			return VUIFailure, err
		}
	}
	if nalHRD || vclHRD {
		// low_delay_hrd_flag.
		copyBits(src, dst, 1)
	}
	// pic_struct_present_flag.
	copyBits(src, dst, 1)

	restriction := src.ReadBool()
	dst.WriteBit(1)
	if !restriction {
		addBitstreamRestriction(dst, sps.MaxNumRefFrames)
		return VUIRewritten, nil
	}

	// motion_vectors_over_pic_boundaries_flag.
	copyBits(src, dst, 1)
	// max_bytes_per_pic_denom, max_bits_per_mb_denom,
	// log2_max_mv_length_horizontal, log2_max_mv_length_vertical.
	for i := 0; i < 4; i++ {
		copyExpGolomb(src, dst)
	}
	reorder := src.ReadExpGolomb()
	buffering := src.ReadExpGolomb()
	newBuffering := buffering
	if newBuffering < sps.MaxNumRefFrames {
		newBuffering = sps.MaxNumRefFrames
	}
	dst.WriteExpGolomb(0)
	dst.WriteExpGolomb(newBuffering)
	if reorder != 0 || newBuffering != buffering {
		res = VUIRewritten
	}
	return res, nil
}

// addBitstreamRestriction writes the bitstream restriction fields that
// follow a bitstream_restriction_flag of 1.
func addBitstreamRestriction(dst *bits.BitWriter, maxNumRefFrames uint32) {
	// motion_vectors_over_pic_boundaries_flag.
	dst.WriteBit(1)
	// max_bytes_per_pic_denom.
	dst.WriteExpGolomb(2)
	// max_bits_per_mb_denom.
	dst.WriteExpGolomb(1)
	// log2_max_mv_length_horizontal, log2_max_mv_length_vertical.
	dst.WriteExpGolomb(16)
	dst.WriteExpGolomb(16)
	// max_num_reorder_frames.
	dst.WriteExpGolomb(0)
	// max_dec_frame_buffering.
	dst.WriteExpGolomb(maxNumRefFrames)
}

// copyHRDParameters copies hrd_parameters(). Section E.1.2
func copyHRDParameters(src *bits.BitReader, dst *bits.BitWriter) error {
	cpbCntMinus1 := copyExpGolomb(src, dst)
	if cpbCntMinus1 > maxCPBCntMinus1 {
		return errors.Wrapf(ErrInvalidSPS, "cpb_cnt_minus1 out of range: %d", cpbCntMinus1)
	}
	// bit_rate_scale, cpb_size_scale.
	copyBits(src, dst, 8)
	for i := uint32(0); i <= cpbCntMinus1 && src.Ok(); i++ {
		// bit_rate_value_minus1, cpb_size_value_minus1, cbr_flag.
		copyExpGolomb(src, dst)
		copyExpGolomb(src, dst)
		copyBits(src, dst, 1)
	}
	// initial_cpb_removal_delay_length_minus1,
	// cpb_removal_delay_length_minus1, dpb_output_delay_length_minus1,
	// time_offset_length.
	copyBits(src, dst, 20)
	return nil
}

// videoSignalType holds the video signal type fields of the VUI. Fields not
// signalled carry their inferred values.
type videoSignalType struct {
	present           bool
	format            uint8
	fullRange         bool
	colourDescription bool
	primaries         uint8
	transfer          uint8
	matrix            uint8
}

func defaultVideoSignalType() videoSignalType {
	return videoSignalType{
		format:    videoFormatUnspecified,
		primaries: colourUnspecified,
		transfer:  colourUnspecified,
		matrix:    colourUnspecified,
	}
}

func readVideoSignalType(src *bits.BitReader) videoSignalType {
	v := defaultVideoSignalType()
	v.present = src.ReadBool()
	if !v.present {
		return v
	}
	v.format = uint8(src.ReadBits(3))
	v.fullRange = src.ReadBool()
	v.colourDescription = src.ReadBool()
	if v.colourDescription {
		v.primaries = src.ReadUint8()
		v.transfer = src.ReadUint8()
		v.matrix = src.ReadUint8()
	}
	return v
}

// overrideVideoSignalType returns orig with cs applied. A nil cs leaves orig
// unchanged.
func overrideVideoSignalType(cs *ColorSpace, orig videoSignalType) videoSignalType {
	if cs == nil {
		return orig
	}
	v := defaultVideoSignalType()
	if cs.IsDefault() {
		return v
	}
	v.present = true
	v.fullRange = cs.Range == RangeFull
	v.colourDescription = true
	v.primaries = cs.Primaries
	v.transfer = cs.Transfer
	v.matrix = cs.Matrix
	return v
}

// write writes video_signal_type_present_flag and the fields it guards.
func (v videoSignalType) write(dst *bits.BitWriter) {
	dst.WriteBool(v.present)
	if !v.present {
		return
	}
	dst.WriteBits(uint64(v.format), 3)
	dst.WriteBool(v.fullRange)
	dst.WriteBool(v.colourDescription)
	if v.colourDescription {
		dst.WriteUint8(v.primaries)
		dst.WriteUint8(v.transfer)
		dst.WriteUint8(v.matrix)
	}
}

// copyBits copies n bits from src to dst and returns them. Values wider
// than 32 bits are copied in parts, in which case the low part is returned.
func copyBits(src *bits.BitReader, dst *bits.BitWriter, n int) uint64 {
	var v uint64
	for n > 0 {
		c := n
		if c > 32 {
			c = 32
		}
		v = src.ReadBits(c)
		dst.WriteBits(v, c)
		n -= c
	}
	return v
}

func copyExpGolomb(src *bits.BitReader, dst *bits.BitWriter) uint32 {
	v := src.ReadExpGolomb()
	dst.WriteExpGolomb(v)
	return v
}

// copyRemainingBits copies the rest of src to dst, first bringing src to a
// byte boundary.
func copyRemainingBits(src *bits.BitReader, dst *bits.BitWriter) {
	if r := src.RemainingBitCount(); r > 0 && r%8 != 0 {
		copyBits(src, dst, r%8)
	}
	if r := src.RemainingBitCount(); r > 0 {
		copyBits(src, dst, r)
	}
}

// VUIStats counts the results of SPS rewrites.
type VUIStats struct {
	Ok        int
	Rewritten int
	Failed    int
}

func (s *VUIStats) add(r VUIResult) {
	if s == nil {
		return
	}
	switch r {
	case VUIOk:
		s.Ok++
	case VUIRewritten:
		s.Rewritten++
	default:
		s.Failed++
	}
}

// RewriteOutgoingBitstream rewrites the VUI of every SPS in an Annex-B
// buffer and drops access unit delimiters. Other NAL units are copied with
// their original start codes. Results are counted in stats, which may be
// nil.
func RewriteOutgoingBitstream(annexB []byte, cs *ColorSpace, stats *VUIStats) []byte {
	idx := FindNALUIndices(annexB)
	out := make([]byte, 0, len(annexB)+len(idx)*maxVUISPSIncrease)

	for _, n := range idx {
		startCode := annexB[n.StartOffset:n.PayloadStartOffset]
		nalu := annexB[n.PayloadStartOffset : n.PayloadStartOffset+n.PayloadSize]
		if len(nalu) == 0 {
			out = append(out, startCode...)
			continue
		}

		switch NALType(nalu[0]) {
		case naluTypeAccessUnitDelimiter:
			continue
		case naluTypeSPS:
			res, _, rewritten := ParseAndRewriteSPS(nalu[1:], cs)
			stats.add(res)
			if res == VUIRewritten {
				out = append(out, startCode...)
				out = append(out, nalu[0])
				out = append(out, rewritten...)
				logger.WithFields(logrus.Fields{"before": len(nalu), "after": len(rewritten) + 1}).Debug("rewrote SPS VUI")
				continue
			}
		}
		out = append(out, startCode...)
		out = append(out, nalu...)
	}
	return out
}
