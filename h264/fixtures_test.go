package h264

import (
	"github.com/ausocean/h264rtp/h264/bits"
)

// spsParams describes an SPS to synthesise for tests. The zero value plus
// dimensions describes a baseline profile, progressive, 4:2:0 stream.
type spsParams struct {
	profile               uint8
	id                    uint32
	chromaFormat          uint32
	scalingDelta          *int32 // If set, the first 4x4 list carries this delta.
	log2MaxFrameNumMinus4 uint32
	pocType               uint32
	log2MaxPOCLSBMinus4   uint32
	pocCycle              []uint32
	maxNumRefFrames       uint32
	widthMBsMinus1        uint32
	heightMapUnitsMinus1  uint32
	interlaced            bool
	crop                  *[4]uint32
	vui                   *vuiParams
}

// vuiParams describes the VUI written after vui_parameters_present_flag.
type vuiParams struct {
	aspectIDC    *uint8
	signal       *videoSignalType
	timing       bool
	nalHRD       bool
	cpbCntMinus1 uint32
	restriction  bool
	reorder      uint32
	buffering    uint32
}

func (p spsParams) rbsp() []byte {
	bw := bits.NewBitWriter(512)
	profile := p.profile
	if profile == 0 {
		profile = 66
	}
	bw.WriteUint8(profile)
	bw.WriteUint8(0)
	bw.WriteUint8(31)
	bw.WriteExpGolomb(p.id)
	if highProfiles[profile] {
		bw.WriteExpGolomb(p.chromaFormat)
		if p.chromaFormat == 3 {
			bw.WriteBit(0)
		}
		bw.WriteExpGolomb(0)
		bw.WriteExpGolomb(0)
		bw.WriteBit(0)
		bw.WriteBool(p.scalingDelta != nil)
		if p.scalingDelta != nil {
			n := 8
			if p.chromaFormat == 3 {
				n = 12
			}
			// The first 4x4 list carries a non-zero delta then zero deltas
			// until the list ends. All other lists are absent.
			bw.WriteBit(1)
			bw.WriteSignedExpGolomb(*p.scalingDelta)
			for j := 1; j < 16; j++ {
				bw.WriteSignedExpGolomb(0)
			}
			for i := 1; i < n; i++ {
				bw.WriteBit(0)
			}
		}
	}
	bw.WriteExpGolomb(p.log2MaxFrameNumMinus4)
	bw.WriteExpGolomb(p.pocType)
	switch p.pocType {
	case 0:
		bw.WriteExpGolomb(p.log2MaxPOCLSBMinus4)
	case 1:
		bw.WriteBit(0)
		bw.WriteExpGolomb(0)
		bw.WriteExpGolomb(0)
		bw.WriteExpGolomb(uint32(len(p.pocCycle)))
		for _, v := range p.pocCycle {
			bw.WriteExpGolomb(v)
		}
	}
	bw.WriteExpGolomb(p.maxNumRefFrames)
	bw.WriteBit(0)
	bw.WriteExpGolomb(p.widthMBsMinus1)
	bw.WriteExpGolomb(p.heightMapUnitsMinus1)
	bw.WriteBool(!p.interlaced)
	if p.interlaced {
		bw.WriteBit(0)
	}
	bw.WriteBit(1)
	bw.WriteBool(p.crop != nil)
	if p.crop != nil {
		for _, c := range p.crop {
			bw.WriteExpGolomb(c)
		}
	}
	bw.WriteBool(p.vui != nil)
	if p.vui != nil {
		p.vui.write(bw)
	}
	// rbsp_trailing_bits.
	bw.WriteBit(1)
	bw.AlignZero()
	if bw.Err() != nil {
		panic(bw.Err())
	}
	return bw.Bytes()
}

// payload returns the escaped SPS payload, NAL unit header excluded.
func (p spsParams) payload() []byte { return WriteRBSP(p.rbsp()) }

func (v *vuiParams) write(bw *bits.BitWriter) {
	bw.WriteBool(v.aspectIDC != nil)
	if v.aspectIDC != nil {
		bw.WriteUint8(*v.aspectIDC)
		if *v.aspectIDC == 255 {
			bw.WriteBits(0x00100009, 32)
		}
	}
	// overscan_info_present_flag.
	bw.WriteBit(0)
	if v.signal != nil {
		v.signal.write(bw)
	} else {
		bw.WriteBit(0)
	}
	// chroma_loc_info_present_flag.
	bw.WriteBit(0)
	bw.WriteBool(v.timing)
	if v.timing {
		bw.WriteBits(1, 32)
		bw.WriteBits(60, 32)
		bw.WriteBit(1)
	}
	bw.WriteBool(v.nalHRD)
	if v.nalHRD {
		bw.WriteExpGolomb(v.cpbCntMinus1)
		bw.WriteBits(0x42, 8)
		for i := uint32(0); i <= v.cpbCntMinus1; i++ {
			bw.WriteExpGolomb(1000 + i)
			bw.WriteExpGolomb(2000 + i)
			bw.WriteBit(1)
		}
		bw.WriteBits(0xbeef5, 20)
	}
	// vcl_hrd_parameters_present_flag.
	bw.WriteBit(0)
	if v.nalHRD {
		// low_delay_hrd_flag.
		bw.WriteBit(0)
	}
	// pic_struct_present_flag.
	bw.WriteBit(0)
	bw.WriteBool(v.restriction)
	if v.restriction {
		bw.WriteBit(1)
		bw.WriteExpGolomb(2)
		bw.WriteExpGolomb(1)
		bw.WriteExpGolomb(16)
		bw.WriteExpGolomb(16)
		bw.WriteExpGolomb(v.reorder)
		bw.WriteExpGolomb(v.buffering)
	}
}

// ppsParams describes a PPS to synthesise for tests.
type ppsParams struct {
	id, spsID          uint32
	entropy            bool
	bottomField        bool
	numSliceGroupsM1   uint32
	sliceGroupMapType  uint32
	picSizeInMapUnitM1 uint32
	weightedPred       bool
	weightedBipred     uint32
	picInitQPMinus26   int32
	redundantPicCnt    bool
}

func (p ppsParams) payload() []byte {
	bw := bits.NewBitWriter(256)
	bw.WriteExpGolomb(p.id)
	bw.WriteExpGolomb(p.spsID)
	bw.WriteBool(p.entropy)
	bw.WriteBool(p.bottomField)
	bw.WriteExpGolomb(p.numSliceGroupsM1)
	if p.numSliceGroupsM1 > 0 {
		bw.WriteExpGolomb(p.sliceGroupMapType)
		switch p.sliceGroupMapType {
		case 0:
			for i := uint32(0); i <= p.numSliceGroupsM1; i++ {
				bw.WriteExpGolomb(3)
			}
		case 2:
			for i := uint32(0); i < p.numSliceGroupsM1; i++ {
				bw.WriteExpGolomb(0)
				bw.WriteExpGolomb(10)
			}
		case 3, 4, 5:
			bw.WriteBit(1)
			bw.WriteExpGolomb(4)
		case 6:
			bw.WriteExpGolomb(p.picSizeInMapUnitM1)
			n := 0
			for (1 << uint(n)) < p.numSliceGroupsM1+1 {
				n++
			}
			for i := uint32(0); i <= p.picSizeInMapUnitM1; i++ {
				bw.WriteBits(uint64(i)%uint64(p.numSliceGroupsM1+1), n)
			}
		}
	}
	bw.WriteExpGolomb(0)
	bw.WriteExpGolomb(0)
	bw.WriteBool(p.weightedPred)
	bw.WriteBits(uint64(p.weightedBipred), 2)
	bw.WriteSignedExpGolomb(p.picInitQPMinus26)
	bw.WriteSignedExpGolomb(0)
	bw.WriteSignedExpGolomb(0)
	bw.WriteBit(1)
	bw.WriteBit(0)
	bw.WriteBool(p.redundantPicCnt)
	bw.WriteBit(1)
	bw.AlignZero()
	if bw.Err() != nil {
		panic(bw.Err())
	}
	return WriteRBSP(bw.Bytes())
}

// sliceParams describes a slice header to synthesise for tests. The header
// is written to match the syntax selected by sps and pps.
type sliceParams struct {
	nalType   int
	refIDC    int
	firstMB   uint32
	sliceType uint32
	qpDelta   int32
	override  bool
	reorderL0 bool
	mmco      bool
}

func (s sliceParams) nalu(sps *SPS, pps *PPS) []byte {
	bw := bits.NewBitWriter(256)
	bw.WriteBits(uint64(s.refIDC<<5|s.nalType), 8)
	bw.WriteExpGolomb(s.firstMB)
	bw.WriteExpGolomb(s.sliceType)
	bw.WriteExpGolomb(pps.ID)
	bw.WriteBits(0, int(sps.Log2MaxFrameNum))
	if !sps.FrameMBSOnlyFlag {
		bw.WriteBit(0)
	}
	if s.nalType == naluTypeSliceIDRPicture {
		bw.WriteExpGolomb(0)
	}
	if sps.PicOrderCntType == 0 {
		bw.WriteBits(2, int(sps.Log2MaxPicOrderCntLSB))
		if pps.BottomFieldPicOrderInFramePresentFlag {
			bw.WriteExpGolomb(0)
		}
	}
	if pps.RedundantPicCntPresentFlag {
		bw.WriteExpGolomb(0)
	}
	typ := s.sliceType % 5
	if typ == sliceTypeB {
		bw.WriteBit(1)
	}
	if typ == sliceTypeP || typ == sliceTypeB || typ == sliceTypeSP {
		bw.WriteBool(s.override)
		if s.override {
			bw.WriteExpGolomb(1)
			if typ == sliceTypeB {
				bw.WriteExpGolomb(1)
			}
		}
	}
	if typ != sliceTypeI && typ != sliceTypeSI {
		bw.WriteBool(s.reorderL0)
		if s.reorderL0 {
			bw.WriteExpGolomb(0)
			bw.WriteExpGolomb(4)
			bw.WriteExpGolomb(2)
			bw.WriteExpGolomb(1)
			bw.WriteExpGolomb(3)
		}
	}
	if typ == sliceTypeB {
		bw.WriteBit(0)
	}
	if s.refIDC != 0 {
		if s.nalType == naluTypeSliceIDRPicture {
			bw.WriteBits(0, 2)
		} else {
			bw.WriteBool(s.mmco)
			if s.mmco {
				bw.WriteExpGolomb(1)
				bw.WriteExpGolomb(7)
				bw.WriteExpGolomb(3)
				bw.WriteExpGolomb(1)
				bw.WriteExpGolomb(2)
				bw.WriteExpGolomb(0)
			}
		}
	}
	if pps.EntropyCodingModeFlag && typ != sliceTypeI && typ != sliceTypeSI {
		bw.WriteExpGolomb(0)
	}
	bw.WriteSignedExpGolomb(s.qpDelta)
	// Slice data stand-in.
	bw.WriteBits(0xa5a5a5a5, 32)
	bw.WriteBit(1)
	bw.AlignZero()
	if bw.Err() != nil {
		panic(bw.Err())
	}
	return WriteRBSP(bw.Bytes())
}

// annexB joins NAL units with 4 byte start codes.
func annexB(nalus ...[]byte) []byte {
	var b []byte
	for _, n := range nalus {
		b = append(b, 0, 0, 0, 1)
		b = append(b, n...)
	}
	return b
}

// withHeader prefixes payload with a NAL unit header.
func withHeader(typ, refIDC int, payload []byte) []byte {
	return append([]byte{byte(refIDC<<5 | typ)}, payload...)
}

func int32p(v int32) *int32 { return &v }
func uint8p(v uint8) *uint8 { return &v }
