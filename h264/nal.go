package h264

// NALU types, as defined in table 7-1 in specifications.
const (
	naluTypeUnspecified = iota
	naluTypeSliceNonIDRPicture
	naluTypeSlicePartA
	naluTypeSlicePartB
	naluTypeSlicePartC
	naluTypeSliceIDRPicture
	naluTypeSEI
	naluTypeSPS
	naluTypePPS
	naluTypeAccessUnitDelimiter
	naluTypeEndOfSequence
	naluTypeEndOfStream
	naluTypeFillerData
	naluTypeSPSExtension
	naluTypePrefixNALU
	naluTypeSubsetSPS
	naluTypeDepthParamSet
	_
	_
	naluTypeSliceAux
	naluTypeSliceExtension
	naluTypeSliceExtensionDepth
)

// Exported aliases for the NAL unit types used outside the package.
const (
	TypeSlice  = naluTypeSliceNonIDRPicture
	TypeIDR    = naluTypeSliceIDRPicture
	TypeSEI    = naluTypeSEI
	TypeSPS    = naluTypeSPS
	TypePPS    = naluTypePPS
	TypeAUD    = naluTypeAccessUnitDelimiter
	TypePrefix = naluTypePrefixNALU
)

const (
	naluTypeMask = 0x1f
	naluRefMask  = 0x60
)

// Refer to ITU-T H.264 4/10/2017
// Specifies the RBSP structure in the NAL unit.
var nalUnitTypeNames = map[int]string{
	0:  "unspecified",
	1:  "coded slice of non-IDR picture",
	2:  "coded slice data partition a",
	3:  "coded slice data partition b",
	4:  "coded slice data partition c",
	5:  "coded IDR slice of picture",
	6:  "sei suppl. enhancem. info",
	7:  "sequence parameter set",
	8:  "picture parameter set",
	9:  "access unit delimiter",
	10: "end of sequence",
	11: "end of stream",
	12: "filler data",
	13: "sequence parameter set extensions",
	14: "prefix NAL unit",
	15: "subset SPS",
	16: "depth parameter set",
	19: "coded slice of aux coded pic w/o partit.",
	20: "coded slice extension",
	21: "slice ext. for depth of view or 3Davc view comp.",
}

// TypeName returns a human readable name for NAL unit type t.
func TypeName(t int) string {
	if n, ok := nalUnitTypeNames[t]; ok {
		return n
	}
	return "reserved"
}

// NALType returns nal_unit_type from a NAL unit header byte.
func NALType(header byte) int { return int(header & naluTypeMask) }

// NALRefIDC returns nal_ref_idc from a NAL unit header byte.
func NALRefIDC(header byte) int { return int(header&naluRefMask) >> 5 }

// NALUIndex locates one NAL unit in an Annex-B buffer.
type NALUIndex struct {
	// StartOffset is the offset of the start code, including the leading
	// zero byte of a 4-byte start code.
	StartOffset int

	// PayloadStartOffset is the offset of the NAL unit header.
	PayloadStartOffset int

	// PayloadSize is the NAL unit length, header included.
	PayloadSize int
}

// FindNALUIndices scans buf for 3 and 4 byte start codes and returns the
// location of every NAL unit in order. The last NAL unit extends to the end
// of buf.
func FindNALUIndices(buf []byte) []NALUIndex {
	if len(buf) < 3 {
		return nil
	}

	var idx []NALUIndex
	end := len(buf) - 3
	for i := 0; i < end; {
		switch {
		case buf[i+2] > 1:
			// No start code can end at i+2 or i+1.
			i += 3
		case buf[i+2] == 1 && buf[i+1] == 0 && buf[i] == 0:
			n := NALUIndex{StartOffset: i, PayloadStartOffset: i + 3}
			if n.StartOffset > 0 && buf[n.StartOffset-1] == 0 {
				n.StartOffset--
			}
			if l := len(idx); l > 0 {
				idx[l-1].PayloadSize = n.StartOffset - idx[l-1].PayloadStartOffset
			}
			idx = append(idx, n)
			i += 3
		default:
			i++
		}
	}

	if l := len(idx); l > 0 {
		idx[l-1].PayloadSize = len(buf) - idx[l-1].PayloadStartOffset
	}
	return idx
}

// SplitNALUs returns views of each NAL unit in buf, start codes removed.
func SplitNALUs(buf []byte) [][]byte {
	var nalus [][]byte
	for _, n := range FindNALUIndices(buf) {
		nalus = append(nalus, buf[n.PayloadStartOffset:n.PayloadStartOffset+n.PayloadSize])
	}
	return nalus
}
