package h264

// ColorRange is the sample value range of a colour space.
type ColorRange int

// Colour ranges.
const (
	RangeInvalid ColorRange = iota
	RangeLimited
	RangeFull
	RangeDerived
)

// Unspecified value for colour_primaries, transfer_characteristics and
// matrix_coefficients. Table E-3, E-4 and E-5.
const colourUnspecified = 2

// Unspecified value for video_format. Table E-2.
const videoFormatUnspecified = 5

// ColorSpace describes the colour metadata to stamp into the VUI of
// outgoing sequence parameter sets. Primaries, Transfer and Matrix take the
// code points of tables E-3, E-4 and E-5.
type ColorSpace struct {
	Primaries uint8
	Transfer  uint8
	Matrix    uint8
	Range     ColorRange
}

// IsDefault reports whether cs carries no information beyond what a decoder
// assumes when no video signal type is signalled.
func (cs ColorSpace) IsDefault() bool {
	return cs.Range != RangeFull &&
		cs.Primaries == colourUnspecified &&
		cs.Transfer == colourUnspecified &&
		cs.Matrix == colourUnspecified
}
