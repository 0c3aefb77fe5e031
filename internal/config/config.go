// Package config loads the relay configuration from the environment.
package config

import (
	"github.com/ausocean/h264rtp/h264"
	"github.com/ausocean/h264rtp/h264/packetizer"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Prefix is the prefix of every environment variable read by Load.
const Prefix = "h264rtp"

// maxPayloadLen is the largest RTP payload that fits an IPv4 UDP datagram,
// after the IP, UDP and fixed RTP headers.
const maxPayloadLen = 65535 - 20 - 8 - 12

// Config holds the relay settings.
type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8000"`
	DestAddr   string `envconfig:"DEST_ADDR" default:"127.0.0.1:5004"`

	MaxPayloadLen            int    `envconfig:"MAX_PAYLOAD_LEN" default:"1200"`
	FirstPacketReductionLen  int    `envconfig:"FIRST_PACKET_REDUCTION_LEN" default:"0"`
	LastPacketReductionLen   int    `envconfig:"LAST_PACKET_REDUCTION_LEN" default:"0"`
	SinglePacketReductionLen int    `envconfig:"SINGLE_PACKET_REDUCTION_LEN" default:"0"`
	PacketizationMode        string `envconfig:"PACKETIZATION_MODE" default:"non-interleaved"`

	PayloadType uint8  `envconfig:"PAYLOAD_TYPE" default:"96"`
	SSRC        uint32 `envconfig:"SSRC" default:"0"` // 0 picks a random SSRC.
	FrameRate   int    `envconfig:"FRAME_RATE" default:"30"`

	RewriteVUI bool `envconfig:"REWRITE_VUI" default:"true"`

	// Colour information stamped into rewritten SPS VUI when
	// ColorOverride is set.
	ColorOverride  bool  `envconfig:"COLOR_OVERRIDE" default:"false"`
	ColorPrimaries uint8 `envconfig:"COLOR_PRIMARIES" default:"2"`
	ColorTransfer  uint8 `envconfig:"COLOR_TRANSFER" default:"2"`
	ColorMatrix    uint8 `envconfig:"COLOR_MATRIX" default:"2"`
	ColorFullRange bool  `envconfig:"COLOR_FULL_RANGE" default:"false"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return Config{}, errors.Wrap(err, "could not process environment")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.MaxPayloadLen <= 0 || c.MaxPayloadLen > maxPayloadLen {
		return errors.Errorf("max payload length must be in [1, %d], got %d", maxPayloadLen, c.MaxPayloadLen)
	}
	if c.FirstPacketReductionLen < 0 || c.LastPacketReductionLen < 0 || c.SinglePacketReductionLen < 0 {
		return errors.New("packet reduction lengths must not be negative")
	}
	if _, err := c.Mode(); err != nil {
		return err
	}
	if c.PayloadType > 127 {
		return errors.Errorf("payload type must be in [0, 127], got %d", c.PayloadType)
	}
	if c.FrameRate <= 0 {
		return errors.Errorf("frame rate must be positive, got %d", c.FrameRate)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	return nil
}

// Limits returns the packet payload limits.
func (c Config) Limits() packetizer.PayloadSizeLimits {
	return packetizer.PayloadSizeLimits{
		MaxPayloadLen:            c.MaxPayloadLen,
		FirstPacketReductionLen:  c.FirstPacketReductionLen,
		LastPacketReductionLen:   c.LastPacketReductionLen,
		SinglePacketReductionLen: c.SinglePacketReductionLen,
	}
}

// Mode returns the packetization mode.
func (c Config) Mode() (packetizer.Mode, error) {
	switch c.PacketizationMode {
	case packetizer.NonInterleaved.String():
		return packetizer.NonInterleaved, nil
	case packetizer.SingleNALUnit.String():
		return packetizer.SingleNALUnit, nil
	default:
		return 0, errors.Errorf("unknown packetization mode: %q", c.PacketizationMode)
	}
}

// ColorSpace returns the colour space override, or nil if there is none.
func (c Config) ColorSpace() *h264.ColorSpace {
	if !c.ColorOverride {
		return nil
	}
	cs := &h264.ColorSpace{
		Primaries: c.ColorPrimaries,
		Transfer:  c.ColorTransfer,
		Matrix:    c.ColorMatrix,
		Range:     h264.RangeLimited,
	}
	if c.ColorFullRange {
		cs.Range = h264.RangeFull
	}
	return cs
}
