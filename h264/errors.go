package h264

import "github.com/pkg/errors"

// Errors returned by the parsers. They are wrapped with context, so test
// for them with errors.Is or errors.Cause.
var (
	ErrInvalidSPS        = errors.New("invalid sequence parameter set")
	ErrInvalidPPS        = errors.New("invalid picture parameter set")
	ErrInvalidStream     = errors.New("invalid stream")
	ErrUnsupportedStream = errors.New("unsupported stream")
)
