package exr

import (
	"errors"
	"fmt"
)

// Sentinel errors, match with errors.Is.
var (
	ErrBadMagic                 = errors.New("not an OpenEXR file")
	ErrUnsupportedVersion       = errors.New("unsupported OpenEXR version")
	ErrMissingRequiredAttribute = errors.New("missing required attribute")
	ErrInvalidAttributeValue    = errors.New("invalid attribute value")
	ErrCorruptChunk             = errors.New("corrupt chunk")
	ErrUnsupportedChannelType   = errors.New("unsupported channel type")
	ErrUnsupportedCompression   = errors.New("unsupported compression")
	ErrOutOfOrderWrite          = errors.New("out of order write")
	ErrIncompleteCoverage       = errors.New("incomplete coverage")
	ErrOutOfRange               = errors.New("coordinate out of range")
	ErrIO                       = errors.New("i/o failure")
)

// ioError keeps both ErrIO and the source error matchable.
func ioError(err error) error {
	return fmt.Errorf("%w: %w", ErrIO, err)
}
