package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode matches any *DecodeError via errors.Is.
	ErrDecode = errors.New("protocol: invalid transport encoding")
	// ErrShortPayload is returned by the checked payload readers when the
	// payload is too short for the requested shape.
	ErrShortPayload = errors.New("protocol: payload too short")
	// ErrShortPacket marks a buffer that does not cover the fixed header.
	// The codec never returns it; layers reading untrusted input do.
	ErrShortPacket = errors.New("protocol: packet shorter than header")
)

// DecodeError reports a transport string that is not valid base64. No
// partial packet accompanies it.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: decode transport string: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }
