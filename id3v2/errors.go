package id3v2

import (
	"errors"
	"fmt"
)

// HeaderError reports that the bytes at the expected tag position do not
// start with the "ID3" magic. Callers that want best-effort reads catch
// this and probe for an ID3v1 trailer instead.
type HeaderError struct {
	Magic [3]byte
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("id3v2: not an ID3v2 header: %q", e.Magic)
}

// UnsupportedVersionError reports a tag whose declared major version is
// outside 2.2 through 2.4.
type UnsupportedVersionError struct {
	Major, Minor byte
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("id3v2: unsupported tag version 2.%d.%d", e.Major, e.Minor)
}

// JunkFrameError marks a single frame whose payload could not be decoded
// by its specification. It is recoverable: the parser discards the frame
// and continues with the next one.
type JunkFrameError struct {
	ID    string
	cause error
}

func (e *JunkFrameError) Error() string {
	return fmt.Sprintf("id3v2: junk frame %q: %v", e.ID, e.cause)
}

func (e *JunkFrameError) Unwrap() error { return e.cause }

// ErrEncryptedFrame is the cause carried by a JunkFrameError when a
// strict decode hits a frame with the encryption flag set.
var ErrEncryptedFrame = errors.New("id3v2: encrypted frames are not supported")

// ErrCompressedFrame is the analogous cause for compressed frames.
var ErrCompressedFrame = errors.New("id3v2: compressed frames are not supported")

var errNoTerminator = errors.New("id3v2: string is not null-terminated")
