package protocol

import "github.com/pkg/errors"

var (
	ErrMalformed    = errors.New("malformed frame")
	ErrUnknownType  = errors.New("unknown message type")
	ErrFieldCount   = errors.New("wrong field count")
	ErrInvalidField = errors.New("invalid field")
	ErrBufferFull   = errors.New("buffer full")
)

// IsFrameError reports whether err came from decoding a frame, as opposed to
// a buffer or encoding problem.
func IsFrameError(err error) bool {
	return errors.Is(err, ErrMalformed) || errors.Is(err, ErrUnknownType) || errors.Is(err, ErrFieldCount)
}
