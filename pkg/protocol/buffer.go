package protocol

import "github.com/pkg/errors"

// BufferCapacity bounds every frame on the wire.
const BufferCapacity = 64

// Buffer is a fixed-capacity append-only byte array.
type Buffer struct {
	data [BufferCapacity]byte
	n    int
}

func (b *Buffer) Append(c byte) error {
	if b.n == len(b.data) {
		return ErrBufferFull
	}
	b.data[b.n] = c
	b.n++
	return nil
}

// IsComplete reports whether the last byte appended is the end marker.
func (b *Buffer) IsComplete() bool {
	return b.n > 0 && b.data[b.n-1] == EndMarker
}

// Bytes aliases the buffer contents until the next Reset or Append.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.n]
}

func (b *Buffer) Len() int {
	return b.n
}

func (b *Buffer) Empty() bool {
	return b.n == 0
}

func (b *Buffer) Reset() {
	b.n = 0
}

// SendBuffer holds the single outgoing frame in flight.
type SendBuffer struct {
	Buffer
}

// Load copies an encoded frame into an empty buffer. A frame that does not
// fit leaves the buffer empty.
func (s *SendBuffer) Load(frame []byte) error {
	if !s.Empty() {
		return errors.Wrap(ErrBufferFull, "frame already in flight")
	}
	for _, c := range frame {
		if err := s.Append(c); err != nil {
			s.Reset()
			return errors.Wrapf(err, "frame of %d bytes", len(frame))
		}
	}
	return nil
}

// ReceiveBuffer assembles inbound bytes into frames. Bytes outside a frame
// are ignored, a start marker before the terminator discards the partial
// frame, and a frame that outgrows the buffer is dropped whole.
type ReceiveBuffer struct {
	Buffer
	dropped int
}

// Feed appends one byte and reports whether a complete frame is ready. The
// caller must Reset after taking the frame.
func (r *ReceiveBuffer) Feed(c byte) bool {
	switch {
	case c == StartMarker:
		if !r.Empty() {
			r.dropped++
		}
		r.Reset()
		_ = r.Append(c)
		return false
	case r.Empty():
		return false
	}
	if err := r.Append(c); err != nil {
		r.dropped++
		r.Reset()
		return false
	}
	return r.IsComplete()
}

// Dropped counts partial frames discarded since creation.
func (r *ReceiveBuffer) Dropped() int {
	return r.dropped
}
