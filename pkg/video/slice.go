package video

import (
	"context"
	"io"
	"sync"
)

// SliceSource replays frames held in memory. Once the frames are exhausted it
// returns Err, or io.EOF when Err is nil.
type SliceSource struct {
	Err error

	mu     sync.Mutex
	frames []Frame
	pos    int
	closed bool
}

// NewSliceSource creates a source over frames. Frame indices are assigned in
// order.
func NewSliceSource(frames []Frame) *SliceSource {
	out := make([]Frame, len(frames))
	for i, f := range frames {
		f.Index = i
		out[i] = f
	}
	return &SliceSource{frames: out}
}

// Read returns the next frame.
func (s *SliceSource) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Frame{}, ErrSourceClosed
	}
	if s.pos >= len(s.frames) {
		if s.Err != nil {
			return Frame{}, s.Err
		}
		return Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

// Close marks the source closed.
func (s *SliceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *SliceSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
