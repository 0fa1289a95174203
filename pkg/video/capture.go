package video

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// CaptureSource reads a video file through OpenCV.
type CaptureSource struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	next   int
	closed bool
}

// OpenCapture opens path with gocv. It satisfies Opener.
func OpenCapture(_ context.Context, path string) (Source, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("%w: %s", ErrSourceUnreadable, path)
	}
	return &CaptureSource{vc: vc, mat: gocv.NewMat()}, nil
}

// Read returns the next frame, io.EOF when the capture is exhausted.
func (c *CaptureSource) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Frame{}, ErrSourceClosed
	}
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return Frame{}, io.EOF
	}

	img, err := c.mat.ToImage()
	if err != nil {
		return Frame{}, fmt.Errorf("convert frame %d: %w", c.next, err)
	}
	f := Frame{
		Index:     c.next,
		Image:     img,
		Width:     c.mat.Cols(),
		Height:    c.mat.Rows(),
		Timestamp: time.Now(),
	}
	c.next++
	return f, nil
}

// Close releases the capture.
func (c *CaptureSource) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.mat.Close()
	return c.vc.Close()
}
