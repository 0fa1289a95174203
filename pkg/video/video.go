// Package video provides frame sources for liveness analysis: an ffmpeg MJPEG
// pipe, an OpenCV capture and an in-memory source.
package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"time"

	"gocv.io/x/gocv"
)

// Frame is a single decoded video frame.
type Frame struct {
	Index     int
	Data      []byte // JPEG, may be nil when Image is set
	Image     image.Image
	Width     int
	Height    int
	Timestamp time.Time
}

// Source yields frames in order. Read returns io.EOF at the end of the stream.
type Source interface {
	Read(ctx context.Context) (Frame, error)
	Close() error
}

// Opener opens a video file as a Source.
type Opener func(ctx context.Context, path string) (Source, error)

// ErrSourceUnreadable is returned when a video cannot be opened or decoded at
// all.
var ErrSourceUnreadable = errors.New("could not open video file")

// ErrSourceClosed is returned when reading from a closed source.
var ErrSourceClosed = errors.New("video source closed")

// ErrNoImage is returned when a frame carries neither JPEG data nor an image.
var ErrNoImage = errors.New("frame has no image data")

// ToImage returns the decoded image, decoding the JPEG data on first use.
func (f *Frame) ToImage() (image.Image, error) {
	if f.Image != nil {
		return f.Image, nil
	}
	if len(f.Data) == 0 {
		return nil, ErrNoImage
	}
	img, err := jpeg.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, fmt.Errorf("decode frame %d: %w", f.Index, err)
	}
	f.Image = img
	b := img.Bounds()
	f.Width, f.Height = b.Dx(), b.Dy()
	return img, nil
}

// JPEG returns the frame encoded as JPEG, encoding the image with OpenCV on
// first use.
func (f *Frame) JPEG() ([]byte, error) {
	if len(f.Data) > 0 {
		return f.Data, nil
	}
	if f.Image == nil {
		return nil, ErrNoImage
	}
	mat, err := gocv.ImageToMatRGB(f.Image)
	if err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", f.Index, err)
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", f.Index, err)
	}
	defer buf.Close()

	f.Data = append([]byte(nil), buf.GetBytes()...)
	return f.Data, nil
}

// Config selects and tunes the video backend.
type Config struct {
	// Backend is "ffmpeg", "opencv" or "auto".
	Backend    string `yaml:"backend" envconfig:"BACKEND"`
	FFmpegPath string `yaml:"ffmpeg_path" envconfig:"FFMPEG_PATH"`
	// Timeout bounds one video analysis. Zero disables it.
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// DefaultConfig returns the default video configuration.
func DefaultConfig() Config {
	return Config{
		Backend:    "auto",
		FFmpegPath: "ffmpeg",
		Timeout:    60 * time.Second,
	}
}

// NewOpener returns the Opener for the configured backend. "auto" prefers
// ffmpeg when it is installed.
func NewOpener(cfg Config) (Opener, error) {
	switch cfg.Backend {
	case "ffmpeg":
		return ffmpegOpener(cfg.FFmpegPath), nil
	case "opencv":
		return OpenCapture, nil
	case "auto", "":
		if _, err := lookPath(cfg.FFmpegPath); err == nil {
			return ffmpegOpener(cfg.FFmpegPath), nil
		}
		return OpenCapture, nil
	default:
		return nil, fmt.Errorf("unknown video backend %q", cfg.Backend)
	}
}

func ffmpegOpener(bin string) Opener {
	return func(ctx context.Context, path string) (Source, error) {
		return OpenFFmpeg(ctx, bin, path)
	}
}

// LoadImage reads a still image file as a single frame.
func LoadImage(path string) (Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	b := img.Bounds()
	f := Frame{Image: img, Width: b.Dx(), Height: b.Dy(), Timestamp: time.Now()}
	if bytes.HasPrefix(data, jpegSOI) {
		f.Data = data
	}
	return f, nil
}
