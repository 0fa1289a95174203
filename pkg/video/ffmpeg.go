package video

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/MrCodeEU/facelive/pkg/logging"
)

var (
	execCommand = exec.Command
	lookPath    = exec.LookPath
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

const maxFrameBytes = 32 << 20

// FFmpegSource decodes a video with an ffmpeg child process writing MJPEG
// frames to a pipe.
type FFmpegSource struct {
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	stderr  *bytes.Buffer
	scanner *bufio.Scanner
	stop    func() bool

	mu      sync.Mutex
	pending *Frame
	next    int
	closed  bool
}

// OpenFFmpeg starts ffmpeg on path. The source is killed when ctx is done.
// A file ffmpeg cannot decode yields ErrSourceUnreadable.
func OpenFFmpeg(ctx context.Context, bin, path string) (*FFmpegSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}

	cmd := execCommand(bin, "-hide_banner", "-loglevel", "error", "-i", path,
		"-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "2", "pipe:1")
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrSourceUnreadable, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 1<<20), maxFrameBytes)
	scanner.Split(SplitJPEG)

	s := &FFmpegSource{
		cmd:     cmd,
		stdout:  stdout,
		stderr:  stderr,
		scanner: scanner,
	}
	s.stop = context.AfterFunc(ctx, func() {
		_ = cmd.Process.Kill()
	})

	// ffmpeg reports undecodable input only by exiting, so the first frame is
	// read eagerly.
	first, err := s.scan()
	if err != nil {
		_ = s.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: no frames decoded from %s: %s", ErrSourceUnreadable, path, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	s.pending = &first

	logging.Component("video").WithField("path", path).Debug("ffmpeg source opened")
	return s, nil
}

// Read returns the next frame.
func (s *FFmpegSource) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Frame{}, ErrSourceClosed
	}
	if s.pending != nil {
		f := *s.pending
		s.pending = nil
		return f, nil
	}
	return s.scan()
}

func (s *FFmpegSource) scan() (Frame, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return Frame{}, fmt.Errorf("read ffmpeg output: %w", err)
		}
		return Frame{}, io.EOF
	}

	data := make([]byte, len(s.scanner.Bytes()))
	copy(data, s.scanner.Bytes())

	f := Frame{Index: s.next, Data: data, Timestamp: time.Now()}
	if cfg, err := jpeg.DecodeConfig(bytes.NewReader(data)); err == nil {
		f.Width, f.Height = cfg.Width, cfg.Height
	}
	s.next++
	return f, nil
}

// Close stops ffmpeg and releases the pipe.
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.stop()

	if s.cmd.ProcessState == nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.stdout.Close()
	_ = s.cmd.Wait()
	return nil
}

// SplitJPEG is a bufio.SplitFunc that yields complete JPEG images delimited
// by the SOI and EOI markers. Bytes between images are skipped.
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, jpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start+2:], jpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	stop := start + 2 + end + 2
	return stop, data[start:stop], nil
}

// ProbeFrameCount asks ffprobe for the number of video frames in path. It
// returns 0 when the count is unknown.
func ProbeFrameCount(path string) int {
	out, err := execCommand("ffprobe", "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=nb_frames", "-of", "json", path).Output()
	if err != nil {
		return 0
	}

	var res struct {
		Streams []struct {
			NbFrames string `json:"nb_frames"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &res); err != nil || len(res.Streams) == 0 {
		return 0
	}
	n, err := strconv.Atoi(res.Streams[0].NbFrames)
	if err != nil {
		return 0
	}
	return n
}
