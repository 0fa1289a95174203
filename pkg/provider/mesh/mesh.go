// Package mesh locates faces through a MediaPipe face-mesh sidecar reached
// over a Unix socket. Requests and responses are msgpack encoded.
package mesh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/MrCodeEU/facelive/pkg/geometry"
	"github.com/MrCodeEU/facelive/pkg/video"
)

// Config configures the mesh sidecar client.
type Config struct {
	SocketPath string        `yaml:"socket_path" envconfig:"SOCKET_PATH"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// DefaultConfig returns the default mesh configuration.
func DefaultConfig() Config {
	return Config{
		SocketPath: "/run/facelive/mesh.sock",
		Timeout:    2 * time.Second,
	}
}

// Request is sent to the sidecar.
type Request struct {
	Width  int    `msgpack:"w"`
	Height int    `msgpack:"h"`
	Data   []byte `msgpack:"d"` // JPEG
}

// Face is one detected face mesh.
type Face struct {
	Landmarks  []float32 `msgpack:"l"` // x0,y0,x1,y1,... normalized to the frame
	Confidence float32   `msgpack:"c"`
}

// Response is received from the sidecar.
type Response struct {
	Faces       []Face  `msgpack:"faces"`
	Error       string  `msgpack:"error"`
	InferenceMs float32 `msgpack:"inference_ms"`
}

// ErrMalformedMesh is returned when a face carries an odd or short
// coordinate list.
var ErrMalformedMesh = errors.New("malformed face mesh")

// Client is a Locator backed by the mesh sidecar. One connection is dialed
// per frame.
type Client struct {
	config Config
	dialer net.Dialer
}

// NewClient creates a mesh client.
func NewClient(config Config) *Client {
	return &Client{config: config, dialer: net.Dialer{Timeout: config.Timeout}}
}

// Layout returns the MediaPipe mesh layout.
func (c *Client) Layout() geometry.Layout { return geometry.MediaPipeMesh }

// LocateFace returns the landmarks of the first face, nil when the sidecar
// found none.
func (c *Client) LocateFace(ctx context.Context, f video.Frame) (geometry.LandmarkSet, error) {
	data, err := f.JPEG()
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, Request{Width: f.Width, Height: f.Height, Data: data})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("mesh service: %s", resp.Error)
	}
	if len(resp.Faces) == 0 {
		return nil, nil
	}
	return toLandmarks(resp.Faces[0].Landmarks)
}

func (c *Client) do(ctx context.Context, req Request) (*Response, error) {
	conn, err := c.dialer.DialContext(ctx, "unix", c.config.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mesh service: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if err := msgpack.NewEncoder(conn).Encode(&req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var resp Response
	if err := msgpack.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &resp, nil
}

func toLandmarks(flat []float32) (geometry.LandmarkSet, error) {
	if len(flat)%2 != 0 || len(flat)/2 < geometry.MeshLandmarks {
		return nil, fmt.Errorf("%w: %d coordinates", ErrMalformedMesh, len(flat))
	}
	n := len(flat) / 2
	if n > geometry.MeshRefined {
		n = geometry.MeshRefined
	}
	lm := make(geometry.LandmarkSet, n)
	for i := range lm {
		lm[i] = geometry.Point{X: float64(flat[2*i]), Y: float64(flat[2*i+1])}
	}
	return lm, nil
}

// Close is a no-op; connections are per request.
func (c *Client) Close() error { return nil }
