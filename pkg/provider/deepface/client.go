package deepface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds the configuration for the DeepFace client.
type Config struct {
	BaseURL  string        `yaml:"base_url" envconfig:"BASE_URL"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	Model    string        `yaml:"model" envconfig:"MODEL"`
	Detector string        `yaml:"detector" envconfig:"DETECTOR"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:  "http://localhost:5005",
		Timeout:  30 * time.Second,
		Model:    "ArcFace",
		Detector: "retinaface",
	}
}

// Client is the HTTP client for the DeepFace API. Requests are never retried.
type Client struct {
	httpClient *http.Client
	config     Config
}

// NewClient creates a new DeepFace client.
func NewClient(config Config) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
	}
}

// Represent calls POST /represent.
func (c *Client) Represent(ctx context.Context, img string, antiSpoofing bool) (*RepresentResponse, error) {
	req := RepresentRequest{
		Img:              img,
		Model:            c.config.Model,
		Detector:         c.config.Detector,
		EnforceDetection: true,
		AntiSpoofing:     antiSpoofing,
	}

	var resp RepresentResponse
	if err := c.doRequest(ctx, http.MethodPost, "/represent", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrDeepFaceUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		serr := &StatusError{Code: resp.StatusCode, Body: string(respBody)}
		if resp.StatusCode >= 500 {
			return errors.Join(ErrDeepFaceUnavailable, serr)
		}
		return serr
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}
	return nil
}
