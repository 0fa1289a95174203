// Package signals implements the per-frame liveness detectors: skin
// reflectance, texture uniformity and screen artifacts (moiré, glare and long
// straight edges), plus a frame quality check.
//
// Detectors are stateless. They read a prepared Image and never modify it, so
// the detectors of one frame may run concurrently.
package signals

import (
	"errors"
	"sync"

	"github.com/MrCodeEU/facelive/pkg/geometry"
	"github.com/MrCodeEU/facelive/pkg/logging"
)

// ErrEmptyRegion is returned when the padded face box has no pixels inside
// the frame.
var ErrEmptyRegion = errors.New("face region is empty")

// Config holds every detector threshold. HSV bounds use the OpenCV scale
// (H 0-180, S and V 0-255).
type Config struct {
	SkinLower            [3]float64 `yaml:"skin_lower" ignored:"true"`
	SkinUpper            [3]float64 `yaml:"skin_upper" ignored:"true"`
	SkinPadding          int        `yaml:"skin_padding" envconfig:"SKIN_PADDING"`
	ReflectanceThreshold float64    `yaml:"reflectance_threshold" envconfig:"REFLECTANCE_THRESHOLD"`

	TexturePadding       int     `yaml:"texture_padding" envconfig:"TEXTURE_PADDING"`
	TextureUniformityMax float64 `yaml:"texture_uniformity_max" envconfig:"TEXTURE_UNIFORMITY_MAX"`

	MoireInnerWindow int     `yaml:"moire_inner_window" envconfig:"MOIRE_INNER_WINDOW"`
	MoireOuterWindow int     `yaml:"moire_outer_window" envconfig:"MOIRE_OUTER_WINDOW"`
	MoireThreshold   float64 `yaml:"moire_threshold" envconfig:"MOIRE_THRESHOLD"`

	GlareIntensity float64 `yaml:"glare_intensity" envconfig:"GLARE_INTENSITY"`
	GlareRatio     float64 `yaml:"glare_ratio" envconfig:"GLARE_RATIO"`

	CannyLow       float32 `yaml:"canny_low" envconfig:"CANNY_LOW"`
	CannyHigh      float32 `yaml:"canny_high" envconfig:"CANNY_HIGH"`
	HoughThreshold int     `yaml:"hough_threshold" envconfig:"HOUGH_THRESHOLD"`
	MinLineLength  float32 `yaml:"min_line_length" envconfig:"MIN_LINE_LENGTH"`
	MaxLineGap     float32 `yaml:"max_line_gap" envconfig:"MAX_LINE_GAP"`
	MaxEdgeLines   int     `yaml:"max_edge_lines" envconfig:"MAX_EDGE_LINES"`

	MinBrightness float64 `yaml:"min_brightness" envconfig:"MIN_BRIGHTNESS"`
	MaxBrightness float64 `yaml:"max_brightness" envconfig:"MAX_BRIGHTNESS"`
	MinContrast   float64 `yaml:"min_contrast" envconfig:"MIN_CONTRAST"`
	MinSharpness  float64 `yaml:"min_sharpness" envconfig:"MIN_SHARPNESS"`
}

// DefaultConfig returns the calibrated detector thresholds.
func DefaultConfig() Config {
	return Config{
		SkinLower:            [3]float64{0, 15, 50},
		SkinUpper:            [3]float64{25, 255, 255},
		SkinPadding:          20,
		ReflectanceThreshold: 0.4,

		TexturePadding:       10,
		TextureUniformityMax: 0.12,

		MoireInnerWindow: 60,
		MoireOuterWindow: 200,
		MoireThreshold:   5,

		GlareIntensity: 240,
		GlareRatio:     0.005,

		CannyLow:       100,
		CannyHigh:      200,
		HoughThreshold: 200,
		MinLineLength:  100,
		MaxLineGap:     10,
		MaxEdgeLines:   5,

		MinBrightness: 40,
		MaxBrightness: 220,
		MinContrast:   20,
		MinSharpness:  100,
	}
}

// Reflectance is the outcome of the skin reflectance detector.
type Reflectance struct {
	Ratio float64
	Skin  bool
}

// Texture is the outcome of the LBP texture detector.
type Texture struct {
	Uniformity float64
	RealSkin   bool
}

// ScreenArtifacts holds the three screen sub-checks and their raw values.
type ScreenArtifacts struct {
	MoireStrength float64
	Moire         bool
	GlareRatio    float64
	Glare         bool
	EdgeLines     int
	Edges         bool
}

// Detected reports whether any sub-check fired.
func (s ScreenArtifacts) Detected() bool {
	return s.Moire || s.Glare || s.Edges
}

// Result bundles the detector outputs for one frame.
type Result struct {
	Reflectance Reflectance
	Texture     Texture
	Artifacts   ScreenArtifacts
}

// Detector runs the per-frame detectors with a fixed configuration.
type Detector struct {
	cfg Config
}

// NewDetector creates a Detector.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// Analyze runs the reflectance, texture and screen artifact detectors
// concurrently on one frame. Failed detectors leave their zero value (not
// skin, not real texture, no artifacts) and their errors are joined.
func (d *Detector) Analyze(im *Image, lm geometry.LandmarkSet) (Result, error) {
	var (
		res                    Result
		wg                     sync.WaitGroup
		errRefl, errTex, errSA error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		res.Reflectance, errRefl = d.SkinReflectance(im, lm)
	}()
	go func() {
		defer wg.Done()
		res.Texture, errTex = d.TextureUniformity(im, lm)
	}()
	go func() {
		defer wg.Done()
		res.Artifacts, errSA = d.ScreenArtifacts(im)
	}()
	wg.Wait()

	logging.Component("signals").WithFields(logging.Fields{
		"reflectance": res.Reflectance.Ratio,
		"uniformity":  res.Texture.Uniformity,
		"moire":       res.Artifacts.MoireStrength,
		"glare":       res.Artifacts.GlareRatio,
		"edge_lines":  res.Artifacts.EdgeLines,
	}).Debug("Frame signals")

	return res, errors.Join(errRefl, errTex, errSA)
}
