// Package report builds the result document printed for one analysis.
package report

import (
	"encoding/json"
	"io"

	"github.com/MrCodeEU/facelive/pkg/liveness"
	"github.com/MrCodeEU/facelive/pkg/signals"
)

// OpenFailureMessage is the error text of a video that could not be opened.
const OpenFailureMessage = "Could not open video file"

// Details is the detection_details object.
type Details struct {
	BlinkDetected    bool `json:"blink_detected"`
	MouthMovement    bool `json:"mouth_movement"`
	SkinReflectance  bool `json:"skin_reflectance"`
	FaceMovement     bool `json:"face_movement"`
	MovementDetected bool `json:"movement_detected"`

	BlinkCount               int `json:"blink_count"`
	MouthMovementCount       int `json:"mouth_movement_count"`
	SkinReflectanceFrames    int `json:"skin_reflectance_frames"`
	ConsecutiveSkinFrames    int `json:"consecutive_skin_frames"`
	MaxConsecutiveSkinFrames int `json:"max_consecutive_skin_frames"`

	AverageFaceDistance *float64 `json:"average_face_distance"`
	AverageFaceSize     *float64 `json:"average_face_size"`

	ScreenArtifactFrames int `json:"screen_artifact_frames"`
	BadTextureFrames     int `json:"bad_texture_frames"`
	SpoofFrames          int `json:"spoof_frames"`
	FacesDetected        int `json:"faces_detected"`

	FramesRead         int     `json:"frames_read"`
	FramesSampled      int     `json:"frames_sampled"`
	CumulativeMovement float64 `json:"cumulative_movement"`
	Truncated          bool    `json:"truncated"`

	CaptureFrame   *int             `json:"capture_frame"`
	CaptureQuality *signals.Quality `json:"capture_quality"`
}

// Document is the result of one analysis. Build it with FromVerdict or
// Failure; a failure never carries details.
type Document struct {
	success bool
	err     string

	isLive     bool
	faceVector []float32
	details    Details

	// extra holds command specific fields such as a verification result.
	extra map[string]any
}

// FromVerdict builds the success document of a verdict.
func FromVerdict(v liveness.Verdict) Document {
	d := v.Diagnostics
	return Document{
		success:    true,
		isLive:     v.IsLive,
		faceVector: append([]float32(nil), v.Embedding...),
		details: Details{
			BlinkDetected:            d.BlinkDetected,
			MouthMovement:            d.MouthMovement,
			SkinReflectance:          d.SkinReflectance,
			FaceMovement:             d.FaceMovement,
			MovementDetected:         d.MovementDetected,
			BlinkCount:               d.BlinkCount,
			MouthMovementCount:       d.MouthMovementCount,
			SkinReflectanceFrames:    d.SkinReflectanceFrames,
			ConsecutiveSkinFrames:    d.ConsecutiveSkinFrames,
			MaxConsecutiveSkinFrames: d.MaxConsecutiveSkinFrames,
			AverageFaceDistance:      d.AverageFaceDistance,
			AverageFaceSize:          d.AverageFaceSize,
			ScreenArtifactFrames:     d.ScreenArtifactFrames,
			BadTextureFrames:         d.BadTextureFrames,
			SpoofFrames:              d.SpoofFrames,
			FacesDetected:            d.FacesDetected,
			FramesRead:               d.FramesRead,
			FramesSampled:            d.FramesSampled,
			CumulativeMovement:       d.CumulativeMovement,
			Truncated:                d.Truncated,
			CaptureFrame:             d.CaptureFrame,
			CaptureQuality:           d.CaptureQuality,
		},
	}
}

// Failure builds a failure document.
func Failure(msg string) Document {
	return Document{err: msg}
}

// With returns a copy of the document with an extra top-level field. Extra
// fields never replace the standard ones.
func (d Document) With(key string, value any) Document {
	extra := make(map[string]any, len(d.extra)+1)
	for k, v := range d.extra {
		extra[k] = v
	}
	extra[key] = value
	d.extra = extra
	return d
}

// Success reports whether the analysis completed.
func (d Document) Success() bool { return d.success }

// IsLive reports the verdict; false for failures.
func (d Document) IsLive() bool { return d.isLive }

// FaceVector returns the captured embedding or nil.
func (d Document) FaceVector() []float32 { return d.faceVector }

// Details returns the detection details.
func (d Document) Details() Details { return d.details }

// Error returns the failure message.
func (d Document) Error() string { return d.err }

// MarshalJSON encodes the document. A nil face vector is encoded as null.
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.extra)+4)
	for k, v := range d.extra {
		out[k] = v
	}
	out["success"] = d.success
	if !d.success {
		out["error"] = d.err
		return json.Marshal(out)
	}
	out["is_live"] = d.isLive
	if d.faceVector == nil {
		out["face_vector"] = nil
	} else {
		out["face_vector"] = d.faceVector
	}
	out["detection_details"] = d.details
	return json.Marshal(out)
}

// Write encodes the document as one JSON line.
func (d Document) Write(w io.Writer) error {
	return json.NewEncoder(w).Encode(d)
}
