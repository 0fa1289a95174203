// Package geometry computes aspect ratios and spatial statistics from a
// facial landmark set. Every function is pure: the same landmarks always give
// the same numbers, and malformed input yields an error instead of a panic.
package geometry

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// epsilon guards every division by a landmark span.
const epsilon = 1e-9

// Point is a 2D landmark position. Locators emit normalized coordinates in
// [0,1] relative to the frame.
type Point struct {
	X, Y float64
}

// Distance returns the Euclidean distance between two points.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// LandmarkSet is an ordered sequence of landmarks for one face in one frame.
// It is never modified after a locator produced it.
type LandmarkSet []Point

// ErrDegenerateGeometry is returned together with a zero ratio when a span
// used as a divisor collapses to (almost) nothing.
var ErrDegenerateGeometry = errors.New("degenerate landmark geometry")

// InputError reports a landmark set that is too small for an operation.
type InputError struct {
	Op   string
	Need int
	Got  int
}

func (e *InputError) Error() string {
	return fmt.Sprintf("geometry: %s needs %d landmarks, got %d", e.Op, e.Need, e.Got)
}

func needIndices(op string, lm LandmarkSet, indices ...int) error {
	need := 1
	for _, i := range indices {
		if i < 0 {
			return &InputError{Op: op, Need: need, Got: len(lm)}
		}
		if i+1 > need {
			need = i + 1
		}
	}
	if len(lm) < need {
		return &InputError{Op: op, Need: need, Got: len(lm)}
	}
	return nil
}

// Scale maps normalized landmarks into a w×h pixel space. Aspect ratios are
// calibrated on pixel coordinates, so callers scale before measuring them.
func (lm LandmarkSet) Scale(w, h int) LandmarkSet {
	out := make(LandmarkSet, len(lm))
	for i, p := range lm {
		out[i] = Point{X: p.X * float64(w), Y: p.Y * float64(h)}
	}
	return out
}

// EyeAspectRatio computes (|p1.y−p5.y| + |p2.y−p4.y|) / (2·|p0.x−p3.x|) for six
// ordered eye landmarks. A collapsed horizontal span returns 0 and
// ErrDegenerateGeometry.
func EyeAspectRatio(lm LandmarkSet, eye [6]int) (float64, error) {
	if err := needIndices("eye aspect ratio", lm, eye[:]...); err != nil {
		return 0, err
	}
	p := func(i int) Point { return lm[eye[i]] }

	horizontal := math.Abs(p(0).X - p(3).X)
	if horizontal < epsilon {
		return 0, ErrDegenerateGeometry
	}
	vertical := math.Abs(p(1).Y-p(5).Y) + math.Abs(p(2).Y-p(4).Y)
	return vertical / (2 * horizontal), nil
}

// CombinedEAR averages the eye aspect ratio of both eyes. A degenerate eye
// contributes 0 and the error is still reported.
func CombinedEAR(lm LandmarkSet, layout Layout) (float64, error) {
	left, errL := EyeAspectRatio(lm, layout.LeftEye)
	if errL != nil && !errors.Is(errL, ErrDegenerateGeometry) {
		return 0, errL
	}
	right, errR := EyeAspectRatio(lm, layout.RightEye)
	if errR != nil && !errors.Is(errR, ErrDegenerateGeometry) {
		return 0, errR
	}
	ear := (left + right) / 2
	if errL != nil {
		return ear, errL
	}
	return ear, errR
}

// MouthAspectRatio divides the mean inner-lip separation over the layout's lip
// pairs by the distance between the mouth corners.
func MouthAspectRatio(lm LandmarkSet, layout Layout) (float64, error) {
	indices := []int{layout.MouthCorners[0], layout.MouthCorners[1]}
	for _, pair := range layout.InnerLips {
		indices = append(indices, pair[0], pair[1])
	}
	if err := needIndices("mouth aspect ratio", lm, indices...); err != nil {
		return 0, err
	}

	horizontal := lm[layout.MouthCorners[0]].Distance(lm[layout.MouthCorners[1]])
	if horizontal < epsilon {
		return 0, ErrDegenerateGeometry
	}

	var vertical float64
	for _, pair := range layout.InnerLips {
		vertical += lm[pair[0]].Distance(lm[pair[1]])
	}
	vertical /= float64(len(layout.InnerLips))
	return vertical / horizontal, nil
}

// FaceAngle returns the angle in degrees of the vector from the nose bridge to
// the chin.
func FaceAngle(lm LandmarkSet, layout Layout) (float64, error) {
	if err := needIndices("face angle", lm, layout.NoseBridge, layout.Chin); err != nil {
		return 0, err
	}
	nose, chin := lm[layout.NoseBridge], lm[layout.Chin]
	return math.Atan2(chin.Y-nose.Y, chin.X-nose.X) * 180 / math.Pi, nil
}

// Centroid returns the mean landmark position.
func Centroid(lm LandmarkSet) (Point, error) {
	if len(lm) == 0 {
		return Point{}, &InputError{Op: "centroid", Need: 1, Got: 0}
	}
	var c Point
	for _, p := range lm {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(lm))
	return Point{X: c.X / n, Y: c.Y / n}, nil
}

// CenterDistance is the distance between the landmark centroid and the frame
// centre (0.5, 0.5) in normalized coordinates.
func CenterDistance(lm LandmarkSet) (float64, error) {
	c, err := Centroid(lm)
	if err != nil {
		return 0, err
	}
	return c.Distance(Point{X: 0.5, Y: 0.5}), nil
}

// Bounds returns the minimum and maximum corners of the landmark bounding box.
func Bounds(lm LandmarkSet) (lo, hi Point, err error) {
	if len(lm) == 0 {
		return Point{}, Point{}, &InputError{Op: "bounds", Need: 1, Got: 0}
	}
	lo, hi = lm[0], lm[0]
	for _, p := range lm[1:] {
		lo.X = math.Min(lo.X, p.X)
		lo.Y = math.Min(lo.Y, p.Y)
		hi.X = math.Max(hi.X, p.X)
		hi.Y = math.Max(hi.Y, p.Y)
	}
	return lo, hi, nil
}

// FaceSize is the bounding box area of the landmarks in normalized units.
func FaceSize(lm LandmarkSet) (float64, error) {
	lo, hi, err := Bounds(lm)
	if err != nil {
		return 0, err
	}
	return (hi.X - lo.X) * (hi.Y - lo.Y), nil
}

// Movement is the mean per-landmark displacement between two sets of the same
// layout.
func Movement(prev, cur LandmarkSet) (float64, error) {
	if len(cur) == 0 {
		return 0, &InputError{Op: "movement", Need: 1, Got: 0}
	}
	if len(prev) != len(cur) {
		return 0, &InputError{Op: "movement", Need: len(cur), Got: len(prev)}
	}
	var sum float64
	for i := range cur {
		sum += cur[i].Distance(prev[i])
	}
	return sum / float64(len(cur)), nil
}

// PixelBounds converts the landmark bounding box to a pixel rectangle of a
// width×height frame, grown by pad pixels on every side and clamped to the
// frame. Coordinates are truncated like an integer cast.
func PixelBounds(lm LandmarkSet, width, height, pad int) (image.Rectangle, error) {
	lo, hi, err := Bounds(lm)
	if err != nil {
		return image.Rectangle{}, err
	}
	r := image.Rect(
		int(lo.X*float64(width))-pad,
		int(lo.Y*float64(height))-pad,
		int(hi.X*float64(width))+pad,
		int(hi.Y*float64(height))+pad,
	)
	return r.Intersect(image.Rect(0, 0, width, height)), nil
}
