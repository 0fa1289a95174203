package geometry

// Layout names the landmark indices a locator uses for each semantic group.
// Eye groups are ordered p0..p5: outer corner, two upper lid points, inner
// corner, two lower lid points.
type Layout struct {
	Name         string
	Points       int
	LeftEye      [6]int
	RightEye     [6]int
	InnerLips    [4][2]int
	MouthCorners [2]int
	NoseBridge   int
	Chin         int
}

// MediaPipe face mesh indices.
// See: https://developers.google.com/mediapipe/solutions/vision/face_landmarker
const (
	MeshNoseBridge = 1
	MeshChin       = 152
	MeshMouthLeft  = 61
	MeshMouthRight = 291
	MeshLandmarks  = 468
	MeshRefined    = 478
)

// MediaPipeMesh is the layout of the 468-point face mesh (478 with refined
// irises; the extra points are ignored).
var MediaPipeMesh = Layout{
	Name:         "mediapipe",
	Points:       MeshLandmarks,
	LeftEye:      [6]int{362, 385, 387, 263, 373, 380},
	RightEye:     [6]int{33, 160, 158, 133, 153, 144},
	InnerLips:    [4][2]int{{13, 78}, {14, 81}, {15, 87}, {16, 191}},
	MouthCorners: [2]int{MeshMouthLeft, MeshMouthRight},
	NoseBridge:   MeshNoseBridge,
	Chin:         MeshChin,
}

// Validate reports whether a landmark set is large enough for every group of
// the layout.
func (l Layout) Validate(lm LandmarkSet) error {
	indices := append([]int{}, l.LeftEye[:]...)
	indices = append(indices, l.RightEye[:]...)
	for _, pair := range l.InnerLips {
		indices = append(indices, pair[0], pair[1])
	}
	indices = append(indices, l.MouthCorners[0], l.MouthCorners[1], l.NoseBridge, l.Chin)
	return needIndices(l.Name+" layout", lm, indices...)
}
