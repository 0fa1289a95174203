package rekognition

import (
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/MrCodeEU/facelive/pkg/geometry"
)

// packed is the order in which named Rekognition landmarks are stored in a
// LandmarkSet.
var packed = []types.LandmarkType{
	types.LandmarkTypeLeftEyeLeft,
	types.LandmarkTypeLeftEyeUp,
	types.LandmarkTypeLeftEyeRight,
	types.LandmarkTypeLeftEyeDown,
	types.LandmarkTypeRightEyeLeft,
	types.LandmarkTypeRightEyeUp,
	types.LandmarkTypeRightEyeRight,
	types.LandmarkTypeRightEyeDown,
	types.LandmarkTypeMouthLeft,
	types.LandmarkTypeMouthRight,
	types.LandmarkTypeMouthUp,
	types.LandmarkTypeMouthDown,
	types.LandmarkTypeNose,
	types.LandmarkTypeChinBottom,
}

// Layout maps the packed landmarks onto the semantic groups. Rekognition has a
// single upper and lower lid point per eye, so each is used twice, and the
// lips are the mouthUp/mouthDown pair repeated.
var Layout = geometry.Layout{
	Name:         "rekognition",
	Points:       len(packed),
	LeftEye:      [6]int{0, 1, 1, 2, 3, 3},
	RightEye:     [6]int{4, 5, 5, 6, 7, 7},
	InnerLips:    [4][2]int{{10, 11}, {10, 11}, {10, 11}, {10, 11}},
	MouthCorners: [2]int{8, 9},
	NoseBridge:   12,
	Chin:         13,
}
