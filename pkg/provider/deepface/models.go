package deepface

// RepresentRequest for POST /represent
type RepresentRequest struct {
	Img              string `json:"img"` // data URI, base64 JPEG
	Model            string `json:"model_name"`
	Detector         string `json:"detector_backend"`
	EnforceDetection bool   `json:"enforce_detection"`
	AntiSpoofing     bool   `json:"anti_spoofing"`
}

// RepresentResponse from POST /represent
type RepresentResponse struct {
	Results []RepresentResult `json:"results"`
}

type RepresentResult struct {
	Embedding      []float64  `json:"embedding"`
	FacialArea     FacialArea `json:"facial_area"`
	FaceConfidence float64    `json:"face_confidence"`
}

type FacialArea struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}
