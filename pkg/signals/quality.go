package signals

import "gocv.io/x/gocv"

// Quality describes how usable a frame is for identity capture. It never
// influences the liveness verdict.
type Quality struct {
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Sharpness  float64 `json:"sharpness"`
	Good       bool    `json:"good"`
}

// Quality measures mean brightness, contrast (intensity standard deviation)
// and sharpness (variance of the Laplacian).
func (d *Detector) Quality(im *Image) Quality {
	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(im.gray, &mean, &stddev)

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(im.gray, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)
	lapMean := gocv.NewMat()
	defer lapMean.Close()
	lapStd := gocv.NewMat()
	defer lapStd.Close()
	gocv.MeanStdDev(lap, &lapMean, &lapStd)

	sharp := lapStd.GetDoubleAt(0, 0)
	q := Quality{
		Brightness: mean.GetDoubleAt(0, 0),
		Contrast:   stddev.GetDoubleAt(0, 0),
		Sharpness:  sharp * sharp,
	}
	q.Good = q.Brightness >= d.cfg.MinBrightness && q.Brightness <= d.cfg.MaxBrightness &&
		q.Contrast >= d.cfg.MinContrast && q.Sharpness >= d.cfg.MinSharpness
	return q
}
