package signals

import (
	"gocv.io/x/gocv"

	"github.com/MrCodeEU/facelive/pkg/geometry"
)

// SkinReflectance measures the share of skin-coloured pixels inside the padded
// face box. The face counts as skin when the ratio exceeds the threshold.
func (d *Detector) SkinReflectance(im *Image, lm geometry.LandmarkSet) (Reflectance, error) {
	box, err := geometry.PixelBounds(lm, im.Width, im.Height, d.cfg.SkinPadding)
	if err != nil {
		return Reflectance{}, err
	}
	if box.Empty() {
		return Reflectance{}, ErrEmptyRegion
	}

	region := im.bgr.Region(box)
	defer region.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(region, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	defer mask.Close()
	lower := gocv.NewScalar(d.cfg.SkinLower[0], d.cfg.SkinLower[1], d.cfg.SkinLower[2], 0)
	upper := gocv.NewScalar(d.cfg.SkinUpper[0], d.cfg.SkinUpper[1], d.cfg.SkinUpper[2], 0)
	gocv.InRangeWithScalar(hsv, lower, upper, &mask)

	ratio := float64(gocv.CountNonZero(mask)) / float64(box.Dx()*box.Dy())
	return Reflectance{Ratio: ratio, Skin: ratio > d.cfg.ReflectanceThreshold}, nil
}
