package signals

import (
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/dsp/fourier"
)

// ScreenArtifacts runs the moiré, glare and straight edge checks over the
// whole frame.
func (d *Detector) ScreenArtifacts(im *Image) (ScreenArtifacts, error) {
	var sa ScreenArtifacts

	sa.MoireStrength = d.moireStrength(im)
	sa.Moire = sa.MoireStrength > d.cfg.MoireThreshold

	sa.GlareRatio = d.glareRatio(im)
	sa.Glare = sa.GlareRatio > d.cfg.GlareRatio

	sa.EdgeLines = d.edgeLines(im)
	sa.Edges = sa.EdgeLines > d.cfg.MaxEdgeLines

	return sa, nil
}

// moireStrength is the mean log magnitude of the outer spectrum window minus
// that of the inner window around the DC component.
func (d *Detector) moireStrength(im *Image) float64 {
	spectrum := magnitudeSpectrum(im.pixels, im.Width, im.Height)
	cy, cx := im.Height/2, im.Width/2
	inner := windowMean(spectrum, im.Width, im.Height, cy, cx, d.cfg.MoireInnerWindow/2)
	outer := windowMean(spectrum, im.Width, im.Height, cy, cx, d.cfg.MoireOuterWindow/2)
	return outer - inner
}

// magnitudeSpectrum returns 20*ln(|F|+1) of the centred 2D DFT of a w×h
// grayscale image, row-major.
func magnitudeSpectrum(pixels []byte, w, h int) []float64 {
	data := make([]complex128, w*h)
	for i, p := range pixels[:w*h] {
		data[i] = complex(float64(p), 0)
	}

	rowFFT := fourier.NewCmplxFFT(w)
	row := make([]complex128, w)
	for y := 0; y < h; y++ {
		rowFFT.Coefficients(row, data[y*w:(y+1)*w])
		copy(data[y*w:(y+1)*w], row)
	}

	colFFT := fourier.NewCmplxFFT(h)
	col := make([]complex128, h)
	out := make([]complex128, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = data[y*w+x]
		}
		colFFT.Coefficients(out, col)
		for y := 0; y < h; y++ {
			data[y*w+x] = out[y]
		}
	}

	spectrum := make([]float64, w*h)
	for y := 0; y < h; y++ {
		sy := (y + h - h/2) % h
		for x := 0; x < w; x++ {
			sx := (x + w - w/2) % w
			v := data[sy*w+sx]
			spectrum[y*w+x] = 20 * math.Log(math.Hypot(real(v), imag(v))+1)
		}
	}
	return spectrum
}

// windowMean averages the square window of the given half side around
// (cy, cx), clipped to the image.
func windowMean(values []float64, w, h, cy, cx, half int) float64 {
	y0, y1 := max(cy-half, 0), min(cy+half, h)
	x0, x1 := max(cx-half, 0), min(cx+half, w)
	if y1 <= y0 || x1 <= x0 {
		return 0
	}
	var sum float64
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			sum += values[y*w+x]
		}
	}
	return sum / float64((y1-y0)*(x1-x0))
}

func (d *Detector) glareRatio(im *Image) float64 {
	bright := gocv.NewMat()
	defer bright.Close()
	gocv.Threshold(im.gray, &bright, float32(d.cfg.GlareIntensity), 255, gocv.ThresholdBinary)
	return float64(gocv.CountNonZero(bright)) / float64(im.Width*im.Height)
}

func (d *Detector) edgeLines(im *Image) int {
	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(im.gray, &edges, d.cfg.CannyLow, d.cfg.CannyHigh)

	lines := gocv.NewMat()
	defer lines.Close()
	gocv.HoughLinesPWithParams(edges, &lines, 1, math.Pi/180, d.cfg.HoughThreshold, d.cfg.MinLineLength, d.cfg.MaxLineGap)
	return lines.Rows()
}
