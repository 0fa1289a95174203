package signals

import (
	"math"

	"github.com/montanaflynn/stats"

	"github.com/MrCodeEU/facelive/pkg/geometry"
)

const (
	lbpPoints = 8
	lbpBins   = lbpPoints + 2
)

// lbpOffsets are the circular neighbour positions (row, col) at radius 1,
// counter-clockwise from the right, rounded to five decimals.
var lbpOffsets = func() [lbpPoints][2]float64 {
	var off [lbpPoints][2]float64
	for p := 0; p < lbpPoints; p++ {
		angle := 2 * math.Pi * float64(p) / lbpPoints
		off[p][0] = round5(-math.Sin(angle))
		off[p][1] = round5(math.Cos(angle))
	}
	return off
}()

func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}

// TextureUniformity computes the rotation invariant uniform LBP histogram of
// the padded face box and returns its standard deviation. Peaky histograms
// come from printed or displayed faces; real skin spreads across the bins.
func (d *Detector) TextureUniformity(im *Image, lm geometry.LandmarkSet) (Texture, error) {
	box, err := geometry.PixelBounds(lm, im.Width, im.Height, d.cfg.TexturePadding)
	if err != nil {
		return Texture{}, err
	}
	if box.Empty() {
		return Texture{}, ErrEmptyRegion
	}

	hist := lbpHistogram(im, box.Min.X, box.Min.Y, box.Dx(), box.Dy())
	uniformity, err := stats.StandardDeviationPopulation(stats.Float64Data(hist[:]))
	if err != nil {
		return Texture{}, err
	}
	return Texture{Uniformity: uniformity, RealSkin: uniformity < d.cfg.TextureUniformityMax}, nil
}

// lbpHistogram returns the normalized histogram of uniform LBP codes over a
// w×h window at (x0, y0). Neighbours outside the window read as 0.
func lbpHistogram(im *Image, x0, y0, w, h int) [lbpBins]float64 {
	at := func(r, c int) float64 {
		if r < 0 || c < 0 || r >= h || c >= w {
			return 0
		}
		return float64(im.Gray(x0+c, y0+r))
	}

	var counts [lbpBins]float64
	var total float64
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			counts[lbpCode(at, r, c)]++
			total++
		}
	}

	var hist [lbpBins]float64
	for i := range counts {
		hist[i] = counts[i] / (total + 1e-6)
	}
	return hist
}

// lbpCode returns the number of neighbours >= the centre for uniform patterns
// (at most two 0/1 changes along the neighbour sequence) and lbpPoints+1
// otherwise.
func lbpCode(at func(r, c int) float64, r, c int) int {
	center := at(r, c)

	var bits [lbpPoints]bool
	ones := 0
	for p, off := range lbpOffsets {
		v := bilinear(at, float64(r)+off[0], float64(c)+off[1])
		if v-center >= 0 {
			bits[p] = true
			ones++
		}
	}

	changes := 0
	for p := 0; p < lbpPoints-1; p++ {
		if bits[p] != bits[p+1] {
			changes++
		}
	}
	if changes <= 2 {
		return ones
	}
	return lbpPoints + 1
}

func bilinear(at func(r, c int) float64, r, c float64) float64 {
	minR, maxR := math.Floor(r), math.Ceil(r)
	minC, maxC := math.Floor(c), math.Ceil(c)
	dr, dc := r-minR, c-minC

	top := (1-dc)*at(int(minR), int(minC)) + dc*at(int(minR), int(maxC))
	bottom := (1-dc)*at(int(maxR), int(minC)) + dc*at(int(maxR), int(maxC))
	return (1-dr)*top + dr*bottom
}
