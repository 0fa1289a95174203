package recognition

import "math"

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// the lengths differ or either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// EuclideanDistance calculates the Euclidean distance between two vectors.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.MaxFloat64
	}

	var sum float64
	for i := range a {
		diff := float64(a[i] - b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// Matcher compares a probe against enrolled vectors.
type Matcher struct {
	Threshold float64
}

// FindBestMatch returns the index of the most similar gallery vector, its
// similarity and whether it reaches the threshold. An empty gallery gives -1.
func (m Matcher) FindBestMatch(probe []float32, gallery [][]float32) (int, float64, bool) {
	if len(gallery) == 0 {
		return -1, 0, false
	}

	bestIdx := -1
	bestSim := math.Inf(-1)
	for i, v := range gallery {
		if sim := CosineSimilarity(probe, v); sim > bestSim {
			bestSim = sim
			bestIdx = i
		}
	}
	return bestIdx, bestSim, bestSim >= m.Threshold
}
