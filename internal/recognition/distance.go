package recognition

import "math"

// EuclideanDistance returns the L2 distance between two encodings.
// Mismatched or empty encodings are infinitely far apart.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// FaceDistance returns the distance from enc to every known encoding, in order.
func FaceDistance(known [][]float32, enc []float32) []float64 {
	distances := make([]float64, len(known))
	for i, k := range known {
		distances[i] = EuclideanDistance(k, enc)
	}
	return distances
}

// CompareFaces reports, for every known encoding, whether it lies within tolerance of enc.
func CompareFaces(known [][]float32, enc []float32, tolerance float64) []bool {
	matches := make([]bool, len(known))
	for i, d := range FaceDistance(known, enc) {
		matches[i] = d <= tolerance
	}
	return matches
}
