package reembed

import "math"

// NormalizeVector normalizes a vector to unit length.
// Returns a new vector. If the input is a zero vector, returns a zero vector.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var magnitude float64
	for _, val := range v {
		magnitude += float64(val) * float64(val)
	}
	magnitude = math.Sqrt(magnitude)

	result := make([]float32, len(v))
	if magnitude == 0 {
		return result
	}
	for i, val := range v {
		result[i] = float32(float64(val) / magnitude)
	}
	return result
}

// IsUsable reports whether v can take part in a cosine comparison: it is
// non-empty, finite and not the zero vector.
func IsUsable(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	nonZero := false
	for _, val := range v {
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
		if val != 0 {
			nonZero = true
		}
	}
	return nonZero
}

// Dot returns the dot product of two unit vectors, which is their cosine
// similarity. ok is false when the dimensions differ or the result is not
// finite.
func Dot(a, b []float32) (cos float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return 0, false
	}
	return sum, true
}
