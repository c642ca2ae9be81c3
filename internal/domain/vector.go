package domain

import "math"

// Embedding is a fixed-length vector plus the model that produced it.
type Embedding struct {
	Vector     []float32
	Model      string
	Normalized bool
}

// Dimensions returns the vector length.
func (e Embedding) Dimensions() int { return len(e.Vector) }

// VectorRecord is one upsert unit: an id, its vector and string metadata.
type VectorRecord struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// Normalize scales v to unit length in place. Zero vectors are left as is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either is a zero vector or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
