package search

// MatchBatch scores every asset vector against an optional positive and an
// optional negative query vector. Thresholds are percentages of similarity.
//
// Without a positive vector every asset starts at 1. Otherwise an asset
// scores its dot product with positive. Either way it scores 0 when that is
// below pThreshold/100 or when its dot product with negative exceeds
// nThreshold/100. The result is parallel to assets; ordering and truncation
// are left to the caller.
func MatchBatch(positive, negative []float32, assets [][]float32, pThreshold, nThreshold float64) []float64 {
	scores := make([]float64, len(assets))
	p := pThreshold / 100
	n := nThreshold / 100
	for i, a := range assets {
		s := 1.0
		if len(positive) > 0 {
			s = dot(a, positive)
		}
		if s < p {
			continue
		}
		if len(negative) > 0 && dot(a, negative) > n {
			continue
		}
		scores[i] = s
	}
	return scores
}

// Similarity is the cosine similarity of two unit vectors.
func Similarity(a, b []float32) float64 {
	return dot(a, b)
}

func dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
