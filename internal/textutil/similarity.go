package textutil

// Jaccard returns |a ∩ b| / |a ∪ b| for two token sets, or 0 when either set is
// empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	shared := 0
	for token := range small {
		if _, ok := large[token]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}

// TitleSimilarity compares two titles by the Jaccard overlap of their
// normalized tokens.
func TitleSimilarity(a, b string) float64 {
	return Jaccard(Tokens(a), Tokens(b))
}
