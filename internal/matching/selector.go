package matching

import (
	"csfdoverlay/internal/textutil"
)

const (
	sameYearBonus     = 0.5
	adjacentYearBonus = 0.25
	sameKindBonus     = 0.2
)

// Candidate is a remote search hit. Score is only set on the value returned
// by PickBest.
type Candidate struct {
	RemoteID string  `json:"csfdId"`
	Title    string  `json:"title"`
	Year     int     `json:"year,omitempty"`
	IsSeries bool    `json:"isSeries"`
	Score    float64 `json:"score,omitempty"`
}

// Target describes the local title candidates are ranked against. Year 0
// means unknown.
type Target struct {
	Title         string
	OriginalTitle string
	Year          int
	IsSeries      bool
}

// PickBest scores every candidate against target and returns the highest
// scoring one. Ties keep the earliest candidate and a zero score is never
// selected, so the result is nil for an empty list or when nothing overlaps.
func PickBest(target Target, candidates []Candidate) *Candidate {
	primary := textutil.Tokens(target.Title)
	original := textutil.Tokens(target.OriginalTitle)

	var best *Candidate
	bestScore := 0.0
	for _, candidate := range candidates {
		score := Score(primary, original, target, candidate)
		if score > bestScore {
			bestScore = score
			picked := candidate
			picked.Score = score
			best = &picked
		}
	}
	return best
}

// Score computes a candidate's ranking score from the pre-tokenized target
// titles.
func Score(primary, original map[string]struct{}, target Target, candidate Candidate) float64 {
	title := textutil.Tokens(candidate.Title)
	score := max(textutil.Jaccard(primary, title), textutil.Jaccard(original, title))

	if target.Year > 0 && candidate.Year > 0 {
		switch diff := target.Year - candidate.Year; {
		case diff == 0:
			score += sameYearBonus
		case diff == 1 || diff == -1:
			score += adjacentYearBonus
		}
	}
	if candidate.IsSeries == target.IsSeries {
		score += sameKindBonus
	}
	return score
}
