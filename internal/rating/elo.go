package rating

import "math"

// DefaultKFactor matches the standard fixed-K ELO exchange.
const DefaultKFactor = 32

// Deltas is the symmetric rating exchange for one finished match.
type Deltas struct {
	Winner int
	Loser  int
}

// ExpectedScore returns the probability of a win for a player rated
// ratingA against ratingB.
func ExpectedScore(ratingA, ratingB int) float64 {
	return 1 / (1 + math.Pow(10, float64(ratingB-ratingA)/400))
}

// Update applies one ELO step to rating given the expected and actual
// scores.
func Update(rating int, expected, actual float64, k int) int {
	return rating + int(math.Round(float64(k)*(actual-expected)))
}

// MatchDeltas computes the exchange for a decided two-player match. The
// winner's rounded gain is applied with opposite sign to the loser, so
// the exchange is exactly zero-sum.
func MatchDeltas(winnerElo, loserElo, k int) Deltas {
	expected := ExpectedScore(winnerElo, loserElo)
	gain := int(math.Round(float64(k) * (1 - expected)))
	return Deltas{Winner: gain, Loser: -gain}
}
