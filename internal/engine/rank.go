package engine

// assignActualRanks fills ActualRank and ActualPerformance from the raw
// scores. Scores rank descending; ties receive the arithmetic midpoint of
// the rank span they occupy, so the rank sum over n participants is always
// n(n+1)/2 regardless of ties.
func assignActualRanks(slate []Participant) {
	n := float64(len(slate))
	done := make([]bool, len(slate))

	assigned := 0
	for assigned < len(slate) {
		best := 0.0
		first := true
		for i := range slate {
			if done[i] {
				continue
			}
			if first || slate[i].Score > best {
				best = slate[i].Score
				first = false
			}
		}

		k := 0
		for i := range slate {
			if !done[i] && slate[i].Score == best {
				k++
			}
		}

		rank := float64(assigned) + 0.5 + float64(k)/2
		perf := -NormInv((float64(assigned) + float64(k)/2) / n)
		for i := range slate {
			if !done[i] && slate[i].Score == best {
				slate[i].ActualRank = rank
				slate[i].ActualPerformance = perf
				done[i] = true
			}
		}
		assigned += k
	}
}
