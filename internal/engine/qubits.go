// Package engine implements the Qubits rating algorithm for marathon
// matches. The engine is a pure transformation: it performs no I/O and
// never touches the store, so it is safe to run on any worker.
package engine

import "math"

// Rating system constants.
const (
	InitialWeight   = 0.60
	FinalWeight     = 0.18
	FirstVolatility = 385

	// Defaults applied to participants entering their first rated round.
	InitialRating     = 1200.0
	InitialVolatility = 515.0
)

// Participant is one contestant's slot in a rating run. Rating and
// Volatility hold the prior tuple (zero for first-timers, normalised by
// the engine); NewRating and NewVolatility are the engine outputs.
type Participant struct {
	CoderID    int64
	Rating     float64
	Volatility float64
	NumRatings int
	Score      float64

	// Transient computation fields, exported for inspection in tests.
	ExpectedRank        float64
	ExpectedPerformance float64
	ActualRank          float64
	ActualPerformance   float64

	NewRating     int
	NewVolatility int
}

// Run rates a slate of participants and returns a new slate with the
// outputs filled in. The input is never mutated. NumRatings on the
// returned participants reflects the round just rated (prior count + 1);
// it is bookkeeping for the two-pass driver, not a value the persistor
// writes back.
func Run(slate []Participant) []Participant {
	out := make([]Participant, len(slate))
	copy(out, slate)

	if len(out) == 0 {
		return out
	}

	for i := range out {
		if out[i].NumRatings == 0 {
			out[i].Rating = InitialRating
			out[i].Volatility = InitialVolatility
		}
	}

	// A single-participant round carries no information: rtemp/(n-1) is
	// undefined, so the run is a no-op.
	if len(out) == 1 {
		p := &out[0]
		p.NewRating = int(math.Round(p.Rating))
		p.NewVolatility = int(math.Round(p.Volatility))
		p.NumRatings++
		return out
	}

	n := float64(len(out))

	var rave float64
	for i := range out {
		rave += out[i].Rating
	}
	rave /= n

	var vtemp, rtemp float64
	for i := range out {
		vtemp += out[i].Volatility * out[i].Volatility
		d := out[i].Rating - rave
		rtemp += d * d
	}
	cf := math.Sqrt(vtemp/n + rtemp/(n-1))

	for i := range out {
		er := 0.5
		for j := range out {
			er += winProbability(out[j].Rating, out[j].Volatility, out[i].Rating, out[i].Volatility)
		}
		out[i].ExpectedRank = er
		out[i].ExpectedPerformance = -NormInv((er - 0.5) / n)
	}

	assignActualRanks(out)

	for i := range out {
		p := &out[i]

		diff := p.ActualPerformance - p.ExpectedPerformance
		performedAs := p.Rating + diff*cf

		wraw := (InitialWeight-FinalWeight)/float64(p.NumRatings+1) + FinalWeight
		w := 1/(1-wraw) - 1
		switch {
		case p.Rating >= 2500:
			w *= 4.0 / 5.0
		case p.Rating >= 2000:
			w *= 4.5 / 5.0
		}

		newRating := (p.Rating + w*performedAs) / (1 + w)

		cap := 150.0 + 1500.0/float64(p.NumRatings+2)
		if newRating > p.Rating+cap {
			newRating = p.Rating + cap
		}
		if newRating < p.Rating-cap {
			newRating = p.Rating - cap
		}
		if newRating < 1 {
			newRating = 1
		}
		p.NewRating = int(math.Round(newRating))

		if p.NumRatings > 0 {
			delta := float64(p.NewRating) - p.Rating
			p.NewVolatility = int(math.Round(math.Sqrt(p.Volatility*p.Volatility/(1+w) + delta*delta/w)))
		} else {
			p.NewVolatility = FirstVolatility
		}

		p.NumRatings++
	}

	return out
}

// winProbability is P(a beats b) given both rating tuples.
func winProbability(ra, va, rb, vb float64) float64 {
	return (math.Erf((ra-rb)/math.Sqrt(2*(va*va+vb*vb))) + 1) / 2
}
