package training

import (
	"math/rand"
	"sort"
)

// ─── Hyperparameter Search ──────────────────────────────────────────────────

// ParamRange bounds one hyperparameter dimension.
type ParamRange struct {
	Min, Max float64
}

// Trial records one evaluated hyperparameter point.
type Trial struct {
	Params map[string]float64 `json:"params"`
	Score  float64            `json:"score"`
}

// SearchResult is the outcome of a hyperparameter search.
type SearchResult struct {
	Best      map[string]float64 `json:"best"`
	BestScore float64            `json:"best_score"`
	Trials    []Trial            `json:"trials"`
	Converged bool               `json:"converged"`
}

// perturbSpread is the fraction of each dimension's range used as the
// local-search neighborhood.
const perturbSpread = 0.1

// Search runs a two-phase hyperparameter search: random sampling over
// the space for the given number of trials, then half as many
// small-perturbation trials around the best point found. The score
// function is maximized.
func Search(space map[string]ParamRange, trials int, score func(map[string]float64) float64, seed int64) SearchResult {
	if trials <= 0 || len(space) == 0 {
		return SearchResult{}
	}
	rng := rand.New(rand.NewSource(seed))
	dims := sortedDims(space)

	result := SearchResult{BestScore: -1}

	// Phase 1: uniform random exploration.
	for i := 0; i < trials; i++ {
		params := make(map[string]float64, len(dims))
		for _, d := range dims {
			r := space[d]
			params[d] = r.Min + rng.Float64()*(r.Max-r.Min)
		}
		result.record(params, score(params))
	}

	// Phase 2: local refinement around the best point.
	explorationBest := result.BestScore
	for i := 0; i < trials/2; i++ {
		params := make(map[string]float64, len(dims))
		for _, d := range dims {
			r := space[d]
			spread := (r.Max - r.Min) * perturbSpread
			v := result.Best[d] + (rng.Float64()*2-1)*spread
			params[d] = clamp(v, r.Min, r.Max)
		}
		result.record(params, score(params))
	}

	// Converged when refinement barely moved the best score.
	result.Converged = result.BestScore-explorationBest < 1e-3
	return result
}

func (r *SearchResult) record(params map[string]float64, score float64) {
	r.Trials = append(r.Trials, Trial{Params: params, Score: score})
	if score > r.BestScore || r.Best == nil {
		r.BestScore = score
		r.Best = params
	}
}

func sortedDims(space map[string]ParamRange) []string {
	dims := make([]string, 0, len(space))
	for d := range space {
		dims = append(dims, d)
	}
	sort.Strings(dims)
	return dims
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
