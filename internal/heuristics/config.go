// Package heuristics implements Stage H: deterministic, idempotent
// pre-labeling rules applied once after Stage 0 and before Stage 1. Any
// label change made here is final unless Stage 2 later disturbs it.
package heuristics

// Config bundles every knob the heuristic rules need.
type Config struct {
	MicroTurnMaxMs            uint64
	MicroTurnSkipConfidence   float64
	BackchannelWords          map[string]bool
	BackchannelProximityMs    uint64
	BackchannelMaxConfidence  float64
	FloorDecayPerSecond       float64
	MinFloorScore             float64
	FloorWindowMs             uint64
}

// DefaultBackchannelWords is spec.md §4.1's closed set.
func DefaultBackchannelWords() map[string]bool {
	words := []string{"yeah", "mhm", "right", "okay", "uh-huh", "yes", "no"}
	out := make(map[string]bool, len(words))
	for _, w := range words {
		out[w] = true
	}
	return out
}

// DefaultConfig matches spec.md §4.1 and §6's defaults.
func DefaultConfig() Config {
	return Config{
		MicroTurnMaxMs:           300,
		MicroTurnSkipConfidence:  0.9,
		BackchannelWords:         DefaultBackchannelWords(),
		BackchannelProximityMs:   2_000,
		BackchannelMaxConfidence: 0.75,
		FloorDecayPerSecond:      0.2,
		MinFloorScore:            0.3,
		FloorWindowMs:            5_000,
	}
}

// Change records one label change a heuristic rule made, keyed by the token
// it affected, for the accounting later stages and the final changes[]
// output rely on.
type Change struct {
	TokenIndex int
	TokenID    string
	From       uint32
	To         uint32
	Rule       string
}

// Result is the outcome of applying one or all heuristic rules.
type Result struct {
	Changes []Change
}

// ChangedIndices returns the token indices touched by Changes, deduplicated.
func (r Result) ChangedIndices() []int {
	seen := map[int]bool{}
	var out []int
	for _, c := range r.Changes {
		if !seen[c.TokenIndex] {
			seen[c.TokenIndex] = true
			out = append(out, c.TokenIndex)
		}
	}
	return out
}
