package heuristics

import "github.com/noamfav/diatribe/internal/model"

// Apply runs all three deterministic rules, in order, once:
//  1. micro-turn collapse
//  2. backchannel reattribution
//  3. floor-holding excursion correction
//
// Each rule sees the transcript as left by the previous one. The combined
// set of changes is returned for the final changes[] accounting.
func Apply(tr *model.Transcript, cfg Config) Result {
	var all []Change

	micro := CollapseMicroTurns(tr, cfg)
	all = append(all, micro.Changes...)

	backchannel := ApplyBackchannelRule(tr, cfg)
	all = append(all, backchannel.Changes...)

	floor := ApplyFloorHolding(tr, cfg)
	all = append(all, floor.Changes...)

	return Result{Changes: all}
}
