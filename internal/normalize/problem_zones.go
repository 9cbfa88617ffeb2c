package normalize

import "github.com/noamfav/diatribe/internal/model"

// DetectOverlapRegions marks tokens whose neighbor has a different speaker
// and whose timing is close enough (small gap, or actually overlapping) to
// suggest the upstream diarizer saw simultaneous speech.
func DetectOverlapRegions(tr *model.Transcript) {
	const overlapThresholdMs = 100

	for i := 0; i+1 < len(tr.Tokens); i++ {
		cur := &tr.Tokens[i]
		next := &tr.Tokens[i+1]
		if cur.Speaker == next.Speaker {
			continue
		}
		gap := uint64(0)
		if next.StartMs > cur.EndMs {
			gap = next.StartMs - cur.EndMs
		}
		if gap <= overlapThresholdMs || next.StartMs < cur.EndMs {
			cur.Overlap = true
			next.Overlap = true
		}
	}
}

// DetectProblemZones runs all four detectors from spec.md §4.0 and returns
// their union, not yet merged into maximal intervals.
func DetectProblemZones(tr *model.Transcript, cfg ProblemZoneConfig) []model.ProblemZone {
	var zones []model.ProblemZone
	zones = append(zones, detectSpeakerJitter(tr, cfg)...)
	zones = append(zones, detectShortTurns(tr, cfg)...)
	zones = append(zones, detectOverlapAdjacent(tr, cfg)...)
	zones = append(zones, detectLowConfidence(tr, cfg)...)
	return zones
}

// detectSpeakerJitter flags any 10-second sliding interval containing more
// than MaxSwitchesPer10s speaker transitions. Intervals are anchored at each
// token's start; overlapping flagged intervals are reported as one zone.
func detectSpeakerJitter(tr *model.Transcript, cfg ProblemZoneConfig) []model.ProblemZone {
	var zones []model.ProblemZone
	const windowMs = 10_000
	if len(tr.Tokens) == 0 {
		return nil
	}

	for _, first := range tr.Tokens {
		absStart := first.StartMs
		absEnd := absStart + windowMs

		var idxs []int
		for i, t := range tr.Tokens {
			if t.StartMs >= absStart && t.StartMs < absEnd {
				idxs = append(idxs, i)
			}
		}
		if len(idxs) < 2 {
			continue
		}

		var switches uint32
		for k := 0; k+1 < len(idxs); k++ {
			if tr.Tokens[idxs[k]].Speaker != tr.Tokens[idxs[k+1]].Speaker {
				switches++
			}
		}

		if switches > cfg.MaxSwitchesPer10s {
			zone := model.ProblemZone{
				StartMs:      tr.Tokens[idxs[0]].StartMs,
				EndMs:        tr.Tokens[idxs[len(idxs)-1]].EndMs,
				Types:        []model.ProblemType{model.ProblemSpeakerJitter},
				TokenIndices: append([]int(nil), idxs...),
			}
			if n := len(zones); n > 0 && zones[n-1].EndMs >= zone.StartMs {
				zones[n-1] = MergeZones([]model.ProblemZone{zones[n-1], zone})[0]
			} else {
				zones = append(zones, zone)
			}
		}
	}
	return zones
}

// detectShortTurns flags every turn shorter than MinTurnDurationMs, spanning
// one second of padding on each side per spec.md §4.0.
func detectShortTurns(tr *model.Transcript, cfg ProblemZoneConfig) []model.ProblemZone {
	var zones []model.ProblemZone
	const padMs = 1_000

	for _, turn := range tr.Turns {
		if turn.DurationMs() >= cfg.MinTurnDurationMs {
			continue
		}
		start := uint64(0)
		if turn.StartMs > padMs {
			start = turn.StartMs - padMs
		}
		zones = append(zones, model.ProblemZone{
			StartMs:      start,
			EndMs:        turn.EndMs + padMs,
			Types:        []model.ProblemType{model.ProblemShortTurn},
			TokenIndices: append([]int(nil), turn.TokenIndices...),
		})
	}
	return zones
}

// detectOverlapAdjacent flags a zone spanning OverlapProximityMs around every
// token whose Overlap flag is set (by DetectOverlapRegions, from speaker
// changes with a small or negative gap between tokens).
func detectOverlapAdjacent(tr *model.Transcript, cfg ProblemZoneConfig) []model.ProblemZone {
	var zones []model.ProblemZone

	for i, t := range tr.Tokens {
		if !t.Overlap {
			continue
		}
		start := uint64(0)
		if t.StartMs > cfg.OverlapProximityMs {
			start = t.StartMs - cfg.OverlapProximityMs
		}
		end := t.EndMs + cfg.OverlapProximityMs

		var affected []int
		for j, u := range tr.Tokens {
			if u.EndMs >= start && u.StartMs <= end {
				affected = append(affected, j)
			}
		}
		if len(affected) == 0 {
			affected = []int{i}
		}
		zones = append(zones, model.ProblemZone{
			StartMs:      start,
			EndMs:        end,
			Types:        []model.ProblemType{model.ProblemOverlapAdjacent},
			TokenIndices: affected,
		})
	}
	return zones
}

// detectLowConfidence flags any contiguous run of at least LowConfidenceRunMs
// whose mean speaker confidence is below MinSpeakerConfidence.
func detectLowConfidence(tr *model.Transcript, cfg ProblemZoneConfig) []model.ProblemZone {
	var zones []model.ProblemZone
	var run []int

	flushRun := func() {
		if len(run) == 0 {
			return
		}
		first := tr.Tokens[run[0]]
		last := tr.Tokens[run[len(run)-1]]
		if last.EndMs-first.StartMs >= cfg.LowConfidenceRunMs && meanSpeakerConf(tr, run) < cfg.MinSpeakerConfidence {
			zones = append(zones, model.ProblemZone{
				StartMs:      first.StartMs,
				EndMs:        last.EndMs,
				Types:        []model.ProblemType{model.ProblemLowConfidence},
				TokenIndices: append([]int(nil), run...),
			})
		}
		run = nil
	}

	for i, t := range tr.Tokens {
		if t.SpeakerConf < cfg.MinSpeakerConfidence {
			run = append(run, i)
		} else {
			flushRun()
		}
	}
	flushRun()

	return zones
}

func meanSpeakerConf(tr *model.Transcript, idxs []int) float64 {
	if len(idxs) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range idxs {
		sum += tr.Tokens[i].SpeakerConf
	}
	return sum / float64(len(idxs))
}

// MergeZones merges overlapping problem zones (any type) into maximal
// intervals, unioning their types and token indices.
func MergeZones(zones []model.ProblemZone) []model.ProblemZone {
	if len(zones) == 0 {
		return nil
	}

	sorted := append([]model.ProblemZone(nil), zones...)
	insertionSortByStart(sorted)

	merged := []model.ProblemZone{sorted[0]}
	for _, z := range sorted[1:] {
		last := &merged[len(merged)-1]
		if z.StartMs <= last.EndMs {
			if z.EndMs > last.EndMs {
				last.EndMs = z.EndMs
			}
			last.Types = unionTypes(last.Types, z.Types)
			last.TokenIndices = unionInts(last.TokenIndices, z.TokenIndices)
			continue
		}
		merged = append(merged, z)
	}
	return merged
}

func insertionSortByStart(zones []model.ProblemZone) {
	for i := 1; i < len(zones); i++ {
		for j := i; j > 0 && zones[j-1].StartMs > zones[j].StartMs; j-- {
			zones[j-1], zones[j] = zones[j], zones[j-1]
		}
	}
}

func unionTypes(a, b []model.ProblemType) []model.ProblemType {
	seen := map[model.ProblemType]bool{}
	out := make([]model.ProblemType, 0, len(a)+len(b))
	for _, t := range a {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range b {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func unionInts(a, b []int) []int {
	seen := map[int]bool{}
	out := make([]int, 0, len(a)+len(b))
	for _, v := range a {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
