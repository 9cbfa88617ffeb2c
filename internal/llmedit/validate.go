package llmedit

import (
	"math"
	"strings"

	"github.com/noamfav/diatribe/internal/model"
)

// ValidationConfig bundles every knob patch validation needs.
type ValidationConfig struct {
	MaxEditBudgetPct  float64
	AllowedSpeakers   []uint32
	CostDeltaThreshold float64 // relative, per editable-token average
	ShortTurnMs       uint64  // turn duration below which it counts against cost
}

// DefaultValidationConfig matches spec.md §4.2 and §6/§9 defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxEditBudgetPct:   3.0,
		CostDeltaThreshold: 0.15,
		ShortTurnMs:        700,
	}
}

// Validate runs the seven checks from spec.md §4.2 and rejects the patch
// (returning Valid=false) if any fails. A rejected window contributes
// nothing to reconciliation.
func Validate(patch model.WindowPatch, tr *model.Transcript, w model.Window, cfg ValidationConfig) model.PatchValidation {
	var errs []error

	// 1 & 5. Self-reported violations unconditionally invalidate the patch.
	if patch.HasViolations() {
		errs = append(errs, model.Errorf("patch has self-reported violations: %v", patch.Violations))
	}

	editableIDs := tokenIDSet(tr, w.TokenIndices)

	// 2. Every relabeled token_id must be in the window's editable set.
	for _, r := range patch.TokenRelabels {
		if !editableIDs[r.TokenID] {
			errs = append(errs, model.Errorf("token %s is not in window %s's editable set", r.TokenID, w.ID))
		}
	}

	// 3. Every new_speaker must be in the allowed set.
	allowed := uint32Set(cfg.AllowedSpeakers)
	for _, r := range patch.TokenRelabels {
		if !allowed[r.NewSpeaker] {
			errs = append(errs, model.Errorf("speaker %d is not allowed (allowed: %v)", r.NewSpeaker, cfg.AllowedSpeakers))
		}
	}

	// 3 (cont). Reason codes must be drawn from the closed enum.
	for _, r := range patch.TokenRelabels {
		if !model.ValidReasonCodes[r.Reason] {
			errs = append(errs, model.Errorf("reason code %q is not in the closed enum", r.Reason))
		}
	}
	for _, e := range patch.TurnEdits {
		if !model.ValidReasonCodes[e.Reason] {
			errs = append(errs, model.Errorf("turn edit reason code %q is not in the closed enum", e.Reason))
		}
		if e.Type != model.TurnEditMerge && e.Type != model.TurnEditSplit {
			errs = append(errs, model.Errorf("turn edit type %q is not recognized", e.Type))
		}
	}

	// 4. Number of relabels must not exceed the edit budget.
	budget := editBudget(w.TokenCount(), cfg.MaxEditBudgetPct)
	used := patch.RelabelCount()
	editBudgetUsed := 0.0
	if w.TokenCount() > 0 {
		editBudgetUsed = float64(used) / float64(w.TokenCount())
	}
	if used > budget {
		errs = append(errs, model.Errorf("edit budget exceeded: %d relabels > %d allowed (%.1f%%)", used, budget, cfg.MaxEditBudgetPct))
	}

	// 7. Turn edits must reference turn/token IDs within the window.
	for _, e := range patch.TurnEdits {
		if !turnInWindow(tr, w, e.TurnID) {
			errs = append(errs, model.Errorf("turn edit references turn %s outside window %s", e.TurnID, w.ID))
		}
		if e.Type == model.TurnEditMerge && e.ToTurnID != "" && !turnInWindow(tr, w, e.ToTurnID) {
			errs = append(errs, model.Errorf("merge edit references turn %s outside window %s", e.ToTurnID, w.ID))
		}
		if e.Type == model.TurnEditSplit && e.SplitAtTokenID != "" && !editableIDs[e.SplitAtTokenID] {
			errs = append(errs, model.Errorf("split edit references token %s outside window %s", e.SplitAtTokenID, w.ID))
		}
	}

	// 6. Cost delta must not exceed the relative, per-editable-token-average
	// threshold.
	costDelta := 0.0
	if len(errs) == 0 { // only worth computing once the patch is structurally sane
		before := computeCost(tr, w, nil, cfg)
		after := computeCost(tr, w, patch.TokenRelabels, cfg)
		if w.TokenCount() > 0 {
			costDelta = (after - before) / float64(w.TokenCount())
		}
		if costDelta > cfg.CostDeltaThreshold {
			errs = append(errs, model.Errorf("cost delta %.4f exceeds threshold %.4f", costDelta, cfg.CostDeltaThreshold))
		}
	}

	if len(errs) > 0 {
		return model.Invalid(errs...)
	}
	return model.PatchValidation{Valid: true, EditBudgetUsed: editBudgetUsed, CostDelta: costDelta}
}

func tokenIDSet(tr *model.Transcript, idxs []int) map[string]bool {
	out := make(map[string]bool, len(idxs))
	for _, i := range idxs {
		out[tr.Tokens[i].ID] = true
	}
	return out
}

func uint32Set(vals []uint32) map[uint32]bool {
	out := make(map[uint32]bool, len(vals))
	for _, v := range vals {
		out[v] = true
	}
	return out
}

func turnInWindow(tr *model.Transcript, w model.Window, turnID string) bool {
	idx := tr.TurnByID(turnID)
	if idx < 0 {
		return false
	}
	for _, ti := range tr.Turns[idx].TokenIndices {
		if w.IsEditable(ti) {
			return true
		}
	}
	return false
}

// computeCost implements spec.md §4.2's cost function for one window, with
// an optional set of relabels applied first:
//
//	cost = 5*(#speaker_switches) + 2*(#turns_under_700ms) - 1*(lexical_coherence_gain)
//
// lexical_coherence_gain is computed relative to the window's pre-patch
// state inside lexicalCoherenceGain, so computeCost(tr, w, nil, cfg) always
// yields a gain of 0 (comparing the unpatched window to itself).
func computeCost(tr *model.Transcript, w model.Window, relabels []model.TokenRelabel, cfg ValidationConfig) float64 {
	relabelMap := make(map[string]uint32, len(relabels))
	for _, r := range relabels {
		relabelMap[r.TokenID] = r.NewSpeaker
	}

	switches := 0
	var prevSpeaker uint32
	havePrev := false
	for _, i := range w.TokenIndices {
		spk := effectiveSpeaker(tr.Tokens[i], relabelMap)
		if havePrev && spk != prevSpeaker {
			switches++
		}
		prevSpeaker = spk
		havePrev = true
	}

	shortTurns := countShortTurnsAfterPatch(tr, w, relabelMap, cfg.ShortTurnMs)

	gain := lexicalCoherenceGain(tr, w, relabelMap)

	return 5*float64(switches) + 2*float64(shortTurns) - gain
}

func effectiveSpeaker(t model.Token, relabels map[string]uint32) uint32 {
	if s, ok := relabels[t.ID]; ok {
		return s
	}
	return t.Speaker
}

// countShortTurnsAfterPatch rebuilds turn boundaries within the window's
// editable span using effective (possibly relabeled) speakers and counts how
// many resulting runs would be shorter than shortTurnMs.
func countShortTurnsAfterPatch(tr *model.Transcript, w model.Window, relabels map[string]uint32, shortTurnMs uint64) int {
	if len(w.TokenIndices) == 0 {
		return 0
	}

	type run struct {
		startMs, endMs uint64
	}
	var runs []run
	var cur *run
	var curSpeaker uint32
	haveCur := false

	for _, i := range w.TokenIndices {
		tok := tr.Tokens[i]
		spk := effectiveSpeaker(tok, relabels)
		if haveCur && spk == curSpeaker {
			cur.endMs = tok.EndMs
			continue
		}
		if haveCur {
			runs = append(runs, *cur)
		}
		cur = &run{startMs: tok.StartMs, endMs: tok.EndMs}
		curSpeaker = spk
		haveCur = true
	}
	if haveCur {
		runs = append(runs, *cur)
	}

	count := 0
	for _, r := range runs {
		if r.endMs-r.startMs < shortTurnMs {
			count++
		}
	}
	return count
}

// lexicalCoherenceGain computes (post - pre) cosine similarity of
// per-speaker term-frequency vectors over the window, per spec.md §4.2.
func lexicalCoherenceGain(tr *model.Transcript, w model.Window, relabels map[string]uint32) float64 {
	pre := perSpeakerTermFreq(tr, w, nil)
	post := perSpeakerTermFreq(tr, w, relabels)
	return meanPairwiseCosine(post) - meanPairwiseCosine(pre)
}

// perSpeakerTermFreq builds a bag-of-words term-frequency vector per speaker
// over the window's editable tokens.
func perSpeakerTermFreq(tr *model.Transcript, w model.Window, relabels map[string]uint32) map[uint32]map[string]float64 {
	out := map[uint32]map[string]float64{}
	for _, i := range w.TokenIndices {
		tok := tr.Tokens[i]
		spk := effectiveSpeaker(tok, relabels)
		vec, ok := out[spk]
		if !ok {
			vec = map[string]float64{}
			out[spk] = vec
		}
		vec[strings.ToLower(tok.Word)]++
	}
	return out
}

// meanPairwiseCosine averages the cosine similarity between every distinct
// pair of speaker term-frequency vectors — higher means the speakers'
// vocabularies are converging, which this cost function treats as a
// (negative) cost, i.e. a gain.
func meanPairwiseCosine(vectors map[uint32]map[string]float64) float64 {
	speakers := make([]uint32, 0, len(vectors))
	for s := range vectors {
		speakers = append(speakers, s)
	}
	if len(speakers) < 2 {
		return 0
	}

	total := 0.0
	pairs := 0
	for i := 0; i < len(speakers); i++ {
		for j := i + 1; j < len(speakers); j++ {
			total += cosineSimilarity(vectors[speakers[i]], vectors[speakers[j]])
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return total / float64(pairs)
}

func cosineSimilarity(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for term, va := range a {
		normA += va * va
		if vb, ok := b[term]; ok {
			dot += va * vb
		}
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
