package llmedit

import (
	"fmt"
	"strings"
)

// SystemPrompt states the non-negotiable constraints the external editor
// must follow. The core never parses this text; it exists purely so
// internal/clients has something concrete to send.
const SystemPrompt = `You are editing a diarized transcript. You MUST follow these rules:

1. You MUST NOT add, remove, or change any words.
2. You MUST NOT change timestamps.
3. You may only reassign speaker labels for existing tokens and adjust turn boundaries.
4. Output MUST be valid JSON matching the provided schema.
5. If uncertain, do not change anything.

CONSTRAINTS:
- You have an edit budget for this window; prefer fewer changes than the budget allows.
- Use only the provided reason codes for changes.
- Tokens in the anchor prefix and suffix are READ-ONLY and must not be changed.
- Minimize speaker switches while maintaining conversational coherence.

REASON CODES (use only these):
- jitter_short_turn
- overlap_boundary
- lexical_continuity
- dialogue_pairing
- backchannel_attribution
- do_not_change

If you violate any rule, list it in the "violations" array.`

// BuildPrompt renders a WindowRequest into the user-turn text sent to the
// external editor.
func BuildPrompt(req WindowRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Window: %s\n", req.WindowID)
	fmt.Fprintf(&b, "Editable tokens: %d, edit budget: %d\n", len(req.Editable), req.EditBudget)
	fmt.Fprintf(&b, "Allowed speakers: %v\n\n", req.AllowedSpeakers)

	b.WriteString("## Anchor prefix (read-only)\n")
	writeTokens(&b, req.AnchorPrefix)

	b.WriteString("\n## Editable\n")
	writeTokens(&b, req.Editable)

	b.WriteString("\n## Anchor suffix (read-only)\n")
	writeTokens(&b, req.AnchorSuffix)

	return b.String()
}

func writeTokens(b *strings.Builder, tokens []RequestToken) {
	for _, t := range tokens {
		fmt.Fprintf(b, "- [%d-%dms] %s speaker=%d conf=%.2f overlap=%v turn=%s id=%s\n",
			t.StartMs, t.EndMs, t.Word, t.Speaker, t.SpeakerConf, t.Overlap, t.TurnID, t.TokenID)
	}
}
