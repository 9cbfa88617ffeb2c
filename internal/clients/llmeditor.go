package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/noamfav/diatribe/internal/llmedit"
	"github.com/noamfav/diatribe/internal/model"
)

// LLMEditor implements llmedit.Editor over HTTP: it sends a window's request
// to a chat-completions-shaped endpoint and parses the structured patch the
// model returns.
type LLMEditor struct {
	http  *HTTP
	url   string
	model string
}

// NewLLMEditor builds an editor targeting url (an OpenAI-compatible
// chat-completions endpoint) using the given model name.
func NewLLMEditor(url, modelName string) *LLMEditor {
	return &LLMEditor{http: NewHTTP(), url: url, model: modelName}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat string        `json:"response_format,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// wirePatch is the JSON shape the editor is instructed (via SystemPrompt) to
// return for one window.
type wireRelabel struct {
	TokenID       string   `json:"token_id"`
	NewSpeaker    uint32   `json:"new_speaker"`
	Reason        string   `json:"reason"`
	LLMConfidence *float64 `json:"llm_confidence,omitempty"`
}

type wireTurnEdit struct {
	Type           string `json:"type"`
	TurnID         string `json:"turn_id"`
	ToTurnID       string `json:"to_turn_id,omitempty"`
	SplitAtTokenID string `json:"split_at_token_id,omitempty"`
	Reason         string `json:"reason"`
}

type wireNotes struct {
	UncertainTokens []string `json:"uncertain_tokens"`
	Summary         string   `json:"summary"`
}

type wirePatch struct {
	TokenRelabels []wireRelabel  `json:"token_relabels"`
	TurnEdits     []wireTurnEdit `json:"turn_edits"`
	Violations    []string       `json:"violations"`
	Notes         wireNotes      `json:"notes"`
}

// EditWindow satisfies llmedit.Editor.
func (e *LLMEditor) EditWindow(ctx context.Context, req llmedit.WindowRequest) (model.WindowPatch, error) {
	body := chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: llmedit.SystemPrompt},
			{Role: "user", Content: llmedit.BuildPrompt(req)},
		},
		ResponseFormat: "json_object",
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return model.WindowPatch{}, fmt.Errorf("llm editor: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return model.WindowPatch{}, fmt.Errorf("llm editor: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.http.c.Do(httpReq)
	if err != nil {
		return model.WindowPatch{}, fmt.Errorf("llm editor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return model.WindowPatch{}, fmt.Errorf("llm editor %s: %s", resp.Status, string(b))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return model.WindowPatch{}, fmt.Errorf("llm editor: decode envelope: %w", err)
	}
	if len(chat.Choices) == 0 {
		return model.WindowPatch{}, fmt.Errorf("llm editor: empty response for window %s", req.WindowID)
	}

	var wp wirePatch
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &wp); err != nil {
		return model.WindowPatch{}, fmt.Errorf("llm editor: decode patch: %w", err)
	}

	return toModelPatch(req.WindowID, wp), nil
}

func toModelPatch(windowID string, wp wirePatch) model.WindowPatch {
	relabels := make([]model.TokenRelabel, 0, len(wp.TokenRelabels))
	for _, r := range wp.TokenRelabels {
		relabels = append(relabels, model.TokenRelabel{
			TokenID:       r.TokenID,
			NewSpeaker:    r.NewSpeaker,
			Reason:        model.ReasonCode(r.Reason),
			LLMConfidence: r.LLMConfidence,
		})
	}

	edits := make([]model.TurnEdit, 0, len(wp.TurnEdits))
	for _, e := range wp.TurnEdits {
		edits = append(edits, model.TurnEdit{
			Type:           model.TurnEditType(e.Type),
			TurnID:         e.TurnID,
			ToTurnID:       e.ToTurnID,
			SplitAtTokenID: e.SplitAtTokenID,
			Reason:         model.ReasonCode(e.Reason),
		})
	}

	return model.WindowPatch{
		ID:            model.NewPatchID(),
		WindowID:      windowID,
		TokenRelabels: relabels,
		TurnEdits:     edits,
		Violations:    wp.Violations,
		Notes: model.PatchNotes{
			UncertainTokens: wp.Notes.UncertainTokens,
			Summary:         wp.Notes.Summary,
		},
	}
}
