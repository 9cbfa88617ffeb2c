package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/noamfav/diatribe/internal/speakerid"
)

// SpeakerIdentifier implements speakerid.Identifier over the same
// chat-completions-shaped endpoint LLMEditor talks to.
type SpeakerIdentifier struct {
	http  *HTTP
	url   string
	model string
}

// NewSpeakerIdentifier builds an identifier targeting url with modelName.
func NewSpeakerIdentifier(url, modelName string) *SpeakerIdentifier {
	return &SpeakerIdentifier{http: NewHTTP(), url: url, model: modelName}
}

type wireIdentification struct {
	SpeakerID    uint32   `json:"speaker_id"`
	IdentifiedAs *string  `json:"identified_as"`
	Confidence   float64  `json:"confidence"`
	Evidence     []string `json:"evidence"`
}

type wireIdentifications struct {
	Identifications []wireIdentification `json:"identifications"`
}

// IdentifySpeakers satisfies speakerid.Identifier.
func (s *SpeakerIdentifier) IdentifySpeakers(ctx context.Context, systemPrompt, userPrompt string) ([]speakerid.Identification, error) {
	body := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: "json_object",
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("speaker id: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("speaker id: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speaker id: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("speaker id %s: %s", resp.Status, string(b))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("speaker id: decode envelope: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("speaker id: empty response")
	}

	var wire wireIdentifications
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &wire); err != nil {
		return nil, fmt.Errorf("speaker id: decode identifications: %w", err)
	}

	out := make([]speakerid.Identification, 0, len(wire.Identifications))
	for _, w := range wire.Identifications {
		id := speakerid.Identification{
			SpeakerID:  w.SpeakerID,
			Confidence: w.Confidence,
			Evidence:   w.Evidence,
		}
		if w.IdentifiedAs != nil {
			id.IdentifiedAs = *w.IdentifiedAs
		}
		out = append(out, id)
	}
	return out, nil
}
