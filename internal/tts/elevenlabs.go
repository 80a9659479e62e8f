// Package tts provides the outbound text-to-speech provider client.
//
// The only implementation today is ElevenLabs. The package deliberately does
// no logging of its own (callers decide how/what to log) and reports provider
// failures through typed errors so upstream layers can map them onto HTTP
// responses without string matching.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Synthesizer converts a prompt into raw audio bytes for a given voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, prompt, voiceID string) ([]byte, error)
}

// ErrMissingAPIKey indicates the provider credential was never configured.
// It is a server-side fault, not a caller mistake.
var ErrMissingAPIKey = errors.New("elevenlabs api key not configured")

// ErrEmptyAudio indicates the provider replied 200 with no payload.
var ErrEmptyAudio = errors.New("elevenlabs returned empty audio")

// ProviderError carries a non-2xx provider response upstream. StatusCode is
// the provider's own status and Detail its (truncated) body text.
type ProviderError struct {
	StatusCode int
	Detail     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("elevenlabs error %d: %s", e.StatusCode, e.Detail)
}

// voiceSettings are fixed for every request; there is no per-request tuning.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Client is an ElevenLabs text-to-speech client.
type Client struct {
	// BaseURL is the synthesis endpoint prefix; the voice id is appended as
	// the final path segment.
	BaseURL string
	APIKey  string
	ModelID string

	// HTTPClient is optional; a 90s-timeout client is used when nil.
	HTTPClient *http.Client
}

// maxDetailBytes caps how much provider body we carry into errors and spans.
const maxDetailBytes = 2048

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 90 * time.Second}
}

// Synthesize performs one synthesis call and returns the raw MPEG bytes.
// The credential is checked per call so a server booted without a key still
// serves reads and fails only on synthesis.
func (c *Client) Synthesize(ctx context.Context, prompt, voiceID string) ([]byte, error) {
	tr := otel.Tracer("tts/Client")
	ctx, span := tr.Start(ctx, "Synthesize",
		trace.WithAttributes(
			attribute.String("tts.voice_id", voiceID),
			attribute.Int("tts.prompt_chars", len([]rune(prompt))),
		),
	)
	defer span.End()

	if strings.TrimSpace(c.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	payload, err := json.Marshal(synthesisRequest{
		Text:    prompt,
		ModelID: c.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.5,
		},
	})
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(c.BaseURL, "/") + "/" + voiceID
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.APIKey)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDetailBytes))
		perr := &ProviderError{
			StatusCode: resp.StatusCode,
			Detail:     strings.TrimSpace(string(body)),
		}
		span.SetAttributes(attribute.Int("tts.provider_status", resp.StatusCode))
		return nil, perr
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	span.SetAttributes(attribute.Int("tts.audio_bytes", len(audio)))
	return audio, nil
}
