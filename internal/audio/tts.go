package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"research-podcaster/internal/config"
	"research-podcaster/internal/retry"
)

// TTS renders text with one voice.
type TTS interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

type ElevenLabsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// ElevenLabsClient calls the ElevenLabs text to speech endpoint.
type ElevenLabsClient struct {
	cfg    config.ElevenLabs
	client *http.Client
}

func NewElevenLabsClient(cfg config.ElevenLabs, client *http.Client) *ElevenLabsClient {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &ElevenLabsClient{cfg: cfg, client: client}
}

func (c *ElevenLabsClient) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, retry.Permanent(errors.New("elevenlabs: api key required"))
	}
	body, err := json.Marshal(ElevenLabsRequest{
		Text:          text,
		ModelID:       c.cfg.ModelID,
		VoiceSettings: VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	})
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("elevenlabs: encode request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+"/"+voiceID, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("elevenlabs: new request: %w", err))
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		var retryAfter time.Duration
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		msg := string(data)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, &retry.StatusError{Provider: "elevenlabs", StatusCode: resp.StatusCode, Body: msg, RetryAfter: retryAfter}
	}
	if len(data) == 0 {
		return nil, errors.New("elevenlabs: empty audio")
	}
	return data, nil
}
