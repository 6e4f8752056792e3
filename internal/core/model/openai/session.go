package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/truliv/voice-agent/internal/core/model/provider"
	"github.com/truliv/voice-agent/pkg/logger"
	"go.uber.org/zap"
)

const (
	transcriptionModel = "gpt-4o-transcribe"

	noiseNearField = "near_field"
	noiseFarField  = "far_field"
)

// VADParams tunes server-side turn detection.
type VADParams struct {
	Threshold         float64
	PrefixPaddingMs   int
	SilenceDurationMs int
}

// telephonyVAD reacts quickly to pauses on narrowband phone audio.
var telephonyVAD = VADParams{
	Threshold:         0.5,
	PrefixPaddingMs:   300,
	SilenceDurationMs: 500,
}

// EphemeralTokenResponse is the client_secrets response.
type EphemeralTokenResponse struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"`
}

// noiseReductionType maps a participant filter onto the model's input profile.
func noiseReductionType(f provider.NoiseFilter) string {
	if f == provider.NoiseFilterTelephony {
		return noiseNearField
	}
	return noiseFarField
}

// sessionConfig builds the realtime session the ephemeral token is minted for.
func (p *Provider) sessionConfig(opts provider.SessionOptions) map[string]interface{} {
	session := map[string]interface{}{
		"type":  "realtime",
		"model": p.cfg.Model,
		"audio": map[string]interface{}{
			"output": map[string]interface{}{
				"voice": p.cfg.Voice,
			},
			"input": map[string]interface{}{
				"transcription": map[string]interface{}{
					"model": transcriptionModel,
				},
				"turn_detection": map[string]interface{}{
					"type":                "server_vad",
					"threshold":           telephonyVAD.Threshold,
					"prefix_padding_ms":   telephonyVAD.PrefixPaddingMs,
					"silence_duration_ms": telephonyVAD.SilenceDurationMs,
				},
			},
		},
	}

	if opts.Instructions != "" {
		session["instructions"] = opts.Instructions
	}
	if opts.Tools != nil {
		if tools := opts.Tools.GetToolDefinitions(); len(tools) > 0 {
			session["tools"] = tools
			session["tool_choice"] = "auto"
		}
	}

	return map[string]interface{}{"session": session}
}

// createClientSecret mints an ephemeral key bound to the session config.
func (p *Provider) createClientSecret(ctx context.Context, opts provider.SessionOptions) (string, error) {
	body, err := json.Marshal(p.sessionConfig(opts))
	if err != nil {
		return "", fmt.Errorf("failed to marshal session config: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+ClientSecretsPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create OpenAI request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request to OpenAI: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errorBody map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&errorBody)
		return "", fmt.Errorf("OpenAI API returned status %d: %v", resp.StatusCode, errorBody)
	}

	var tokenResp EphemeralTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode OpenAI response: %w", err)
	}
	if tokenResp.Value == "" {
		return "", fmt.Errorf("OpenAI response carried no client secret")
	}

	logger.Info(ctx, "Generated ephemeral token", zap.Int64("expires_at", tokenResp.ExpiresAt))
	return tokenResp.Value, nil
}
