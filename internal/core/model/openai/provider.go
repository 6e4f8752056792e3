package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	webrtcadapter "github.com/truliv/voice-agent/internal/adapters/webrtc"
	"github.com/truliv/voice-agent/internal/config"
	"github.com/truliv/voice-agent/internal/core/model/provider"
)

const (
	DefaultOpenAIModel   = config.DefaultRealtimeModel
	DefaultOpenAIBaseURL = config.DefaultOpenAIBaseURL
	OpenAIRealtimePath   = "/v1/realtime/calls"
	ClientSecretsPath    = "/v1/realtime/client_secrets"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("openai realtime not configured")

// Config holds what a realtime session needs from the environment.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Voice       string
	STUNServers []string
	TURN        webrtcadapter.TURNProvider // optional
	HTTPClient  *http.Client
}

// Provider creates OpenAI Realtime conversations over WebRTC.
type Provider struct {
	cfg Config
}

// NewProvider creates a new OpenAI provider
func NewProvider(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Voice == "" {
		cfg.Voice = config.DefaultVoice
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: config.DefaultConnectionTimeout}
	}
	return &Provider{cfg: cfg}
}

// GetProviderType returns the provider type
func (p *Provider) GetProviderType() provider.ProviderType {
	return provider.ProviderTypeOpenAI
}

// NewConversation returns an unstarted conversation.
func (p *Provider) NewConversation(_ context.Context) (provider.Conversation, error) {
	if p.cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	return newConversation(p), nil
}

// newClient builds the peer connection client for one session.
func (p *Provider) newClient() *webrtcadapter.Client {
	client := webrtcadapter.NewClient(webrtcadapter.ClientConfig{
		STUNServers: p.cfg.STUNServers,
		TURN:        p.cfg.TURN,
	})
	client.SetSDPExchanger(p.exchangeSDP)
	return client
}

// exchangeSDP exchanges SDP with the OpenAI Realtime endpoint.
func (p *Provider) exchangeSDP(ctx context.Context, sdp, token string) (string, error) {
	endpoint := fmt.Sprintf("%s%s?model=%s", p.cfg.BaseURL, OpenAIRealtimePath, url.QueryEscape(p.cfg.Model))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(sdp))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to exchange SDP: %w", err)
	}
	defer resp.Body.Close()

	responseBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("model API returned status %d: %s", resp.StatusCode, string(responseBytes))
	}

	return string(responseBytes), nil
}
