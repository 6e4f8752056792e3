package livekit

import (
	"errors"
	"strings"

	"github.com/truliv/voice-agent/pkg/logger"
	"go.uber.org/zap"
)

// LiveKitConfig holds LiveKit server configuration
type LiveKitConfig struct {
	ServerURL  string // LiveKit server WebSocket URL
	APIKey     string // LiveKit API key
	APISecret  string // LiveKit API secret
	AgentName  string // Agent name used for explicit dispatch
	RoomPrefix string // Prefix for rooms created by outbound dispatch
}

// NewLiveKitConfig creates a new LiveKit configuration with validation
func NewLiveKitConfig(serverURL, apiKey, apiSecret, agentName, roomPrefix string) (*LiveKitConfig, error) {
	config := &LiveKitConfig{
		ServerURL:  strings.TrimRight(serverURL, "/"),
		APIKey:     apiKey,
		APISecret:  apiSecret,
		AgentName:  agentName,
		RoomPrefix: roomPrefix,
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger.Base().Info("LiveKit configuration initialized",
		zap.String("server_url", config.ServerURL),
		zap.String("agent_name", agentName))
	return config, nil
}

// Validate validates the LiveKit configuration
func (c *LiveKitConfig) Validate() error {
	if c.ServerURL == "" {
		return errors.New("LiveKit server URL is required")
	}
	if c.APIKey == "" {
		return errors.New("LiveKit API key is required")
	}
	if c.APISecret == "" {
		return errors.New("LiveKit API secret is required")
	}
	return nil
}

// HTTPURL returns the server URL with an http(s) scheme, as the Twirp
// service clients expect.
func (c *LiveKitConfig) HTTPURL() string {
	switch {
	case strings.HasPrefix(c.ServerURL, "wss://"):
		return "https://" + strings.TrimPrefix(c.ServerURL, "wss://")
	case strings.HasPrefix(c.ServerURL, "ws://"):
		return "http://" + strings.TrimPrefix(c.ServerURL, "ws://")
	}
	return c.ServerURL
}

// WebSocketURL returns the server URL with a ws(s) scheme.
func (c *LiveKitConfig) WebSocketURL() string {
	switch {
	case strings.HasPrefix(c.ServerURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.ServerURL, "https://")
	case strings.HasPrefix(c.ServerURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.ServerURL, "http://")
	}
	return c.ServerURL
}
