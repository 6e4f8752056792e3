package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("LIVEKIT_URL", "wss://example.livekit.cloud")
	t.Setenv("LIVEKIT_API_KEY", "key")
	t.Setenv("LIVEKIT_API_SECRET", "secret")
	t.Setenv("TRULIV_API_BASE_URL", "https://api.truliv.test/v1/")
	t.Setenv("HUMAN_TRANSFER_NUMBER", " +919800000000 ")

	cfg := LoadFromEnv()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, AgentName, cfg.AgentName)
	assert.Equal(t, DefaultRegion, cfg.DefaultRegion)
	assert.Equal(t, DefaultLookupTimeout, cfg.LookupTimeout)
	assert.Equal(t, "https://api.truliv.test/v1", cfg.TrulivAPIBaseURL)
	assert.Equal(t, "+919800000000", cfg.HumanTransferNumber)
	assert.True(t, cfg.TransferEnabled())
	assert.False(t, cfg.RedisEnabled())
	assert.Equal(t, []string{DefaultSTUNServer1, DefaultSTUNServer2}, cfg.STUNServers)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_JOBS", "3")
	t.Setenv("LOOKUP_TIMEOUT", "4")
	t.Setenv("STUN_SERVERS", "stun:a:1, stun:b:2 ,")
	t.Setenv("REDIS_HOST", "localhost")

	cfg := LoadFromEnv()
	assert.Equal(t, 3, cfg.MaxConcurrentJob)
	assert.Equal(t, 4*time.Second, cfg.LookupTimeout)
	assert.Equal(t, []string{"stun:a:1", "stun:b:2"}, cfg.STUNServers)
	assert.True(t, cfg.RedisEnabled())
}

func TestValidateRequiresLiveKitCredentials(t *testing.T) {
	cfg := &Config{MaxConcurrentJob: 1}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LIVEKIT_URL")
	assert.Contains(t, err.Error(), "LIVEKIT_API_SECRET")

	cfg = &Config{LiveKitURL: "u", LiveKitAPIKey: "k", LiveKitAPISecret: "s"}
	assert.Error(t, cfg.Validate())
}
