package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds the agent process configuration. It is built once in main and
// passed to every constructor.
type Config struct {
	// LiveKit configuration
	LiveKitURL       string
	LiveKitAPIKey    string
	LiveKitAPISecret string
	AgentName        string
	MaxConcurrentJob int

	// Telephony configuration
	SIPOutboundTrunkID  string
	HumanTransferNumber string
	DefaultRegion       string

	// OpenAI Realtime configuration
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	OpenAIRealtimeModel string
	OpenAIVoice         string

	// Lookup APIs
	TrulivAPIBaseURL string
	TrulivAPIKey     string
	GoogleMapsAPIKey string
	GeocodeURL       string
	LookupTimeout    time.Duration

	// WebRTC configuration
	STUNServers      []string
	TwilioAccountSID string
	TwilioAuthToken  string

	// HTTP surface
	HTTPPort              string
	APISecretKey          string
	DispatchRatePerMinute int

	// Redis configuration (call records)
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
}

// LoadFromEnv builds the configuration from environment variables.
// Note: .env file is loaded in main.go for local development using godotenv.Load()
func LoadFromEnv() *Config {
	cfg := &Config{
		LiveKitURL:       getEnvOrDefault("LIVEKIT_URL", ""),
		LiveKitAPIKey:    getEnvOrDefault("LIVEKIT_API_KEY", ""),
		LiveKitAPISecret: getEnvOrDefault("LIVEKIT_API_SECRET", ""),
		AgentName:        getEnvOrDefault("AGENT_NAME", AgentName),
		MaxConcurrentJob: getEnvAsIntOrDefault("MAX_CONCURRENT_JOBS", DefaultMaxConcurrentJobs),

		SIPOutboundTrunkID:  getEnvOrDefault("SIP_TRUNK_OUTBOUND_ID", ""),
		HumanTransferNumber: strings.TrimSpace(getEnvOrDefault("HUMAN_TRANSFER_NUMBER", "")),
		DefaultRegion:       getEnvOrDefault("DEFAULT_REGION", DefaultRegion),

		OpenAIAPIKey:        getEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIBaseURL:       getEnvOrDefault("OPENAI_BASE_URL", DefaultOpenAIBaseURL),
		OpenAIRealtimeModel: getEnvOrDefault("OPENAI_REALTIME_MODEL", DefaultRealtimeModel),
		OpenAIVoice:         getEnvOrDefault("OPENAI_VOICE", DefaultVoice),

		TrulivAPIBaseURL: strings.TrimRight(getEnvOrDefault("TRULIV_API_BASE_URL", ""), "/"),
		TrulivAPIKey:     getEnvOrDefault("TRULIV_API_KEY", ""),
		GoogleMapsAPIKey: getEnvOrDefault("GOOGLE_MAPS_API_KEY", ""),
		GeocodeURL:       getEnvOrDefault("GOOGLE_GEOCODE_URL", DefaultGeocodeURL),
		LookupTimeout:    getEnvAsDurationOrDefault("LOOKUP_TIMEOUT", DefaultLookupTimeout),

		STUNServers: []string{
			DefaultSTUNServer1,
			DefaultSTUNServer2,
		},
		TwilioAccountSID: getEnvOrDefault("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnvOrDefault("TWILIO_AUTH_TOKEN", ""),

		HTTPPort:              getEnvOrDefault("HTTP_PORT", DefaultHTTPPort),
		APISecretKey:          getEnvOrDefault("API_SECRET_KEY", ""),
		DispatchRatePerMinute: getEnvAsIntOrDefault("DISPATCH_RATE_PER_MINUTE", DefaultDispatchRatePerMinute),

		RedisHost:     getEnvOrDefault("REDIS_HOST", ""),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsIntOrDefault("REDIS_DB", 0),
	}

	if stun := getEnvOrDefault("STUN_SERVERS", ""); stun != "" {
		cfg.STUNServers = splitAndTrimStrings(stun, ",")
	}

	return cfg
}

// Validate reports missing settings the worker cannot start without.
// Lookup API keys are optional: tools degrade to their apology sentence.
func (c *Config) Validate() error {
	var missing []string
	if c.LiveKitURL == "" {
		missing = append(missing, "LIVEKIT_URL")
	}
	if c.LiveKitAPIKey == "" {
		missing = append(missing, "LIVEKIT_API_KEY")
	}
	if c.LiveKitAPISecret == "" {
		missing = append(missing, "LIVEKIT_API_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.MaxConcurrentJob <= 0 {
		return errors.New("MAX_CONCURRENT_JOBS must be positive")
	}
	return nil
}

// RedisEnabled reports whether call records should be persisted.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// TransferEnabled reports whether a human transfer destination is configured.
func (c *Config) TransferEnabled() bool {
	return c.HumanTransferNumber != ""
}
