package config

import "time"

const (
	// Agent Constants
	AgentName                = "truliv-telephony-agent"
	DefaultMaxConcurrentJobs = 10
	DefaultRegion            = "IN"

	// WebRTC Constants
	DefaultSTUNServer1 = "stun:stun.l.google.com:19302"
	DefaultSTUNServer2 = "stun:stun1.l.google.com:19302"

	// Audio Constants
	DefaultSampleRate    = 48000
	DefaultChannelsMono  = 1
	DefaultFrameDuration = 20 * time.Millisecond

	// Connection Constants
	DefaultConnectionTimeout = 30 * time.Second
	DefaultLookupTimeout     = 10 * time.Second
	DefaultWorkerPing        = 10 * time.Second

	// OpenAI Constants
	DefaultOpenAIBaseURL = "https://api.openai.com"
	DefaultRealtimeModel = "gpt-realtime"
	DefaultVoice         = "alloy"

	// Lookup Constants
	DefaultGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

	// Identifier Constants
	OutboundRoomPrefix  = "outbound-"
	AgentIdentityPrefix = "agent-"

	// HTTP Constants
	DefaultHTTPPort              = "8080"
	DefaultDispatchRatePerMinute = 30

	// Call record Constants
	CallEventsChannel = "truliv:call-events"
	CallRecordTTL     = 7 * 24 * time.Hour
)
