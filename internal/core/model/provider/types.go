package provider

import (
	"context"

	"github.com/pion/webrtc/v4"
	webrtcadapter "github.com/truliv/voice-agent/internal/adapters/webrtc"
	"github.com/truliv/voice-agent/internal/core/tool"
	"github.com/truliv/voice-agent/internal/domain"
)

// ProviderType represents the type of AI model provider
type ProviderType string

const (
	ProviderTypeOpenAI ProviderType = "openai"
)

// String returns the string representation of ProviderType
func (pt ProviderType) String() string {
	return string(pt)
}

// NoiseFilter selects the input noise profile applied to a participant.
type NoiseFilter string

const (
	// NoiseFilterTelephony is tuned for narrowband phone audio.
	NoiseFilterTelephony NoiseFilter = "telephony"
	// NoiseFilterGeneral is used for browser and app participants.
	NoiseFilterGeneral NoiseFilter = "general"
)

// NoiseFilterFunc chooses a filter each time a participant's audio is attached.
type NoiseFilterFunc func(p domain.Participant) NoiseFilter

// OpusWriter is an alias for webrtc.OpusWriter
type OpusWriter = webrtcadapter.OpusWriter

// AudioTrackHandler receives every subscribed remote audio track.
type AudioTrackHandler func(p domain.Participant, track *webrtc.TrackRemote)

// MediaRoom is the room a conversation listens to and speaks into.
type MediaRoom interface {
	Name() string
	RemoteParticipants() []domain.Participant
	// OnAudioTrack registers the handler and replays tracks already subscribed.
	OnAudioTrack(handler AudioTrackHandler)
	// PublishAudio publishes an Opus track and returns its writer.
	PublishAudio(name string) (OpusWriter, error)
	// Done is closed when the bot leaves or the last caller hangs up.
	Done() <-chan struct{}
	Disconnect()
}

// SessionOptions are fixed when a conversation starts.
type SessionOptions struct {
	Instructions string
	Tools        *tool.ToolManager
	NoiseFilter  NoiseFilterFunc
}

// Conversation is one realtime voice session with the model.
type Conversation interface {
	// Start connects to the model and bridges audio with the room.
	Start(ctx context.Context, room MediaRoom, opts SessionOptions) error
	// GenerateReply asks the model to speak following the instructions.
	GenerateReply(ctx context.Context, instructions string) error
	// Done is closed when the model session ends.
	Done() <-chan struct{}
	Close() error
}

// ConversationFactory creates unstarted conversations.
type ConversationFactory interface {
	NewConversation(ctx context.Context) (Conversation, error)
}
