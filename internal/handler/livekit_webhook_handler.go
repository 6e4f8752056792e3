package handler

import (
	"net/http"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/webhook"
	"github.com/truliv/voice-agent/pkg/logger"
	"go.uber.org/zap"
)

// LiveKitWebhookHandler receives signed LiveKit server webhooks
type LiveKitWebhookHandler struct {
	keys auth.KeyProvider
}

// NewLiveKitWebhookHandler verifies webhooks against the project's API key pair
func NewLiveKitWebhookHandler(apiKey, apiSecret string) *LiveKitWebhookHandler {
	return &LiveKitWebhookHandler{keys: auth.NewSimpleKeyProvider(apiKey, apiSecret)}
}

// HandleLiveKitWebhook processes LiveKit webhook events
// POST /livekit/webhook
func (h *LiveKitWebhookHandler) HandleLiveKitWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	event, err := webhook.ReceiveWebhookEvent(r, h.keys)
	if err != nil {
		logger.Warn(ctx, "Rejected LiveKit webhook", zap.Error(err))
		writeError(w, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	room := event.GetRoom().GetName()
	switch event.GetEvent() {
	case "room_started":
		logger.Info(ctx, "Room started", zap.String("room", room))
	case "room_finished":
		logger.Info(ctx, "Room finished", zap.String("room", room))
	case "participant_joined":
		logger.Info(ctx, "Participant joined",
			zap.String("participant", event.GetParticipant().GetIdentity()),
			zap.String("kind", event.GetParticipant().GetKind().String()),
			zap.String("room", room))
	case "participant_left":
		logger.Info(ctx, "Participant left",
			zap.String("participant", event.GetParticipant().GetIdentity()),
			zap.String("room", room))
	case "track_published":
		logger.Debug(ctx, "Track published",
			zap.String("participant", event.GetParticipant().GetIdentity()),
			zap.String("track_type", event.GetTrack().GetType().String()),
			zap.String("room", room))
	default:
		logger.Debug(ctx, "Unhandled LiveKit event", zap.String("event", event.GetEvent()), zap.String("room", room))
	}

	w.WriteHeader(http.StatusOK)
}
