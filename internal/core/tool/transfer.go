package tool

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/truliv/voice-agent/internal/domain"
	"github.com/truliv/voice-agent/internal/prompts"
	"github.com/truliv/voice-agent/pkg/logger"
	"go.uber.org/zap"
)

// Spoken transfer outcomes.
const (
	TransferSucceeded = "Call transferred successfully."
	TransferFailed    = "I'm sorry, I couldn't transfer the call right now. Please call our support number directly."
)

// Transfer failure reasons, logged only.
const (
	TransferReasonNoSIPParticipant = "no_sip_participant"
	TransferReasonNoNumber         = "no_transfer_number"
	TransferReasonBridgeRejected   = "bridge_rejected"
)

// ReplyGenerator asks the conversation to speak.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, instructions string) error
}

// ParticipantSource exposes the room the session is attached to.
type ParticipantSource interface {
	Name() string
	RemoteParticipants() []domain.Participant
}

// SIPTransferer moves a SIP participant to another number.
type SIPTransferer interface {
	Transfer(ctx context.Context, req domain.TransferRequest) error
}

// TransferHandler implements transfer_to_human.
type TransferHandler struct {
	replies  ReplyGenerator
	room     ParticipantSource
	bridge   SIPTransferer
	number   string
	observer func(ctx context.Context, reason string)
}

// NewTransferHandler creates the handler. An empty number disables transfers
// but keeps the tool registered so the caller still gets an answer.
func NewTransferHandler(replies ReplyGenerator, room ParticipantSource, bridge SIPTransferer, number string) *TransferHandler {
	return &TransferHandler{
		replies: replies,
		room:    room,
		bridge:  bridge,
		number:  strings.TrimSpace(number),
	}
}

// OnFailure installs a callback receiving the internal failure reason.
func (h *TransferHandler) OnFailure(fn func(ctx context.Context, reason string)) {
	h.observer = fn
}

// TransferToHuman speaks the hold notice, then moves the first SIP
// participant of the room to the configured number.
func (h *TransferHandler) TransferToHuman(ctx context.Context) string {
	if err := h.replies.GenerateReply(ctx, prompts.TransferNotice); err != nil {
		// The transfer is still attempted; the caller just misses the notice.
		logger.Warn(ctx, "Failed to speak transfer notice", zap.Error(err))
	}

	sip, ok := h.findSIPParticipant()
	if !ok {
		return h.fail(ctx, TransferReasonNoSIPParticipant, nil)
	}
	if h.number == "" {
		return h.fail(ctx, TransferReasonNoNumber, nil)
	}

	req := domain.TransferRequest{
		RoomName:            h.room.Name(),
		ParticipantIdentity: sip.Identity,
		TransferTo:          "tel:" + h.number,
	}
	if err := h.bridge.Transfer(ctx, req); err != nil {
		return h.fail(ctx, TransferReasonBridgeRejected, err)
	}

	logger.Info(ctx, "Call transferred to human agent",
		zap.String("participant", sip.Identity),
		zap.String("transfer_to", req.TransferTo))
	return TransferSucceeded
}

// Register adds transfer_to_human to the manager.
func (h *TransferHandler) Register(m *ToolManager) {
	m.RegisterTool(&ToolDefinition{
		Name:        ToolNameTransferToHuman,
		Description: "Transfer the call to a human agent when the caller requests it or when you cannot help them.",
		Parameters:  object(nil, map[string]interface{}{}),
		Executor: func(ctx context.Context, _ json.RawMessage) string {
			return h.TransferToHuman(ctx)
		},
	})
}

func (h *TransferHandler) findSIPParticipant() (domain.Participant, bool) {
	for _, p := range h.room.RemoteParticipants() {
		if p.IsSIP() {
			return p, true
		}
	}
	return domain.Participant{}, false
}

func (h *TransferHandler) fail(ctx context.Context, reason string, err error) string {
	fields := []zap.Field{zap.String("reason", reason)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	logger.Warn(ctx, "Human transfer failed", fields...)
	if h.observer != nil {
		h.observer(ctx, reason)
	}
	return TransferFailed
}
