package livekit

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/truliv/voice-agent/internal/domain"
	"github.com/truliv/voice-agent/pkg/logger"
	"github.com/twitchtv/twirp"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/emptypb"
)

// SIPError reports a telephony bridge failure with its SIP status, when known.
type SIPError struct {
	Op            string
	Code          twirp.ErrorCode
	SIPStatusCode int
	SIPStatus     string
	Err           error
}

func (e *SIPError) Error() string {
	if e.SIPStatusCode != 0 {
		return fmt.Sprintf("sip %s failed: %d %s (%s)", e.Op, e.SIPStatusCode, e.SIPStatus, e.Code)
	}
	return fmt.Sprintf("sip %s failed: %v", e.Op, e.Err)
}

func (e *SIPError) Unwrap() error { return e.Err }

// NotAnswered reports whether the callee did not pick up (busy, declined,
// no answer or unreachable) as opposed to a bridge or configuration fault.
func (e *SIPError) NotAnswered() bool {
	switch e.SIPStatusCode {
	case 408, 480, 486, 487, 600, 603:
		return true
	}
	return false
}

// newSIPError categorises an SDK error, reading the SIP metadata the server
// attaches to Twirp errors.
func newSIPError(op string, err error) *SIPError {
	se := &SIPError{Op: op, Err: err, Code: twirp.Unknown}
	var te twirp.Error
	if errors.As(err, &te) {
		se.Code = te.Code()
		se.SIPStatus = te.Meta("sip_status")
		if code, convErr := strconv.Atoi(te.Meta("sip_status_code")); convErr == nil {
			se.SIPStatusCode = code
		}
	}
	return se
}

// sipService is the subset of lksdk.SIPClient the bridge calls.
type sipService interface {
	CreateSIPParticipant(ctx context.Context, req *livekit.CreateSIPParticipantRequest) (*livekit.SIPParticipantInfo, error)
	TransferSIPParticipant(ctx context.Context, req *livekit.TransferSIPParticipantRequest) (*emptypb.Empty, error)
}

// roomService is the subset of lksdk.RoomServiceClient the bridge calls.
type roomService interface {
	RemoveParticipant(ctx context.Context, req *livekit.RoomParticipantIdentity) (*livekit.RemoveParticipantResponse, error)
}

// SIPBridge places, transfers and hangs up telephone calls through LiveKit.
type SIPBridge struct {
	client sipService
	rooms  roomService
}

// NewSIPBridge creates a bridge backed by the LiveKit SIP and room services.
func NewSIPBridge(cfg *LiveKitConfig) *SIPBridge {
	return &SIPBridge{
		client: lksdk.NewSIPClient(cfg.HTTPURL(), cfg.APIKey, cfg.APISecret),
		rooms:  lksdk.NewRoomServiceClient(cfg.HTTPURL(), cfg.APIKey, cfg.APISecret),
	}
}

// PlaceCall dials out and blocks until the callee answers or the attempt fails.
func (b *SIPBridge) PlaceCall(ctx context.Context, call domain.OutboundCall) error {
	identity := call.ParticipantIdentity
	if identity == "" {
		identity = call.To
	}

	req := &livekit.CreateSIPParticipantRequest{
		SipTrunkId:          call.TrunkID,
		SipCallTo:           call.To,
		RoomName:            call.RoomName,
		ParticipantIdentity: identity,
		ParticipantName:     call.ParticipantName,
		WaitUntilAnswered:   true,
	}

	logger.Info(ctx, "Placing outbound call",
		zap.String("room_name", call.RoomName),
		zap.String("to", call.To),
		zap.String("trunk_id", call.TrunkID))

	info, err := b.client.CreateSIPParticipant(ctx, req)
	if err != nil {
		se := newSIPError("create_participant", err)
		logger.Warn(ctx, "Outbound call failed",
			zap.String("to", call.To),
			zap.String("twirp_code", string(se.Code)),
			zap.Int("sip_status_code", se.SIPStatusCode),
			zap.String("sip_status", se.SIPStatus),
			zap.Bool("not_answered", se.NotAnswered()),
			zap.Error(err))
		return se
	}

	logger.Info(ctx, "Outbound call answered",
		zap.String("participant_identity", info.GetParticipantIdentity()),
		zap.String("sip_call_id", info.GetSipCallId()))
	return nil
}

// Transfer moves a SIP participant to another destination (tel: or sip: URI).
func (b *SIPBridge) Transfer(ctx context.Context, req domain.TransferRequest) error {
	_, err := b.client.TransferSIPParticipant(ctx, &livekit.TransferSIPParticipantRequest{
		RoomName:            req.RoomName,
		ParticipantIdentity: req.ParticipantIdentity,
		TransferTo:          req.TransferTo,
		PlayDialtone:        false,
	})
	if err != nil {
		return newSIPError("transfer", err)
	}
	return nil
}

// HangUp removes a participant from the room, ending its SIP leg.
func (b *SIPBridge) HangUp(ctx context.Context, roomName, identity string) error {
	_, err := b.rooms.RemoveParticipant(ctx, &livekit.RoomParticipantIdentity{
		Room:     roomName,
		Identity: identity,
	})
	if err != nil {
		return newSIPError("hang_up", err)
	}
	logger.Info(ctx, "Participant removed",
		zap.String("room_name", roomName),
		zap.String("participant_identity", identity))
	return nil
}
