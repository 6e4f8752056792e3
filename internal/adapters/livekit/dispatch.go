package livekit

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/truliv/voice-agent/internal/domain"
	"github.com/truliv/voice-agent/pkg/logger"
	"go.uber.org/zap"
)

// roomSuffixDigits is the length of the random part of outbound room names.
const roomSuffixDigits = 10

// DispatchMetadata is the job metadata attached to an outbound dispatch.
type DispatchMetadata struct {
	PhoneNumber string `json:"phone_number"`
	Purpose     string `json:"purpose,omitempty"`
}

// DispatchResult describes a created dispatch.
type DispatchResult struct {
	DispatchID string `json:"dispatch_id"`
	RoomName   string `json:"room_name"`
	AgentName  string `json:"agent_name"`
}

type dispatchService interface {
	CreateDispatch(ctx context.Context, req *livekit.CreateAgentDispatchRequest) (*livekit.AgentDispatch, error)
}

// Dispatcher asks LiveKit to start the agent in a fresh room that will dial out.
type Dispatcher struct {
	client     dispatchService
	agentName  string
	roomPrefix string
}

// NewDispatcher creates a dispatcher backed by the agent dispatch service.
func NewDispatcher(cfg *LiveKitConfig) *Dispatcher {
	return &Dispatcher{
		client:     lksdk.NewAgentDispatchServiceClient(cfg.HTTPURL(), cfg.APIKey, cfg.APISecret),
		agentName:  cfg.AgentName,
		roomPrefix: cfg.RoomPrefix,
	}
}

// DispatchOutbound creates a dispatch whose metadata names the number to call.
func (d *Dispatcher) DispatchOutbound(ctx context.Context, phoneNumber string, purpose domain.CallPurpose) (*DispatchResult, error) {
	roomName, err := NewOutboundRoomName(d.roomPrefix)
	if err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(DispatchMetadata{PhoneNumber: phoneNumber, Purpose: string(purpose)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dispatch metadata: %w", err)
	}

	dispatch, err := d.client.CreateDispatch(ctx, &livekit.CreateAgentDispatchRequest{
		AgentName: d.agentName,
		Room:      roomName,
		Metadata:  string(metadata),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch: %w", err)
	}

	logger.Info(ctx, "Outbound dispatch created",
		zap.String("dispatch_id", dispatch.GetId()),
		zap.String("room_name", roomName),
		zap.String("agent_name", d.agentName))

	return &DispatchResult{
		DispatchID: dispatch.GetId(),
		RoomName:   roomName,
		AgentName:  d.agentName,
	}, nil
}

// NewOutboundRoomName returns prefix followed by ten random digits.
func NewOutboundRoomName(prefix string) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(roomSuffixDigits), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate room name: %w", err)
	}
	return fmt.Sprintf("%s%0*d", prefix, roomSuffixDigits, n.Int64()), nil
}
