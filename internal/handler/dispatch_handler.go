package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/truliv/voice-agent/internal/adapters/livekit"
	"github.com/truliv/voice-agent/internal/domain"
	"github.com/truliv/voice-agent/internal/services/call"
	"github.com/truliv/voice-agent/pkg/logger"
	"go.uber.org/zap"
)

// OutboundDispatcher creates an agent dispatch for one outbound call.
type OutboundDispatcher interface {
	DispatchOutbound(ctx context.Context, phoneNumber string, purpose domain.CallPurpose) (*livekit.DispatchResult, error)
}

// OutboundCallRequest is the body of POST /api/calls/outbound
type OutboundCallRequest struct {
	PhoneNumber string `json:"phone_number"`
	Purpose     string `json:"purpose,omitempty"`
}

// DispatchHandler starts outbound calls
type DispatchHandler struct {
	dispatcher OutboundDispatcher
	region     string
}

// NewDispatchHandler creates a dispatch handler. Numbers without a country
// code are parsed in region.
func NewDispatchHandler(dispatcher OutboundDispatcher, region string) *DispatchHandler {
	return &DispatchHandler{dispatcher: dispatcher, region: region}
}

// HandleOutboundCall creates a dispatch for the requested number
// POST /api/calls/outbound
func (h *DispatchHandler) HandleOutboundCall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var request OutboundCallRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		logger.Warn(ctx, "Failed to decode outbound call request", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	phoneNumber, err := call.NormalizeNumber(request.PhoneNumber, h.region)
	if err != nil {
		logger.Warn(ctx, "Invalid phone number",
			zap.String("phone_number", request.PhoneNumber),
			zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid phone_number")
		return
	}
	purpose := domain.ParseCallPurpose(request.Purpose)

	result, err := h.dispatcher.DispatchOutbound(ctx, phoneNumber, purpose)
	if err != nil {
		logger.Error(ctx, "Failed to dispatch outbound call",
			zap.String("phone_number", phoneNumber),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to dispatch call")
		return
	}

	logger.Info(ctx, "Outbound call dispatched",
		zap.String("phone_number", phoneNumber),
		zap.String("purpose", string(purpose)),
		zap.String("room_name", result.RoomName))

	writeJSON(w, http.StatusAccepted, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
