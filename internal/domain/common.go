package domain

import "strings"

// CallDirection tells whether the agent answered a call or placed it.
type CallDirection string

const (
	DirectionInbound  CallDirection = "inbound"
	DirectionOutbound CallDirection = "outbound"
)

// CallPurpose selects an outbound script. Empty means a plain outbound call.
type CallPurpose string

const (
	PurposeNone         CallPurpose = ""
	PurposeRentReminder CallPurpose = "rent_reminder"
	PurposeFollowup     CallPurpose = "followup"
)

// ParseCallPurpose maps free-form metadata to a known purpose.
// Unknown values collapse to PurposeNone.
func ParseCallPurpose(s string) CallPurpose {
	switch CallPurpose(strings.ToLower(strings.TrimSpace(s))) {
	case PurposeRentReminder:
		return PurposeRentReminder
	case PurposeFollowup:
		return PurposeFollowup
	default:
		return PurposeNone
	}
}

// CallContext is the per-session decision of direction and destination.
// Destination is set if and only if Direction is outbound.
type CallContext struct {
	Direction   CallDirection `json:"direction"`
	Destination string        `json:"destination,omitempty"`
	Purpose     CallPurpose   `json:"purpose,omitempty"`
}

// IsOutbound reports whether the agent has to dial the destination.
func (c CallContext) IsOutbound() bool {
	return c.Direction == DirectionOutbound && c.Destination != ""
}

// InboundCall is the context used whenever metadata does not name a number.
func InboundCall() CallContext {
	return CallContext{Direction: DirectionInbound}
}

// OutboundCall describes one dial-out request to the telephony bridge.
type OutboundCall struct {
	RoomName            string
	TrunkID             string
	To                  string
	ParticipantIdentity string
	ParticipantName     string
}

// TransferRequest describes moving a SIP participant to another number.
type TransferRequest struct {
	RoomName            string
	ParticipantIdentity string
	TransferTo          string
}

// CallStatus constants for call session status
const (
	CallStatusActive    = "active"
	CallStatusEnded     = "ended"
	CallStatusFailed    = "failed"
	CallStatusNoAnswer  = "no_answer"
	CallStatusCancelled = "cancelled"
)
