package domain

import (
	"time"
)

// CallRecord represents one agent session, from job assignment to hang-up
type CallRecord struct {
	ID          string        `json:"id"`
	JobID       string        `json:"job_id"`
	RoomName    string        `json:"room_name"`
	Direction   CallDirection `json:"direction"`
	Destination string        `json:"destination,omitempty"`
	Purpose     CallPurpose   `json:"purpose,omitempty"`
	Status      string        `json:"status"`
	FailReason  string        `json:"fail_reason,omitempty"`
	Actions     []CallAction  `json:"actions,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     time.Time     `json:"ended_at,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// CallAction represents one tool invocation made during a call
type CallAction struct {
	Tool       string    `json:"tool"`
	Arguments  string    `json:"arguments,omitempty"`
	Result     string    `json:"result"`
	Reason     string    `json:"reason,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// CallEvent is published on every call status change
type CallEvent struct {
	CallID    string        `json:"call_id"`
	RoomName  string        `json:"room_name"`
	Direction CallDirection `json:"direction"`
	Status    string        `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	At        time.Time     `json:"at"`
}
