package domain

// ParticipantKind mirrors the kinds a LiveKit room reports.
type ParticipantKind string

const (
	ParticipantStandard ParticipantKind = "standard"
	ParticipantSIP      ParticipantKind = "sip"
	ParticipantAgent    ParticipantKind = "agent"
	ParticipantIngress  ParticipantKind = "ingress"
	ParticipantEgress   ParticipantKind = "egress"
)

// Participant is the room member view the session logic needs.
type Participant struct {
	Identity string
	Name     string
	Kind     ParticipantKind
}

// IsSIP reports whether the participant is a telephony leg.
func (p Participant) IsSIP() bool {
	return p.Kind == ParticipantSIP
}
