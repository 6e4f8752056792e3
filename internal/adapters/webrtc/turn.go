package webrtc

import (
	"context"

	"github.com/truliv/voice-agent/pkg/twilio"
)

type twilioTURN struct {
	svc *twilio.TwilioTokenService
}

// NewTwilioTURN exposes Twilio network traversal tokens as a TURNProvider.
// It returns nil when the service is disabled.
func NewTwilioTURN(svc *twilio.TwilioTokenService) TURNProvider {
	if svc == nil || !svc.IsEnabled() {
		return nil
	}
	return &twilioTURN{svc: svc}
}

func (t *twilioTURN) GetTURNCredentials(ctx context.Context) ([]TURNCredentials, error) {
	creds, err := t.svc.GetTURNCredentials(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TURNCredentials, 0, len(creds))
	for _, c := range creds {
		out = append(out, TURNCredentials{URLs: c.URLs, Username: c.Username, Credential: c.Credential})
	}
	return out, nil
}
