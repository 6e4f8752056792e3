package webrtc

import "context"

// OpusWriter interface for audio output
type OpusWriter interface {
	WriteOpusFrame(opusPayload []byte) error
}

// TURNCredentials represents TURN server credentials
type TURNCredentials struct {
	URLs       []string
	Username   string
	Credential string
}

// TURNProvider issues short-lived TURN credentials for a peer connection.
type TURNProvider interface {
	GetTURNCredentials(ctx context.Context) ([]TURNCredentials, error)
}

// SDPExchanger posts a local offer and returns the remote answer.
type SDPExchanger func(ctx context.Context, sdp, token string) (string, error)
