package livekit

import (
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
)

// GenerateWorkerToken generates the token an agent worker registers with.
func (c *LiveKitConfig) GenerateWorkerToken(ttl time.Duration) (string, error) {
	at := auth.NewAccessToken(c.APIKey, c.APISecret)
	at.SetVideoGrant(&auth.VideoGrant{Agent: true}).
		SetValidFor(ttl)

	token, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("failed to generate JWT: %w", err)
	}
	return token, nil
}
