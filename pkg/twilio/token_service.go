package twilio

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/truliv/voice-agent/pkg/logger"
	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// ErrDisabled is returned when no Twilio credentials are configured.
var ErrDisabled = errors.New("twilio token service is disabled")

// tokenRefreshAge is how long a fetched token is reused. Twilio tokens are
// valid for 24 hours.
const tokenRefreshAge = 23 * time.Hour

type tokenCreator interface {
	CreateToken(params *api.CreateTokenParams) (*api.ApiV2010Token, error)
}

// TwilioTokenService manages Twilio Network Traversal Service tokens
// It fetches and caches TURN credentials from Twilio's API
type TwilioTokenService struct {
	client        tokenCreator
	currentToken  *api.ApiV2010Token
	mutex         sync.RWMutex
	lastFetchTime time.Time
	enabled       bool
	now           func() time.Time
}

// TURNCredentials represents TURN server credentials
type TURNCredentials struct {
	URLs       []string
	Username   string
	Credential string
}

// NewTwilioTokenService creates a new Twilio token service
// If accountSID or authToken is empty, the service will be disabled
func NewTwilioTokenService(accountSID, authToken string) *TwilioTokenService {
	if accountSID == "" || authToken == "" {
		logger.Base().Warn("Twilio credentials not provided, TURN service disabled")
		return &TwilioTokenService{enabled: false, now: time.Now}
	}

	rest := twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken})
	return &TwilioTokenService{
		client:  rest.Api,
		enabled: true,
		now:     time.Now,
	}
}

// RefreshToken fetches a new token from Twilio API
func (s *TwilioTokenService) RefreshToken(ctx context.Context) error {
	if !s.enabled {
		return ErrDisabled
	}

	logger.Info(ctx, "Fetching new Twilio TURN token")

	resp, err := s.client.CreateToken(&api.CreateTokenParams{})
	if err != nil {
		logger.Error(ctx, "Failed to fetch Twilio token", zap.Error(err))
		return err
	}

	s.mutex.Lock()
	s.currentToken = resp
	s.lastFetchTime = s.now()
	s.mutex.Unlock()

	if resp.IceServers != nil {
		logger.Info(ctx, "Received ICE servers from Twilio", zap.Int("count", len(*resp.IceServers)))
	}
	return nil
}

// GetTURNCredentials returns the TURN entries of the cached token, fetching
// a new token when none is cached or the cached one is too old.
func (s *TwilioTokenService) GetTURNCredentials(ctx context.Context) ([]TURNCredentials, error) {
	if !s.enabled {
		return nil, ErrDisabled
	}

	s.mutex.RLock()
	fresh := s.currentToken != nil && s.currentToken.IceServers != nil &&
		s.now().Sub(s.lastFetchTime) < tokenRefreshAge
	s.mutex.RUnlock()

	if !fresh {
		if err := s.RefreshToken(ctx); err != nil {
			return nil, err
		}
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.currentToken == nil || s.currentToken.IceServers == nil {
		return nil, nil
	}

	credentials := make([]TURNCredentials, 0)
	for _, server := range *s.currentToken.IceServers {
		// Only include TURN servers (skip STUN)
		if !strings.HasPrefix(server.Url, "turn") {
			continue
		}
		credentials = append(credentials, TURNCredentials{
			URLs:       []string{server.Url},
			Username:   server.Username,
			Credential: server.Credential,
		})
	}

	return credentials, nil
}

// IsEnabled returns whether the service is enabled
func (s *TwilioTokenService) IsEnabled() bool {
	return s.enabled
}
