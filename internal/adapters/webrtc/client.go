package webrtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	appconfig "github.com/truliv/voice-agent/internal/config"
	"github.com/truliv/voice-agent/pkg/logger"
	"go.uber.org/zap"
)

const (
	DefaultDataChannelName = "oai-events" // OpenAI default
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("webrtc client closed")

// ClientConfig configures the peer connection to the model provider.
type ClientConfig struct {
	STUNServers []string
	TURN        TURNProvider // optional
}

// Client handles a model (e.g., OpenAI) Realtime API session via WebRTC.
// Audio is forwarded as Opus RTP in both directions without decoding.
type Client struct {
	config         ClientConfig
	peerConnection *webrtc.PeerConnection
	dataChannel    *webrtc.DataChannel
	audioTrack     *webrtc.TrackLocalStaticRTP
	sdpExchanger   SDPExchanger

	// Event handling
	EventHandler func(data []byte)

	// Audio handling
	AudioTrackHandler func(track *webrtc.TrackRemote)

	mu        sync.Mutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
	dcOpen    chan struct{}
	openOnce  sync.Once
}

// NewClient creates a new WebRTC client for the model Realtime API
func NewClient(cfg ClientConfig) *Client {
	if len(cfg.STUNServers) == 0 {
		cfg.STUNServers = []string{appconfig.DefaultSTUNServer1}
	}
	return &Client{
		config: cfg,
		done:   make(chan struct{}),
		dcOpen: make(chan struct{}),
	}
}

// SetSDPExchanger injects a provider-specific SDP exchange function.
func (c *Client) SetSDPExchanger(fn SDPExchanger) {
	c.sdpExchanger = fn
}

// iceServers builds the ICE server list: STUN first, then TURN if available.
func (c *Client) iceServers(ctx context.Context) []webrtc.ICEServer {
	servers := []webrtc.ICEServer{{URLs: c.config.STUNServers}}
	if c.config.TURN == nil {
		return servers
	}

	creds, err := c.config.TURN.GetTURNCredentials(ctx)
	if err != nil {
		logger.Warn(ctx, "Failed to fetch TURN credentials, continuing with STUN only", zap.Error(err))
		return servers
	}
	for _, cred := range creds {
		servers = append(servers, webrtc.ICEServer{
			URLs:       cred.URLs,
			Username:   cred.Username,
			Credential: cred.Credential,
		})
	}
	return servers
}

// Initialize establishes the peer connection and waits for the event
// channel to open.
func (c *Client) Initialize(ctx context.Context, token string) error {
	logger.Info(ctx, "Initializing WebRTC connection to model provider")

	if c.sdpExchanger == nil {
		return fmt.Errorf("sdp exchanger not configured")
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: c.iceServers(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}
	c.peerConnection = pc

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Info(ctx, "WebRTC connection state change", zap.String("state", state.String()))
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			c.markDone()
		}
	})

	// Single sendrecv transceiver carrying caller audio up and model audio down
	tr, err := pc.AddTransceiverFromKind(
		webrtc.RTPCodecTypeAudio,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv},
	)
	if err != nil {
		return fmt.Errorf("failed to add sendrecv transceiver: %w", err)
	}

	audioTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: appconfig.DefaultSampleRate,
			Channels:  appconfig.DefaultChannelsMono,
		},
		"audio", "caller-input",
	)
	if err != nil {
		return fmt.Errorf("failed to create audio track: %w", err)
	}
	c.audioTrack = audioTrack

	if err := tr.Sender().ReplaceTrack(audioTrack); err != nil {
		return fmt.Errorf("failed to replace track: %w", err)
	}

	dc, err := pc.CreateDataChannel(DefaultDataChannelName, nil)
	if err != nil {
		return fmt.Errorf("failed to create data channel: %w", err)
	}
	c.dataChannel = dc

	dc.OnOpen(func() {
		logger.Info(ctx, "Model data channel opened")
		c.openOnce.Do(func() { close(c.dcOpen) })
	})
	dc.OnClose(func() {
		logger.Info(ctx, "Model data channel closed")
		c.markDone()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString && c.EventHandler != nil {
			c.EventHandler(msg.Data)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logger.Info(ctx, "Received audio track from model", zap.String("kind", track.Kind().String()))
		if c.AudioTrackHandler != nil {
			c.AudioTrackHandler(track)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}

	// Wait for ICE gathering
	select {
	case <-webrtc.GatheringCompletePromise(pc):
	case <-ctx.Done():
		return fmt.Errorf("ice gathering: %w", ctx.Err())
	}

	answerSDP, err := c.sdpExchanger(ctx, pc.LocalDescription().SDP, token)
	if err != nil {
		return fmt.Errorf("failed to exchange SDP: %w", err)
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	}); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	select {
	case <-c.dcOpen:
	case <-c.done:
		return errors.New("peer connection closed before data channel opened")
	case <-ctx.Done():
		return fmt.Errorf("waiting for data channel: %w", ctx.Err())
	}

	logger.Info(ctx, "WebRTC connection initialized successfully")
	return nil
}

// SendEvent sends a JSON event to the model via data channel
func (c *Client) SendEvent(event interface{}) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if c.dataChannel == nil || c.dataChannel.ReadyState() != webrtc.DataChannelStateOpen {
		return fmt.Errorf("data channel not ready")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return c.dataChannel.SendText(string(data))
}

// WriteRTP forwards one caller audio packet to the model.
func (c *Client) WriteRTP(pkt *rtp.Packet) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if c.audioTrack == nil {
		return fmt.Errorf("audio track not available")
	}
	return c.audioTrack.WriteRTP(pkt)
}

// Done is closed once the peer connection fails or is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) markDone() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Close closes the WebRTC connection
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	defer c.markDone()

	if c.dataChannel != nil {
		_ = c.dataChannel.Close()
	}
	if c.peerConnection != nil {
		return c.peerConnection.Close()
	}
	return nil
}
