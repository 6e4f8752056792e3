package livekit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	appconfig "github.com/truliv/voice-agent/internal/config"
	"github.com/truliv/voice-agent/internal/core/model/provider"
	"github.com/truliv/voice-agent/internal/domain"
	"github.com/truliv/voice-agent/pkg/logger"
	"go.uber.org/zap"
)

type subscribedTrack struct {
	participant domain.Participant
	track       *webrtc.TrackRemote
}

// RoomSession is the agent's connection to one job room.
type RoomSession struct {
	ctx       context.Context
	room      *lksdk.Room
	name      string
	createdAt time.Time

	mu      sync.Mutex
	handler provider.AudioTrackHandler
	pending []subscribedTrack

	done     chan struct{}
	doneOnce sync.Once
}

// JoinRoom connects to a room with a job token and returns the session.
func JoinRoom(ctx context.Context, url, token string) (*RoomSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := newRoomSession(ctx)
	roomCallback := &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: func(track *webrtc.TrackRemote, _ *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				logger.Info(ctx, "Track subscribed",
					zap.String("kind", track.Kind().String()),
					zap.String("participant", rp.Identity()))
				if track.Kind() == webrtc.RTPCodecTypeAudio {
					s.trackSubscribed(toParticipant(rp), track)
				}
			},
		},
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			logger.Info(ctx, "Participant connected",
				zap.String("participant_identity", rp.Identity()),
				zap.String("kind", string(toParticipant(rp).Kind)))
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			logger.Info(ctx, "Participant disconnected", zap.String("participant_identity", rp.Identity()))
			s.participantLeft()
		},
		OnDisconnected: func() {
			logger.Info(ctx, "Bot disconnected from room", zap.String("room_name", s.name))
			s.markDone()
		},
	}

	room, err := lksdk.ConnectToRoomWithToken(url, token, roomCallback)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to room: %w", err)
	}
	s.room = room
	s.name = room.Name()

	logger.Info(ctx, "Bot joined room", zap.String("room_name", s.name))
	return s, nil
}

func newRoomSession(ctx context.Context) *RoomSession {
	return &RoomSession{
		ctx:       ctx,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Name returns the room name.
func (s *RoomSession) Name() string {
	return s.name
}

// RemoteParticipants lists everyone in the room except the agent itself.
func (s *RoomSession) RemoteParticipants() []domain.Participant {
	if s.room == nil {
		return nil
	}
	remotes := s.room.GetRemoteParticipants()
	out := make([]domain.Participant, 0, len(remotes))
	for _, rp := range remotes {
		out = append(out, toParticipant(rp))
	}
	return out
}

// OnAudioTrack registers the audio handler and replays audio tracks that
// were subscribed before it was set.
func (s *RoomSession) OnAudioTrack(handler provider.AudioTrackHandler) {
	s.mu.Lock()
	s.handler = handler
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, st := range pending {
		handler(st.participant, st.track)
	}
}

func (s *RoomSession) trackSubscribed(p domain.Participant, track *webrtc.TrackRemote) {
	s.mu.Lock()
	handler := s.handler
	if handler == nil {
		s.pending = append(s.pending, subscribedTrack{participant: p, track: track})
	}
	s.mu.Unlock()

	if handler != nil {
		handler(p, track)
	}
}

// PublishAudio publishes an Opus track for the agent's voice.
func (s *RoomSession) PublishAudio(name string) (provider.OpusWriter, error) {
	if s.room == nil {
		return nil, fmt.Errorf("room not connected")
	}

	// 20ms Opus frames, mono, 48kHz; DTX disabled to keep a continuous stream
	audioTrack, err := lksdk.NewLocalSampleTrack(webrtc.RTPCodecCapability{
		MimeType:    webrtc.MimeTypeOpus,
		ClockRate:   appconfig.DefaultSampleRate,
		Channels:    appconfig.DefaultChannelsMono,
		SDPFmtpLine: "minptime=20;useinbandfec=1;usedtx=0",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}

	if _, err := s.room.LocalParticipant.PublishTrack(audioTrack, &lksdk.TrackPublicationOptions{
		Name: name,
	}); err != nil {
		return nil, fmt.Errorf("failed to publish track: %w", err)
	}

	logger.Info(s.ctx, "Agent audio track published", zap.String("track_name", name))
	return NewLiveKitOpusWriter(audioTrack, s.name), nil
}

// Done is closed when the agent is disconnected or no caller is left.
func (s *RoomSession) Done() <-chan struct{} {
	return s.done
}

// participantLeft ends the session once only agents remain in the room.
func (s *RoomSession) participantLeft() {
	for _, p := range s.RemoteParticipants() {
		if p.Kind != domain.ParticipantAgent {
			return
		}
	}
	logger.Info(s.ctx, "Last caller left the room", zap.String("room_name", s.name))
	s.markDone()
}

func (s *RoomSession) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Disconnect leaves the room.
func (s *RoomSession) Disconnect() {
	if s.room != nil {
		s.room.Disconnect()
	}
	s.markDone()
	logger.Info(s.ctx, "Room finished",
		zap.String("room_name", s.name),
		zap.Float64("duration", time.Since(s.createdAt).Seconds()))
}

func toParticipant(rp *lksdk.RemoteParticipant) domain.Participant {
	return domain.Participant{
		Identity: rp.Identity(),
		Name:     rp.Name(),
		Kind:     kindFromProto(livekit.ParticipantInfo_Kind(rp.Kind())),
	}
}

func kindFromProto(kind livekit.ParticipantInfo_Kind) domain.ParticipantKind {
	switch kind {
	case livekit.ParticipantInfo_SIP:
		return domain.ParticipantSIP
	case livekit.ParticipantInfo_AGENT:
		return domain.ParticipantAgent
	case livekit.ParticipantInfo_INGRESS:
		return domain.ParticipantIngress
	case livekit.ParticipantInfo_EGRESS:
		return domain.ParticipantEgress
	default:
		return domain.ParticipantStandard
	}
}
