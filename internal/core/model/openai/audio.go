package openai

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/truliv/voice-agent/internal/core/model/provider"
	"github.com/truliv/voice-agent/internal/domain"
	"github.com/truliv/voice-agent/pkg/logger"
	"go.uber.org/zap"
)

// packetReader reads the next RTP packet of a track.
type packetReader func() (*rtp.Packet, error)

type rtpSink interface {
	WriteRTP(pkt *rtp.Packet) error
}

func trackReader(track *webrtc.TrackRemote) packetReader {
	return func() (*rtp.Packet, error) {
		pkt, _, err := track.ReadRTP()
		return pkt, err
	}
}

// audioRouter moves Opus RTP between the room and the model without
// decoding. Only the most recently attached caller track feeds the model.
type audioRouter struct {
	mu      sync.Mutex
	sink    rtpSink
	current context.CancelFunc
	active  string
	stopped bool
	wg      sync.WaitGroup
}

func newAudioRouter() *audioRouter {
	return &audioRouter{}
}

func (r *audioRouter) setSink(sink rtpSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// attach makes read the model's input, replacing any earlier track.
func (r *audioRouter) attach(ctx context.Context, p domain.Participant, read packetReader) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	if r.current != nil {
		logger.Info(ctx, "Replacing model input track",
			zap.String("previous", r.active),
			zap.String("participant_identity", p.Identity))
		r.current()
	}
	fwdCtx, cancel := context.WithCancel(ctx)
	r.current = cancel
	r.active = p.Identity
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.forwardToModel(fwdCtx, p, read)
	}()
}

func (r *audioRouter) forwardToModel(ctx context.Context, p domain.Participant, read packetReader) {
	var packets int64
	defer func() {
		logger.Debug(ctx, "Caller audio forwarding stopped",
			zap.String("participant_identity", p.Identity),
			zap.Int64("packets", packets))
	}()

	for {
		pkt, err := read()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				logger.Warn(ctx, "Failed to read caller audio", zap.Error(err))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		r.mu.Lock()
		sink := r.sink
		r.mu.Unlock()
		if sink == nil {
			continue
		}
		if err := sink.WriteRTP(pkt); err != nil {
			logger.Debug(ctx, "Failed to forward caller audio", zap.Error(err))
			return
		}
		packets++
	}
}

// modelTrackHandler returns the callback for the model's audio track.
func (r *audioRouter) modelTrackHandler(ctx context.Context, writer provider.OpusWriter) func(track *webrtc.TrackRemote) {
	return func(track *webrtc.TrackRemote) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			forwardToRoom(ctx, trackReader(track), writer)
		}()
	}
}

// forwardToRoom writes every model Opus payload to the agent's room track.
func forwardToRoom(ctx context.Context, read packetReader, writer provider.OpusWriter) {
	for {
		pkt, err := read()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				logger.Warn(ctx, "Failed to read model audio", zap.Error(err))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		if err := writer.WriteOpusFrame(pkt.Payload); err != nil {
			logger.Debug(ctx, "Failed to write model audio to room", zap.Error(err))
		}
	}
}

// stop cancels the active forwarder. Goroutines blocked on a read exit once
// their track closes.
func (r *audioRouter) stop() {
	r.mu.Lock()
	r.stopped = true
	if r.current != nil {
		r.current()
	}
	r.mu.Unlock()
}
