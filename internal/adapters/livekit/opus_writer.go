package livekit

import (
	"sync/atomic"

	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4/pkg/media"
	appconfig "github.com/truliv/voice-agent/internal/config"
)

// sampleTrack is the subset of lksdk.LocalSampleTrack the writer uses.
type sampleTrack interface {
	WriteSample(sample media.Sample, opts *lksdk.SampleWriteOptions) error
}

// LiveKitOpusWriter writes model Opus frames into a published LiveKit track
type LiveKitOpusWriter struct {
	track      sampleTrack
	roomName   string
	frameCount atomic.Int64
}

// NewLiveKitOpusWriter creates a new LiveKit Opus writer
func NewLiveKitOpusWriter(track sampleTrack, roomName string) *LiveKitOpusWriter {
	return &LiveKitOpusWriter{
		track:    track,
		roomName: roomName,
	}
}

// WriteOpusFrame writes one 20ms Opus frame to the LiveKit track
func (w *LiveKitOpusWriter) WriteOpusFrame(opusPayload []byte) error {
	if w.track == nil || len(opusPayload) == 0 {
		return nil
	}

	// Duration MUST match actual Opus frame size to avoid buffering/drift
	sample := media.Sample{
		Data:     opusPayload,
		Duration: appconfig.DefaultFrameDuration,
	}
	if err := w.track.WriteSample(sample, nil); err != nil {
		return err
	}

	w.frameCount.Add(1)
	return nil
}

// Frames returns how many frames were written.
func (w *LiveKitOpusWriter) Frames() int64 {
	return w.frameCount.Load()
}
