package openai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/truliv/voice-agent/internal/config"
	"github.com/truliv/voice-agent/internal/core/model/provider"
	"github.com/truliv/voice-agent/internal/core/tool"
	"github.com/truliv/voice-agent/pkg/logger"
	"go.uber.org/zap"
)

const agentTrackName = "agent-voice"

// ErrConversationClosed is returned by calls made after Close.
var ErrConversationClosed = errors.New("conversation closed")

type eventSender interface {
	SendEvent(event interface{}) error
}

// Conversation is one OpenAI Realtime session bridged to a room.
type Conversation struct {
	provider *Provider

	ctx    context.Context
	cancel context.CancelFunc

	sender eventSender
	closer func() error

	tools       *tool.ToolManager
	noiseFilter provider.NoiseFilterFunc
	gate        *responseGate
	audio       *audioRouter

	mu        sync.Mutex
	started   bool
	noise     string
	done      chan struct{}
	closeOnce sync.Once
}

func newConversation(p *Provider) *Conversation {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conversation{
		provider: p,
		ctx:      ctx,
		cancel:   cancel,
		gate:     newResponseGate(),
		audio:    newAudioRouter(),
		done:     make(chan struct{}),
	}
}

// Start mints a session token with the instructions and tools, connects to
// the model and bridges audio with the room.
func (c *Conversation) Start(ctx context.Context, room provider.MediaRoom, opts provider.SessionOptions) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("conversation already started")
	}
	c.started = true
	c.tools = opts.Tools
	c.noiseFilter = opts.NoiseFilter
	c.mu.Unlock()

	ctx = logger.WithFields(ctx, zap.String("room_name", room.Name()))
	c.ctx = logger.WithFields(c.ctx, zap.String("room_name", room.Name()))

	writer, err := room.PublishAudio(agentTrackName)
	if err != nil {
		return fmt.Errorf("failed to publish agent audio: %w", err)
	}

	token, err := c.provider.createClientSecret(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to generate ephemeral token: %w", err)
	}

	client := c.provider.newClient()
	client.EventHandler = c.handleEvent
	client.AudioTrackHandler = c.audio.modelTrackHandler(c.ctx, writer)

	initCtx, cancel := context.WithTimeout(ctx, config.DefaultConnectionTimeout)
	defer cancel()
	if err := client.Initialize(initCtx, token); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to initialize OpenAI WebRTC client: %w", err)
	}

	c.mu.Lock()
	c.sender = client
	c.closer = client.Close
	c.mu.Unlock()
	c.audio.setSink(client)

	room.OnAudioTrack(c.attachParticipant)

	go func() {
		select {
		case <-client.Done():
			logger.Info(c.ctx, "Model connection ended")
			_ = c.Close()
		case <-c.ctx.Done():
		}
	}()

	logger.Info(ctx, "Model connection established",
		zap.String("provider", c.provider.GetProviderType().String()),
		zap.String("model", c.provider.cfg.Model))
	return nil
}

// GenerateReply asks the model to speak and waits for that response to
// finish. Replies are serialised behind any response already in flight.
// A create the model rejects is returned as an error.
func (c *Conversation) GenerateReply(ctx context.Context, instructions string) error {
	if c.isClosed() {
		return ErrConversationClosed
	}

	eventID := "create_" + uuid.NewString()
	reply, err := c.gate.acquire(ctx, c.done, eventID)
	if err != nil {
		return err
	}

	event := map[string]interface{}{
		"type":     "response.create",
		"event_id": eventID,
	}
	if instructions != "" {
		event["response"] = map[string]interface{}{
			"instructions": instructions,
		}
	}
	if err := c.sendEvent(event); err != nil {
		c.gate.release()
		return fmt.Errorf("failed to create response: %w", err)
	}

	select {
	case <-reply.finished:
		return reply.err
	case <-c.done:
		return ErrConversationClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the model session ends.
func (c *Conversation) Done() <-chan struct{} {
	return c.done
}

// Close ends the model session and stops audio forwarding.
func (c *Conversation) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		c.audio.stop()
		c.gate.abort(ErrConversationClosed)

		c.mu.Lock()
		closer := c.closer
		c.mu.Unlock()
		if closer != nil {
			err = closer()
		}
	})
	return err
}

func (c *Conversation) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conversation) sendEvent(event map[string]interface{}) error {
	c.mu.Lock()
	sender := c.sender
	c.mu.Unlock()
	if sender == nil {
		return fmt.Errorf("model connection not started")
	}
	return sender.SendEvent(event)
}

// responseGate admits one model response at a time.
type responseGate struct {
	mu      sync.Mutex
	current *pendingReply // nil while no response is in flight
}

// pendingReply is one response holding the gate. eventID is empty for
// responses the model started on its own.
type pendingReply struct {
	eventID  string
	finished chan struct{}
	err      error
}

func newResponseGate() *responseGate {
	return &responseGate{}
}

// acquire waits for the gate to be idle and takes it for the create sent
// with eventID.
func (g *responseGate) acquire(ctx context.Context, closed <-chan struct{}, eventID string) (*pendingReply, error) {
	for {
		g.mu.Lock()
		if g.current == nil {
			g.current = &pendingReply{eventID: eventID, finished: make(chan struct{})}
			reply := g.current
			g.mu.Unlock()
			return reply, nil
		}
		wait := g.current.finished
		g.mu.Unlock()

		select {
		case <-wait:
		case <-closed:
			return nil, ErrConversationClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// markBusy records a response the model started on its own.
func (g *responseGate) markBusy() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		g.current = &pendingReply{finished: make(chan struct{})}
	}
}

func (g *responseGate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.finishLocked(nil)
}

// abort fails whatever response is in flight.
func (g *responseGate) abort(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.finishLocked(err)
}

// reject fails the in-flight reply if it was created by eventID and reports
// whether it did.
func (g *responseGate) reject(eventID string, err error) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if eventID == "" || g.current == nil || g.current.eventID != eventID {
		return false
	}
	g.finishLocked(err)
	return true
}

func (g *responseGate) finishLocked(err error) {
	if g.current == nil {
		return
	}
	g.current.err = err
	close(g.current.finished)
	g.current = nil
}

func (g *responseGate) isBusy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current != nil
}
