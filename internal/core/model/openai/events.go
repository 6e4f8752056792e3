package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/truliv/voice-agent/internal/core/model/provider"
	"github.com/truliv/voice-agent/internal/domain"
	"github.com/truliv/voice-agent/pkg/logger"
	"go.uber.org/zap"
)

const openAISessionExpiredCode = "session_expired"

// outputItem is a finished response output item. function_call items carry
// the tool name, call id and complete arguments.
type outputItem struct {
	Type      string `json:"type"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// serverEvent holds the fields of the realtime events this session reads.
type serverEvent struct {
	Type       string      `json:"type"`
	CallID     string      `json:"call_id"`
	Transcript string      `json:"transcript"`
	Item       *outputItem `json:"item"`
	Error      *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
		EventID string `json:"event_id"`
	} `json:"error"`
	Response *struct {
		Status string `json:"status"`
		Usage  *struct {
			TotalTokens  int `json:"total_tokens"`
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	} `json:"response"`
}

// handleEvent handles one data channel message from the model.
func (c *Conversation) handleEvent(data []byte) {
	var event serverEvent
	if err := json.Unmarshal(data, &event); err != nil {
		logger.Warn(c.ctx, "Failed to decode model event", zap.Error(err))
		return
	}

	// Only log critical events, filter out verbose delta events
	if !strings.Contains(event.Type, "delta") &&
		!strings.Contains(event.Type, "audio_buffer") {
		logger.Debug(c.ctx, "OpenAI Event", zap.String("event_type", event.Type))
	}

	switch event.Type {
	case "error":
		c.handleErrorEvent(&event)

	case "response.created":
		c.gate.markBusy()

	case "response.done":
		c.handleResponseDone(&event)

	case "response.function_call_arguments.done":
		logger.Debug(c.ctx, "Function call arguments complete", zap.String("call_id", event.CallID))

	case "response.output_item.done":
		if item := event.Item; item != nil && item.Type == "function_call" {
			logger.Info(c.ctx, "Function call ready",
				zap.String("name", item.Name),
				zap.String("call_id", item.CallID))
			go c.executeFunctionCall(item.CallID, item.Name, item.Arguments)
		}

	case "conversation.item.input_audio_transcription.completed":
		if event.Transcript != "" {
			logger.Info(c.ctx, "User transcript completed", zap.String("transcript", event.Transcript))
		}

	case "response.output_audio_transcript.done":
		if event.Transcript != "" {
			logger.Info(c.ctx, "Agent transcript completed", zap.String("transcript", event.Transcript))
		}
	}
}

func (c *Conversation) handleErrorEvent(event *serverEvent) {
	var code, message, eventID string
	if event.Error != nil {
		code = event.Error.Code
		message = event.Error.Message
		eventID = event.Error.EventID
	}
	logger.Error(c.ctx, "OpenAI error event",
		zap.String("code", code),
		zap.String("message", message),
		zap.String("client_event_id", eventID))

	// A rejected response.create never produces response.done. Errors caused
	// by other client events leave the in-flight response alone.
	if c.gate.reject(eventID, fmt.Errorf("response rejected: %s: %s", code, message)) {
		logger.Warn(c.ctx, "Response create rejected", zap.String("client_event_id", eventID))
	}

	if code == openAISessionExpiredCode {
		logger.Warn(c.ctx, "Session expired, closing connection")
		_ = c.Close()
	}
}

func (c *Conversation) handleResponseDone(event *serverEvent) {
	if event.Response != nil {
		fields := []zap.Field{zap.String("status", event.Response.Status)}
		if u := event.Response.Usage; u != nil {
			fields = append(fields,
				zap.Int("total_tokens", u.TotalTokens),
				zap.Int("input_tokens", u.InputTokens),
				zap.Int("output_tokens", u.OutputTokens))
		}
		logger.Info(c.ctx, "OpenAI response done", fields...)
	}
	c.gate.release()
}

// attachParticipant applies the participant's noise filter, then makes its
// track the model input.
func (c *Conversation) attachParticipant(p domain.Participant, track *webrtc.TrackRemote) {
	c.applyNoiseFilter(p)
	if track == nil {
		return
	}
	c.audio.attach(c.ctx, p, trackReader(track))
}

// applyNoiseFilter updates the input noise profile when it changes.
func (c *Conversation) applyNoiseFilter(p domain.Participant) {
	c.mu.Lock()
	choose := c.noiseFilter
	c.mu.Unlock()
	if choose == nil {
		return
	}

	filter := choose(p)
	noise := noiseReductionType(filter)

	c.mu.Lock()
	unchanged := c.noise == noise
	c.noise = noise
	c.mu.Unlock()
	if unchanged {
		return
	}

	err := c.sendEvent(map[string]interface{}{
		"type": "session.update",
		"session": map[string]interface{}{
			"type": "realtime",
			"audio": map[string]interface{}{
				"input": map[string]interface{}{
					"noise_reduction": map[string]interface{}{
						"type": noise,
					},
				},
			},
		},
	})
	if err != nil {
		logger.Warn(c.ctx, "Failed to update noise reduction", zap.Error(err))
		return
	}
	logger.Info(c.ctx, "Noise filter applied",
		zap.String("participant_identity", p.Identity),
		zap.String("participant_kind", string(p.Kind)),
		zap.String("filter", string(filter)),
		zap.String("noise_reduction", noise))
}

var _ provider.Conversation = (*Conversation)(nil)
