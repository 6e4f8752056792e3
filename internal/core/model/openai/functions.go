package openai

import (
	"github.com/truliv/voice-agent/internal/core/tool"
	"github.com/truliv/voice-agent/pkg/logger"
	"go.uber.org/zap"
)

// executeFunctionCall runs the tool and returns its sentence to the model.
// It runs off the event loop: a tool may itself call GenerateReply, which
// waits for the response that carried the call to finish.
func (c *Conversation) executeFunctionCall(callID, functionName, arguments string) {
	c.mu.Lock()
	tools := c.tools
	c.mu.Unlock()

	ctx := logger.WithFields(c.ctx, zap.String("call_id", callID), zap.String("tool_name", functionName))

	result := tool.UnknownToolResult
	if tools != nil {
		result = tools.ExecuteTool(ctx, functionName, arguments)
	}

	c.sendFunctionResult(callID, result)
}

// sendFunctionResult sends the tool output and asks the model to continue.
func (c *Conversation) sendFunctionResult(callID, result string) {
	if err := c.sendEvent(map[string]interface{}{
		"type": "conversation.item.create",
		"item": map[string]interface{}{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  result,
		},
	}); err != nil {
		logger.Error(c.ctx, "Failed to send function result", zap.String("call_id", callID), zap.Error(err))
		return
	}

	if err := c.GenerateReply(c.ctx, ""); err != nil {
		logger.Warn(c.ctx, "Failed to continue after function call", zap.String("call_id", callID), zap.Error(err))
	}
}
