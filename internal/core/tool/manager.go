package tool

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/truliv/voice-agent/pkg/logger"
	"go.uber.org/zap"
)

/*
Tool Manager - Registry Pattern

Architecture:
- manager.go (this file): registry, definitions, routing
- lookups.go: property, room, bed and location tools
- transfer.go: human transfer tool

A session builds one manager, registers its tools and hands it to the
conversation. The conversation advertises Definitions() to the model and
routes every function call back through ExecuteTool. Executors always
return the sentence the model should speak; failures are already folded
into that sentence.
*/

// ToolExecutorFunc executes a tool with its raw JSON arguments.
type ToolExecutorFunc func(ctx context.Context, argumentsJSON json.RawMessage) string

// ToolDefinition defines a tool with its metadata and execution logic
type ToolDefinition struct {
	Name        string                 // Tool name (e.g., "get_properties")
	Description string                 // Tool description for the model
	Parameters  map[string]interface{} // JSON schema of the arguments
	Executor    ToolExecutorFunc       // Execution function
}

// Invocation describes one completed tool call.
type Invocation struct {
	Name      string
	Arguments string
	Result    string
	Duration  time.Duration
}

// InvocationObserver is notified after every tool call.
type InvocationObserver func(ctx context.Context, inv Invocation)

// UnknownToolResult is returned for names that were never registered.
const UnknownToolResult = "Sorry, I can't do that right now."

// ToolManager manages tool definitions, routing, and execution
type ToolManager struct {
	mu       sync.RWMutex
	order    []string
	registry map[string]*ToolDefinition
	observer InvocationObserver
}

// NewToolManager creates a new, empty tool manager
func NewToolManager() *ToolManager {
	return &ToolManager{
		registry: make(map[string]*ToolDefinition),
	}
}

// RegisterTool registers a tool. Registering a name twice replaces the
// earlier definition but keeps its position.
func (m *ToolManager) RegisterTool(tool *ToolDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.registry[tool.Name]; !exists {
		m.order = append(m.order, tool.Name)
	}
	m.registry[tool.Name] = tool
	logger.Base().Debug("Registered tool", zap.String("name", tool.Name))
}

// SetObserver installs a callback run after each ExecuteTool.
func (m *ToolManager) SetObserver(observer InvocationObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = observer
}

// Names returns the registered tool names in registration order.
func (m *ToolManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Definitions returns the registered tools in registration order.
func (m *ToolManager) Definitions() []ToolDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(m.order))
	for _, name := range m.order {
		defs = append(defs, *m.registry[name])
	}
	return defs
}

// GetToolDefinitions returns the function tool definitions for OpenAI
// Realtime (flat structure).
func (m *ToolManager) GetToolDefinitions() []interface{} {
	defs := m.Definitions()
	tools := make([]interface{}, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, map[string]interface{}{
			"type":        "function",
			"name":        def.Name,
			"description": def.Description,
			"parameters":  def.Parameters,
		})
	}
	return tools
}

// ExecuteTool is the unified entry point for all tool executions.
// It never returns an error: unknown tools get a fixed sentence.
func (m *ToolManager) ExecuteTool(ctx context.Context, toolName string, argumentsJSON string) string {
	m.mu.RLock()
	def, ok := m.registry[toolName]
	observer := m.observer
	m.mu.RUnlock()

	start := time.Now()
	var result string
	if !ok || def.Executor == nil {
		logger.Warn(ctx, "Tool not found in registry", zap.String("tool_name", toolName))
		result = UnknownToolResult
	} else {
		args := strings.TrimSpace(argumentsJSON)
		if args == "" {
			args = "{}"
		}
		result = def.Executor(ctx, json.RawMessage(args))
	}

	inv := Invocation{
		Name:      toolName,
		Arguments: argumentsJSON,
		Result:    result,
		Duration:  time.Since(start),
	}
	logger.Info(ctx, "Tool executed",
		zap.String("tool_name", toolName),
		zap.Duration("duration", inv.Duration),
		zap.Int("result_len", len(result)))

	if observer != nil {
		observer(ctx, inv)
	}
	return result
}

// Validator is implemented by argument types with required fields.
type Validator interface {
	Validate() error
}

// Typed adapts a function over decoded arguments into a ToolExecutorFunc.
// Arguments that do not decode, or that fail Validate, get the failure
// sentence and fn is not called.
func Typed[A any](failure string, fn func(ctx context.Context, args A) string) ToolExecutorFunc {
	return func(ctx context.Context, raw json.RawMessage) string {
		var args A
		if err := json.Unmarshal(raw, &args); err != nil {
			logger.Warn(ctx, "Failed to decode tool arguments", zap.Error(err))
			return failure
		}
		if v, ok := any(&args).(Validator); ok {
			if err := v.Validate(); err != nil {
				logger.Warn(ctx, "Invalid tool arguments", zap.Error(err))
				return failure
			}
		}
		return fn(ctx, args)
	}
}

// object builds a JSON schema object with the given properties.
func object(required []string, props map[string]interface{}) map[string]interface{} {
	if required == nil {
		required = []string{}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}
