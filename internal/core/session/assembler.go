package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/truliv/voice-agent/internal/adapters/worker"
	"github.com/truliv/voice-agent/internal/core/model/provider"
	"github.com/truliv/voice-agent/internal/core/tool"
	"github.com/truliv/voice-agent/internal/domain"
	"github.com/truliv/voice-agent/internal/prompts"
	"github.com/truliv/voice-agent/internal/repository"
	"github.com/truliv/voice-agent/internal/services/call"
	"github.com/truliv/voice-agent/pkg/logger"
	"go.uber.org/zap"
)

// ErrCallNotAnswered is returned when the outbound leg could not be placed.
var ErrCallNotAnswered = errors.New("outbound call not answered")

// CallPlacer dials the destination into the job room and can hang it up.
type CallPlacer interface {
	PlaceCall(ctx context.Context, call domain.OutboundCall) error
	HangUp(ctx context.Context, roomName, identity string) error
}

// Options are the per-process settings of every session.
type Options struct {
	TrunkID        string
	TransferNumber string
	Region         string
}

// Deps are the collaborators a session is assembled from.
type Deps struct {
	Placer        CallPlacer
	Transferer    tool.SIPTransferer
	Conversations provider.ConversationFactory
	Properties    tool.PropertyLookup
	Geocoder      tool.Geocoder
	Recorder      repository.CallRecorder
}

// Assembler wires one agent session per job.
type Assembler struct {
	opts Options
	deps Deps
}

// NewAssembler creates an assembler. A nil recorder keeps records in memory only.
func NewAssembler(opts Options, deps Deps) *Assembler {
	if deps.Recorder == nil {
		deps.Recorder = repository.NewCallRecordRepository(nil)
	}
	return &Assembler{opts: opts, deps: deps}
}

// NoiseFilterFor picks the telephony profile for SIP callers and the
// general one for everyone else.
func NoiseFilterFor(p domain.Participant) provider.NoiseFilter {
	if p.IsSIP() {
		return provider.NoiseFilterTelephony
	}
	return provider.NoiseFilterGeneral
}

// Run handles one job: resolve the call, dial out if needed, start the
// conversation and wait for the call to end.
func (a *Assembler) Run(ctx context.Context, job worker.Job, room provider.MediaRoom) error {
	callCtx := call.ResolveCallContext(job.Metadata, a.opts.Region)
	ctx = logger.WithFields(ctx,
		zap.String("job_id", job.ID),
		zap.String("room_name", room.Name()),
		zap.String("direction", string(callCtx.Direction)))

	logger.Info(ctx, "Agent session starting",
		zap.String("destination", callCtx.Destination),
		zap.String("purpose", string(callCtx.Purpose)))

	record := &domain.CallRecord{
		JobID:       job.ID,
		RoomName:    room.Name(),
		Direction:   callCtx.Direction,
		Destination: callCtx.Destination,
		Purpose:     callCtx.Purpose,
	}
	if err := a.deps.Recorder.Start(ctx, record); err != nil {
		logger.Warn(ctx, "Failed to store call record", zap.Error(err))
	}

	if callCtx.IsOutbound() {
		if err := a.placeCall(ctx, room, callCtx.Destination); err != nil {
			a.finish(ctx, record, outboundFailureStatus(err), err.Error())
			room.Disconnect()
			return fmt.Errorf("%w: %v", ErrCallNotAnswered, err)
		}
	}

	conv, err := a.deps.Conversations.NewConversation(ctx)
	if err != nil {
		a.abandon(ctx, room, callCtx, record, err)
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	defer conv.Close()

	tools := a.buildTools(ctx, conv, room, record)

	if err := conv.Start(ctx, room, provider.SessionOptions{
		Instructions: prompts.InstructionsFor(callCtx),
		Tools:        tools,
		NoiseFilter:  NoiseFilterFor,
	}); err != nil {
		a.abandon(ctx, room, callCtx, record, err)
		return fmt.Errorf("failed to start conversation: %w", err)
	}

	// The callee speaks first on outbound calls.
	if !callCtx.IsOutbound() {
		if err := conv.GenerateReply(ctx, prompts.InboundGreeting); err != nil {
			logger.Warn(ctx, "Failed to greet caller", zap.Error(err))
		}
	}

	status := domain.CallStatusEnded
	select {
	case <-room.Done():
		logger.Info(ctx, "Room closed, ending session")
	case <-conv.Done():
		logger.Info(ctx, "Model session ended, leaving room")
	case <-ctx.Done():
		status = domain.CallStatusCancelled
		logger.Info(ctx, "Job cancelled, leaving room")
	}

	a.finish(ctx, record, status, "")
	room.Disconnect()
	return nil
}

func (a *Assembler) placeCall(ctx context.Context, room provider.MediaRoom, destination string) error {
	logger.Info(ctx, "Placing outbound call", zap.String("destination", destination))

	err := a.deps.Placer.PlaceCall(ctx, domain.OutboundCall{
		RoomName:            room.Name(),
		TrunkID:             a.opts.TrunkID,
		To:                  destination,
		ParticipantIdentity: destination,
	})
	if err != nil {
		logger.Error(ctx, "Outbound call failed",
			zap.String("destination", destination),
			zap.Error(err))
		return err
	}

	logger.Info(ctx, "Outbound call answered", zap.String("destination", destination))
	return nil
}

// abandon ends a session that failed before the conversation ran. An answered
// outbound callee is hung up so the line is not left open in the room.
func (a *Assembler) abandon(ctx context.Context, room provider.MediaRoom, callCtx domain.CallContext, record *domain.CallRecord, cause error) {
	if callCtx.IsOutbound() {
		if err := a.deps.Placer.HangUp(context.WithoutCancel(ctx), room.Name(), callCtx.Destination); err != nil {
			logger.Warn(ctx, "Failed to hang up outbound call", zap.Error(err))
		}
	}
	a.finish(ctx, record, domain.CallStatusFailed, cause.Error())
	room.Disconnect()
}

// buildTools registers the four lookups and the transfer tool, recording
// every invocation on the call record.
func (a *Assembler) buildTools(ctx context.Context, conv provider.Conversation, room provider.MediaRoom, record *domain.CallRecord) *tool.ToolManager {
	tools := tool.NewToolManager()
	tool.NewLookups(a.deps.Properties, a.deps.Geocoder).Register(tools)

	var (
		mu             sync.Mutex
		transferReason string
	)
	transfer := tool.NewTransferHandler(conv, room, a.deps.Transferer, a.opts.TransferNumber)
	transfer.OnFailure(func(_ context.Context, reason string) {
		mu.Lock()
		transferReason = reason
		mu.Unlock()
	})
	transfer.Register(tools)

	tools.SetObserver(func(callCtx context.Context, inv tool.Invocation) {
		action := domain.CallAction{
			Tool:       inv.Name,
			Arguments:  inv.Arguments,
			Result:     inv.Result,
			DurationMs: inv.Duration.Milliseconds(),
		}
		if inv.Name == tool.ToolNameTransferToHuman {
			mu.Lock()
			action.Reason = transferReason
			transferReason = ""
			mu.Unlock()
		}
		if err := a.deps.Recorder.AddAction(callCtx, record, action); err != nil {
			logger.Warn(callCtx, "Failed to record tool call", zap.String("tool_name", inv.Name), zap.Error(err))
		}
	})

	logger.Debug(ctx, "Tools registered", zap.Strings("tools", tools.Names()))
	return tools
}

func (a *Assembler) finish(ctx context.Context, record *domain.CallRecord, status, reason string) {
	// The job context may already be cancelled; the record still gets saved.
	if err := a.deps.Recorder.Finish(context.WithoutCancel(ctx), record, status, reason); err != nil {
		logger.Warn(ctx, "Failed to finish call record", zap.Error(err))
	}
}

// outboundFailureStatus distinguishes an unanswered callee from other errors.
func outboundFailureStatus(err error) string {
	var sipErr interface{ NotAnswered() bool }
	if errors.As(err, &sipErr) && sipErr.NotAnswered() {
		return domain.CallStatusNoAnswer
	}
	return domain.CallStatusFailed
}
