package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/livekit/protocol/livekit"
	"github.com/truliv/voice-agent/internal/config"
	"github.com/truliv/voice-agent/pkg/logger"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

const (
	agentPath          = "/agent"
	defaultWriteWait   = 10 * time.Second
	maxReconnectDelay  = 30 * time.Second
	defaultWorkerToken = 30 * time.Minute
)

// Job is one room assignment handed to the agent.
type Job struct {
	ID         string
	DispatchID string
	RoomName   string
	Metadata   string
	AgentName  string
	URL        string
	Token      string
}

// JobHandler runs a job until the call ends. It is called on its own goroutine.
type JobHandler interface {
	HandleJob(ctx context.Context, job Job) error
}

// JobHandlerFunc adapts a function to JobHandler.
type JobHandlerFunc func(ctx context.Context, job Job) error

// HandleJob implements JobHandler.
func (f JobHandlerFunc) HandleJob(ctx context.Context, job Job) error { return f(ctx, job) }

// TokenSource returns a fresh worker token.
type TokenSource func(ttl time.Duration) (string, error)

// Options configures the worker registration.
type Options struct {
	ServerURL    string // ws(s):// URL of the LiveKit server
	AgentName    string
	Version      string
	MaxJobs      int
	PingInterval time.Duration
	Token        TokenSource
}

// Worker registers with LiveKit as an agent worker and runs assigned jobs.
type Worker struct {
	opts    Options
	handler JobHandler
	dialer  *websocket.Dialer

	sendMu sync.Mutex
	send   func(msg *livekit.WorkerMessage) error

	mu       sync.Mutex
	jobs     map[string]context.CancelFunc
	workerID string
	wg       sync.WaitGroup
}

// New creates a worker. Jobs are run through handler.
func New(opts Options, handler JobHandler) *Worker {
	if opts.PingInterval <= 0 {
		opts.PingInterval = config.DefaultWorkerPing
	}
	if opts.MaxJobs <= 0 {
		opts.MaxJobs = 1
	}
	return &Worker{
		opts:    opts,
		handler: handler,
		dialer:  &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		jobs:    make(map[string]context.CancelFunc),
		send:    func(*livekit.WorkerMessage) error { return errors.New("worker not connected") },
	}
}

// Run keeps the worker registered until ctx is cancelled, reconnecting with
// exponential backoff. Running jobs are cancelled and awaited on return.
func (w *Worker) Run(ctx context.Context) error {
	defer w.shutdown()

	expo := backoff.NewExponentialBackOff()
	expo.MaxInterval = maxReconnectDelay
	expo.MaxElapsedTime = 0 // retry forever
	policy := backoff.WithContext(expo, ctx)

	operation := func() error {
		err := w.connectAndServe(ctx, expo.Reset)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err == nil {
			err = errors.New("connection closed")
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.Base().Warn("Agent worker connection lost, reconnecting",
			zap.Error(err),
			zap.Duration("retry_in", wait))
	}

	err := backoff.RetryNotify(operation, policy, notify)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// connectAndServe dials, registers and reads until the connection breaks.
// onRegistered is called once the server accepts the registration.
func (w *Worker) connectAndServe(ctx context.Context, onRegistered func()) error {
	token, err := w.opts.Token(defaultWorkerToken)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create worker token: %w", err))
	}

	url := strings.TrimRight(w.opts.ServerURL, "/") + agentPath
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := w.dialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("failed to dial agent endpoint: %w", err)
	}
	defer conn.Close()

	w.setSender(func(msg *livekit.WorkerMessage) error {
		data, err := proto.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal worker message: %w", err)
		}
		_ = conn.SetWriteDeadline(time.Now().Add(defaultWriteWait))
		return conn.WriteMessage(websocket.BinaryMessage, data)
	})

	if err := w.sendMessage(&livekit.WorkerMessage{
		Message: &livekit.WorkerMessage_Register{
			Register: &livekit.RegisterWorkerRequest{
				Type:         livekit.JobType_JT_ROOM,
				AgentName:    w.opts.AgentName,
				Version:      w.opts.Version,
				PingInterval: uint32(w.opts.PingInterval / time.Second),
			},
		},
	}); err != nil {
		return fmt.Errorf("failed to register worker: %w", err)
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()
	go w.pingLoop(connCtx)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read agent message: %w", err)
		}

		var msg livekit.ServerMessage
		if err := proto.Unmarshal(data, &msg); err != nil {
			logger.Base().Warn("Failed to decode server message", zap.Error(err))
			continue
		}
		if _, ok := msg.Message.(*livekit.ServerMessage_Register); ok && onRegistered != nil {
			onRegistered()
		}
		w.handleMessage(ctx, &msg)
	}
}

func (w *Worker) setSender(fn func(msg *livekit.WorkerMessage) error) {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	w.send = fn
}

// sendMessage serialises all writes to the connection.
func (w *Worker) sendMessage(msg *livekit.WorkerMessage) error {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	return w.send(msg)
}

func (w *Worker) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.sendMessage(&livekit.WorkerMessage{
				Message: &livekit.WorkerMessage_Ping{
					Ping: &livekit.WorkerPing{Timestamp: time.Now().UnixMilli()},
				},
			}); err != nil {
				logger.Base().Debug("Failed to send worker ping", zap.Error(err))
				return
			}
			w.reportStatus()
		}
	}
}

// handleMessage dispatches one server message.
func (w *Worker) handleMessage(ctx context.Context, msg *livekit.ServerMessage) {
	switch m := msg.Message.(type) {
	case *livekit.ServerMessage_Register:
		w.mu.Lock()
		w.workerID = m.Register.GetWorkerId()
		w.mu.Unlock()
		logger.Base().Info("Agent worker registered",
			zap.String("worker_id", m.Register.GetWorkerId()),
			zap.String("agent_name", w.opts.AgentName))
	case *livekit.ServerMessage_Availability:
		w.handleAvailability(m.Availability)
	case *livekit.ServerMessage_Assignment:
		w.handleAssignment(ctx, m.Assignment)
	case *livekit.ServerMessage_Termination:
		w.handleTermination(m.Termination)
	case *livekit.ServerMessage_Pong:
		// keepalive
	default:
		logger.Base().Debug("Ignoring unknown server message")
	}
}

func (w *Worker) handleAvailability(req *livekit.AvailabilityRequest) {
	job := req.GetJob()
	available := w.ActiveJobs() < w.opts.MaxJobs
	if name := job.GetAgentName(); name != "" && name != w.opts.AgentName {
		available = false
	}

	logger.Base().Info("Availability request",
		zap.String("job_id", job.GetId()),
		zap.String("room_name", job.GetRoom().GetName()),
		zap.Bool("available", available))

	if err := w.sendMessage(&livekit.WorkerMessage{
		Message: &livekit.WorkerMessage_Availability{
			Availability: &livekit.AvailabilityResponse{
				JobId:               job.GetId(),
				Available:           available,
				ParticipantIdentity: config.AgentIdentityPrefix + job.GetId(),
				ParticipantName:     w.opts.AgentName,
			},
		},
	}); err != nil {
		logger.Base().Warn("Failed to answer availability", zap.String("job_id", job.GetId()), zap.Error(err))
	}
}

func (w *Worker) handleAssignment(ctx context.Context, assignment *livekit.JobAssignment) {
	pj := assignment.GetJob()
	job := Job{
		ID:         pj.GetId(),
		DispatchID: pj.GetDispatchId(),
		RoomName:   pj.GetRoom().GetName(),
		Metadata:   pj.GetMetadata(),
		AgentName:  pj.GetAgentName(),
		URL:        assignment.GetUrl(),
		Token:      assignment.GetToken(),
	}
	if job.URL == "" {
		job.URL = w.opts.ServerURL
	}

	jobCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	if _, exists := w.jobs[job.ID]; exists {
		w.mu.Unlock()
		cancel()
		logger.Base().Warn("Duplicate job assignment ignored", zap.String("job_id", job.ID))
		return
	}
	w.jobs[job.ID] = cancel
	w.wg.Add(1)
	w.mu.Unlock()

	w.updateJob(job.ID, livekit.JobStatus_JS_RUNNING, "")
	w.reportStatus()

	go func() {
		defer w.wg.Done()
		defer w.finishJob(job.ID)

		err := w.runJob(jobCtx, job)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Base().Warn("Job failed", zap.String("job_id", job.ID), zap.Error(err))
			w.updateJob(job.ID, livekit.JobStatus_JS_FAILED, err.Error())
			return
		}
		w.updateJob(job.ID, livekit.JobStatus_JS_SUCCESS, "")
	}()
}

// runJob isolates the worker from a panicking job.
func (w *Worker) runJob(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return w.handler.HandleJob(ctx, job)
}

func (w *Worker) handleTermination(term *livekit.JobTermination) {
	w.mu.Lock()
	cancel, ok := w.jobs[term.GetJobId()]
	w.mu.Unlock()
	if !ok {
		return
	}
	logger.Base().Info("Job terminated by server", zap.String("job_id", term.GetJobId()))
	cancel()
}

func (w *Worker) finishJob(jobID string) {
	w.mu.Lock()
	if cancel, ok := w.jobs[jobID]; ok {
		cancel()
		delete(w.jobs, jobID)
	}
	w.mu.Unlock()
	w.reportStatus()
}

func (w *Worker) updateJob(jobID string, status livekit.JobStatus, errMsg string) {
	if err := w.sendMessage(&livekit.WorkerMessage{
		Message: &livekit.WorkerMessage_UpdateJob{
			UpdateJob: &livekit.UpdateJobStatus{
				JobId:  jobID,
				Status: status,
				Error:  errMsg,
			},
		},
	}); err != nil {
		logger.Base().Warn("Failed to update job status",
			zap.String("job_id", jobID),
			zap.String("status", status.String()),
			zap.Error(err))
	}
}

// reportStatus publishes load so the server stops routing when full.
func (w *Worker) reportStatus() {
	active := w.ActiveJobs()
	status := livekit.WorkerStatus_WS_AVAILABLE
	if active >= w.opts.MaxJobs {
		status = livekit.WorkerStatus_WS_FULL
	}
	_ = w.sendMessage(&livekit.WorkerMessage{
		Message: &livekit.WorkerMessage_UpdateWorker{
			UpdateWorker: &livekit.UpdateWorkerStatus{
				Status:   status.Enum(),
				Load:     float32(active) / float32(w.opts.MaxJobs),
				JobCount: uint32(active),
			},
		},
	})
}

// ActiveJobs returns the number of running jobs.
func (w *Worker) ActiveJobs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.jobs)
}

func (w *Worker) shutdown() {
	w.mu.Lock()
	for _, cancel := range w.jobs {
		cancel()
	}
	w.mu.Unlock()
	w.wg.Wait()
}
