package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	httpadapter "github.com/truliv/voice-agent/internal/adapters/http"
	"github.com/truliv/voice-agent/internal/adapters/worker"
	"github.com/truliv/voice-agent/internal/core/model/provider"
	"github.com/truliv/voice-agent/internal/core/tool"
	"github.com/truliv/voice-agent/internal/domain"
	"github.com/truliv/voice-agent/internal/prompts"
)

type fakeRoom struct {
	name         string
	participants []domain.Participant
	done         chan struct{}
	doneOnce     sync.Once
	disconnects  int
	mu           sync.Mutex
}

func newFakeRoom(name string, participants ...domain.Participant) *fakeRoom {
	return &fakeRoom{name: name, participants: participants, done: make(chan struct{})}
}

func (r *fakeRoom) Name() string { return r.name }
func (r *fakeRoom) RemoteParticipants() []domain.Participant { return r.participants }
func (r *fakeRoom) OnAudioTrack(provider.AudioTrackHandler) {}
func (r *fakeRoom) PublishAudio(string) (provider.OpusWriter, error) { return nil, nil }
func (r *fakeRoom) Done() <-chan struct{} { return r.done }
func (r *fakeRoom) hangUp() { r.doneOnce.Do(func() { close(r.done) }) }

func (r *fakeRoom) Disconnect() {
	r.mu.Lock()
	r.disconnects++
	r.mu.Unlock()
	r.hangUp()
}

type fakeConversation struct {
	mu       sync.Mutex
	opts     provider.SessionOptions
	started  chan struct{}
	replies  []string
	done     chan struct{}
	closed   bool
	startErr error
}

func newFakeConversation() *fakeConversation {
	return &fakeConversation{started: make(chan struct{}), done: make(chan struct{})}
}

func (c *fakeConversation) Start(_ context.Context, _ provider.MediaRoom, opts provider.SessionOptions) error {
	c.mu.Lock()
	c.opts = opts
	c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	close(c.started)
	return nil
}

func (c *fakeConversation) GenerateReply(_ context.Context, instructions string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, instructions)
	return nil
}

func (c *fakeConversation) Done() <-chan struct{} { return c.done }

func (c *fakeConversation) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConversation) snapshot() (provider.SessionOptions, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts, append([]string(nil), c.replies...)
}

type fakeFactory struct {
	conv    *fakeConversation
	created int
	err     error
}

func (f *fakeFactory) NewConversation(context.Context) (provider.Conversation, error) {
	f.created++
	if f.err != nil {
		return nil, f.err
	}
	return f.conv, nil
}

type fakePlacer struct {
	calls   []domain.OutboundCall
	hangUps []string
	err     error
}

func (p *fakePlacer) PlaceCall(_ context.Context, call domain.OutboundCall) error {
	p.calls = append(p.calls, call)
	return p.err
}

func (p *fakePlacer) HangUp(_ context.Context, roomName, identity string) error {
	p.hangUps = append(p.hangUps, roomName+"/"+identity)
	return nil
}

type fakeTransferer struct {
	reqs []domain.TransferRequest
}

func (t *fakeTransferer) Transfer(_ context.Context, req domain.TransferRequest) error {
	t.reqs = append(t.reqs, req)
	return nil
}

type noLookups struct{}

func (noLookups) ListProperties(context.Context, string, string) ([]httpadapter.Property, error) {
	return nil, nil
}
func (noLookups) ListRooms(context.Context, string) ([]httpadapter.Availability, error) {
	return nil, nil
}
func (noLookups) ListBeds(context.Context, string) ([]httpadapter.Availability, error) {
	return nil, nil
}
func (noLookups) Geocode(context.Context, string) (*httpadapter.GeocodeResponse, error) {
	return &httpadapter.GeocodeResponse{Status: "ZERO_RESULTS"}, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	record   *domain.CallRecord
	actions  []domain.CallAction
	statuses []string
	reasons  []string
}

func (r *fakeRecorder) Start(_ context.Context, record *domain.CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record = record
	return nil
}

func (r *fakeRecorder) AddAction(_ context.Context, _ *domain.CallRecord, action domain.CallAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
	return nil
}

func (r *fakeRecorder) Finish(_ context.Context, _ *domain.CallRecord, status, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	r.reasons = append(r.reasons, reason)
	return nil
}

type harness struct {
	assembler  *Assembler
	conv       *fakeConversation
	factory    *fakeFactory
	placer     *fakePlacer
	transferer *fakeTransferer
	recorder   *fakeRecorder
}

func newHarness(transferNumber string) *harness {
	h := &harness{
		conv:       newFakeConversation(),
		placer:     &fakePlacer{},
		transferer: &fakeTransferer{},
		recorder:   &fakeRecorder{},
	}
	h.factory = &fakeFactory{conv: h.conv}
	h.assembler = NewAssembler(
		Options{TrunkID: "ST_out", TransferNumber: transferNumber, Region: "IN"},
		Deps{
			Placer:        h.placer,
			Transferer:    h.transferer,
			Conversations: h.factory,
			Properties:    noLookups{},
			Geocoder:      noLookups{},
			Recorder:      h.recorder,
		},
	)
	return h
}

func runAsync(h *harness, ctx context.Context, job worker.Job, room *fakeRoom) chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- h.assembler.Run(ctx, job, room) }()
	return errCh
}

func waitStarted(t *testing.T, c *fakeConversation) {
	t.Helper()
	select {
	case <-c.started:
	case <-time.After(time.Second):
		t.Fatal("conversation not started")
	}
}

func TestInboundSessionGreetsAndRegistersTools(t *testing.T) {
	h := newHarness("+918000000000")
	room := newFakeRoom("call-_+919876543210_abc", domain.Participant{Identity: "sip_+919876543210", Kind: domain.ParticipantSIP})

	errCh := runAsync(h, context.Background(), worker.Job{ID: "AJ_1"}, room)
	waitStarted(t, h.conv)

	opts, replies := h.conv.snapshot()
	assert.Equal(t, prompts.InstructionsFor(domain.InboundCall()), opts.Instructions)
	assert.Equal(t, []string{
		tool.ToolNameGetProperties,
		tool.ToolNameGetRoomAvailability,
		tool.ToolNameGetBedAvailability,
		tool.ToolNameGetLocation,
		tool.ToolNameTransferToHuman,
	}, opts.Tools.Names())
	require.NotNil(t, opts.NoiseFilter)

	assert.Eventually(t, func() bool {
		_, replies = h.conv.snapshot()
		return len(replies) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, prompts.InboundGreeting, replies[0])
	assert.Empty(t, h.placer.calls)

	room.hangUp()
	require.NoError(t, <-errCh)
	assert.Equal(t, []string{domain.CallStatusEnded}, h.recorder.statuses)
	assert.True(t, h.conv.closed)
	assert.Equal(t, domain.DirectionInbound, h.recorder.record.Direction)
}

func TestOutboundSessionDialsWithoutGreeting(t *testing.T) {
	h := newHarness("")
	room := newFakeRoom("outbound-0000000001")

	job := worker.Job{ID: "AJ_2", Metadata: `{"phone_number":"+91 98765 43210","purpose":"rent_reminder"}`}
	errCh := runAsync(h, context.Background(), job, room)
	waitStarted(t, h.conv)

	require.Len(t, h.placer.calls, 1)
	placed := h.placer.calls[0]
	assert.Equal(t, "+919876543210", placed.To)
	assert.Equal(t, "+919876543210", placed.ParticipantIdentity)
	assert.Equal(t, "ST_out", placed.TrunkID)
	assert.Equal(t, "outbound-0000000001", placed.RoomName)

	opts, replies := h.conv.snapshot()
	assert.Contains(t, opts.Instructions, prompts.OutboundRentReminder)
	assert.Empty(t, replies)

	close(h.conv.done)
	require.NoError(t, <-errCh)
	assert.Equal(t, 1, room.disconnects)
	assert.Equal(t, domain.PurposeRentReminder, h.recorder.record.Purpose)
}

type notAnsweredErr struct{}

func (notAnsweredErr) Error() string     { return "sip 486 Busy Here" }
func (notAnsweredErr) NotAnswered() bool { return true }

func TestOutboundFailureEndsSessionWithoutConversation(t *testing.T) {
	h := newHarness("")
	h.placer.err = notAnsweredErr{}
	room := newFakeRoom("outbound-0000000002")

	err := h.assembler.Run(context.Background(), worker.Job{Metadata: `{"phone_number":"+919876543210"}`}, room)
	require.ErrorIs(t, err, ErrCallNotAnswered)
	assert.Zero(t, h.factory.created)
	assert.Equal(t, 1, room.disconnects)
	assert.Equal(t, []string{domain.CallStatusNoAnswer}, h.recorder.statuses)
	assert.Equal(t, []string{"sip 486 Busy Here"}, h.recorder.reasons)
}

func TestOutboundOtherFailureIsFailed(t *testing.T) {
	h := newHarness("")
	h.placer.err = errors.New("trunk not found")

	err := h.assembler.Run(context.Background(), worker.Job{Metadata: `{"phone_number":"+919876543210"}`}, newFakeRoom("r"))
	require.ErrorIs(t, err, ErrCallNotAnswered)
	assert.Equal(t, []string{domain.CallStatusFailed}, h.recorder.statuses)
}

func TestConversationFailureHangsUpAnsweredCall(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{"create fails", func(h *harness) { h.factory.err = errors.New("model not configured") }},
		{"start fails", func(h *harness) { h.conv.startErr = errors.New("ephemeral token: 401") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness("")
			tt.setup(h)
			room := newFakeRoom("outbound-0000000003")

			err := h.assembler.Run(context.Background(), worker.Job{Metadata: `{"phone_number":"+919876543210"}`}, room)
			require.Error(t, err)
			require.Len(t, h.placer.calls, 1)
			assert.Equal(t, []string{"outbound-0000000003/+919876543210"}, h.placer.hangUps)
			assert.Equal(t, 1, room.disconnects)
			assert.Equal(t, []string{domain.CallStatusFailed}, h.recorder.statuses)
		})
	}
}

func TestInboundConversationFailureLeavesCallerAlone(t *testing.T) {
	h := newHarness("")
	h.conv.startErr = errors.New("sdp exchange failed")
	room := newFakeRoom("call-_+919876543210_abc", domain.Participant{Identity: "sip_+919876543210", Kind: domain.ParticipantSIP})

	err := h.assembler.Run(context.Background(), worker.Job{}, room)
	require.Error(t, err)
	assert.Empty(t, h.placer.hangUps)
	assert.Equal(t, 1, room.disconnects)
	assert.Equal(t, []string{domain.CallStatusFailed}, h.recorder.statuses)
}

func TestCancelledJobLeavesRoom(t *testing.T) {
	h := newHarness("")
	room := newFakeRoom("r")
	ctx, cancel := context.WithCancel(context.Background())

	errCh := runAsync(h, ctx, worker.Job{}, room)
	waitStarted(t, h.conv)
	cancel()

	require.NoError(t, <-errCh)
	assert.Equal(t, []string{domain.CallStatusCancelled}, h.recorder.statuses)
	assert.Equal(t, 1, room.disconnects)
}

func TestToolCallsAreRecordedWithTransferReason(t *testing.T) {
	h := newHarness("+918000000000")
	room := newFakeRoom("r", domain.Participant{Identity: "web", Kind: domain.ParticipantStandard})

	errCh := runAsync(h, context.Background(), worker.Job{}, room)
	waitStarted(t, h.conv)

	opts, _ := h.conv.snapshot()
	result := opts.Tools.ExecuteTool(context.Background(), tool.ToolNameTransferToHuman, "{}")
	assert.Equal(t, tool.TransferFailed, result)
	assert.Empty(t, h.transferer.reqs)

	room.hangUp()
	require.NoError(t, <-errCh)

	require.Len(t, h.recorder.actions, 1)
	assert.Equal(t, tool.ToolNameTransferToHuman, h.recorder.actions[0].Tool)
	assert.Equal(t, tool.TransferReasonNoSIPParticipant, h.recorder.actions[0].Reason)
}

func TestNoiseFilterFor(t *testing.T) {
	assert.Equal(t, provider.NoiseFilterTelephony, NoiseFilterFor(domain.Participant{Kind: domain.ParticipantSIP}))
	assert.Equal(t, provider.NoiseFilterGeneral, NoiseFilterFor(domain.Participant{Kind: domain.ParticipantStandard}))
	assert.Equal(t, provider.NoiseFilterGeneral, NoiseFilterFor(domain.Participant{Kind: domain.ParticipantAgent}))
}

func TestJobRunnerReportsJoinFailure(t *testing.T) {
	h := newHarness("")
	runner := NewJobRunner(func(context.Context, string, string) (provider.MediaRoom, error) {
		return nil, errors.New("401 unauthorized")
	}, h.assembler)

	err := runner.HandleJob(context.Background(), worker.Job{RoomName: "r1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "r1")
	assert.Zero(t, h.factory.created)
}
