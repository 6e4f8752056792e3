package livekit

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twitchtv/twirp"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/truliv/voice-agent/internal/domain"
)

type fakeSIPService struct {
	createReq   *livekit.CreateSIPParticipantRequest
	transferReq *livekit.TransferSIPParticipantRequest
	err         error
}

func (f *fakeSIPService) CreateSIPParticipant(_ context.Context, req *livekit.CreateSIPParticipantRequest) (*livekit.SIPParticipantInfo, error) {
	f.createReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &livekit.SIPParticipantInfo{ParticipantIdentity: req.ParticipantIdentity, SipCallId: "SCL_1"}, nil
}

func (f *fakeSIPService) TransferSIPParticipant(_ context.Context, req *livekit.TransferSIPParticipantRequest) (*emptypb.Empty, error) {
	f.transferReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &emptypb.Empty{}, nil
}

type fakeRoomService struct {
	removed *livekit.RoomParticipantIdentity
	err     error
}

func (f *fakeRoomService) RemoveParticipant(_ context.Context, req *livekit.RoomParticipantIdentity) (*livekit.RemoveParticipantResponse, error) {
	f.removed = req
	if f.err != nil {
		return nil, f.err
	}
	return &livekit.RemoveParticipantResponse{}, nil
}

func TestHangUpRemovesParticipant(t *testing.T) {
	rooms := &fakeRoomService{}
	bridge := &SIPBridge{rooms: rooms}

	require.NoError(t, bridge.HangUp(context.Background(), "outbound-0000000001", "+919876543210"))
	require.NotNil(t, rooms.removed)
	assert.Equal(t, "outbound-0000000001", rooms.removed.Room)
	assert.Equal(t, "+919876543210", rooms.removed.Identity)

	rooms.err = twirp.NotFoundError("participant not found")
	err := bridge.HangUp(context.Background(), "outbound-0000000001", "+919876543210")
	var se *SIPError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "hang_up", se.Op)
	assert.Equal(t, twirp.NotFound, se.Code)
}

func TestPlaceCallWaitsUntilAnswered(t *testing.T) {
	svc := &fakeSIPService{}
	bridge := &SIPBridge{client: svc}

	err := bridge.PlaceCall(context.Background(), domain.OutboundCall{
		RoomName: "outbound-0000000001",
		TrunkID:  "ST_trunk",
		To:       "+919876543210",
	})
	require.NoError(t, err)
	require.NotNil(t, svc.createReq)
	assert.True(t, svc.createReq.WaitUntilAnswered)
	assert.Equal(t, "ST_trunk", svc.createReq.SipTrunkId)
	assert.Equal(t, "+919876543210", svc.createReq.SipCallTo)
	assert.Equal(t, "+919876543210", svc.createReq.ParticipantIdentity)
	assert.Equal(t, "outbound-0000000001", svc.createReq.RoomName)
}

func TestPlaceCallReportsSIPStatus(t *testing.T) {
	twerr := twirp.NewError(twirp.Unavailable, "callee busy").
		WithMeta("sip_status_code", "486").
		WithMeta("sip_status", "Busy Here")
	bridge := &SIPBridge{client: &fakeSIPService{err: twerr}}

	err := bridge.PlaceCall(context.Background(), domain.OutboundCall{To: "+919876543210"})
	require.Error(t, err)

	var se *SIPError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, twirp.Unavailable, se.Code)
	assert.Equal(t, 486, se.SIPStatusCode)
	assert.Equal(t, "Busy Here", se.SIPStatus)
	assert.True(t, se.NotAnswered())
	assert.Contains(t, se.Error(), "486")
}

func TestPlaceCallNonTwirpError(t *testing.T) {
	bridge := &SIPBridge{client: &fakeSIPService{err: errors.New("dial tcp: refused")}}

	err := bridge.PlaceCall(context.Background(), domain.OutboundCall{To: "+919876543210"})
	var se *SIPError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, twirp.Unknown, se.Code)
	assert.Zero(t, se.SIPStatusCode)
	assert.False(t, se.NotAnswered())
}

func TestTransfer(t *testing.T) {
	svc := &fakeSIPService{}
	bridge := &SIPBridge{client: svc}

	err := bridge.Transfer(context.Background(), domain.TransferRequest{
		RoomName:            "r1",
		ParticipantIdentity: "+919876543210",
		TransferTo:          "tel:+918000000000",
	})
	require.NoError(t, err)
	assert.Equal(t, "tel:+918000000000", svc.transferReq.TransferTo)
	assert.Equal(t, "+919876543210", svc.transferReq.ParticipantIdentity)

	svc.err = twirp.NewError(twirp.FailedPrecondition, "transfer not allowed")
	err = bridge.Transfer(context.Background(), domain.TransferRequest{})
	var se *SIPError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "transfer", se.Op)
}

type fakeDispatchService struct {
	req *livekit.CreateAgentDispatchRequest
}

func (f *fakeDispatchService) CreateDispatch(_ context.Context, req *livekit.CreateAgentDispatchRequest) (*livekit.AgentDispatch, error) {
	f.req = req
	return &livekit.AgentDispatch{Id: "AD_1", AgentName: req.AgentName, Room: req.Room, Metadata: req.Metadata}, nil
}

func TestDispatchOutbound(t *testing.T) {
	svc := &fakeDispatchService{}
	d := &Dispatcher{client: svc, agentName: "truliv-telephony-agent", roomPrefix: "outbound-"}

	res, err := d.DispatchOutbound(context.Background(), "+919876543210", domain.PurposeFollowup)
	require.NoError(t, err)
	assert.Equal(t, "AD_1", res.DispatchID)
	assert.Regexp(t, regexp.MustCompile(`^outbound-\d{10}$`), res.RoomName)
	assert.Equal(t, res.RoomName, svc.req.Room)
	assert.Equal(t, "truliv-telephony-agent", svc.req.AgentName)
	assert.JSONEq(t, `{"phone_number":"+919876543210","purpose":"followup"}`, svc.req.Metadata)
}

func TestNewOutboundRoomName(t *testing.T) {
	a, err := NewOutboundRoomName("outbound-")
	require.NoError(t, err)
	assert.Len(t, a, len("outbound-")+10)
}

func TestKindFromProto(t *testing.T) {
	assert.Equal(t, domain.ParticipantSIP, kindFromProto(livekit.ParticipantInfo_SIP))
	assert.Equal(t, domain.ParticipantAgent, kindFromProto(livekit.ParticipantInfo_AGENT))
	assert.Equal(t, domain.ParticipantStandard, kindFromProto(livekit.ParticipantInfo_STANDARD))
}

func TestRoomSessionReplaysPendingTracks(t *testing.T) {
	s := newRoomSession(context.Background())
	caller := domain.Participant{Identity: "+91", Kind: domain.ParticipantSIP}
	s.trackSubscribed(caller, nil)

	var got []domain.Participant
	s.OnAudioTrack(func(p domain.Participant, _ *webrtc.TrackRemote) { got = append(got, p) })
	assert.Equal(t, []domain.Participant{caller}, got)

	web := domain.Participant{Identity: "web", Kind: domain.ParticipantStandard}
	s.trackSubscribed(web, nil)
	assert.Equal(t, []domain.Participant{caller, web}, got)
}

func TestRoomSessionDoneOnce(t *testing.T) {
	s := newRoomSession(context.Background())
	s.markDone()
	s.markDone()
	select {
	case <-s.Done():
	default:
		t.Fatal("expected done")
	}
}

type fakeSampleTrack struct {
	samples []media.Sample
}

func (f *fakeSampleTrack) WriteSample(s media.Sample, _ *lksdk.SampleWriteOptions) error {
	f.samples = append(f.samples, s)
	return nil
}

func TestOpusWriterFrames(t *testing.T) {
	track := &fakeSampleTrack{}
	w := NewLiveKitOpusWriter(track, "r1")
	require.NoError(t, w.WriteOpusFrame([]byte{1, 2, 3}))
	require.NoError(t, w.WriteOpusFrame(nil))

	require.Len(t, track.samples, 1)
	assert.Equal(t, 20*time.Millisecond, track.samples[0].Duration)
	assert.EqualValues(t, 1, w.Frames())
}

func TestWorkerTokenAndURLs(t *testing.T) {
	cfg := &LiveKitConfig{ServerURL: "wss://x.livekit.cloud", APIKey: "APIkey", APISecret: "secretsecretsecretsecretsecret12"}
	token, err := cfg.GenerateWorkerToken(time.Hour)
	require.NoError(t, err)

	verifier, err := auth.ParseAPIToken(token)
	require.NoError(t, err)
	assert.Equal(t, "APIkey", verifier.APIKey())

	assert.Equal(t, "https://x.livekit.cloud", cfg.HTTPURL())
	assert.Equal(t, "wss://x.livekit.cloud", cfg.WebSocketURL())
}
