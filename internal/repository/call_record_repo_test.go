package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/truliv/voice-agent/internal/config"
	"github.com/truliv/voice-agent/internal/domain"
	"github.com/truliv/voice-agent/pkg/redis"
)

type fakeRedis struct {
	mu        sync.Mutex
	values    map[string]string
	ttls      map[string]time.Duration
	published []interface{}
	channels  []string
	setErr    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) GenerateKey(keyType redis.KeyType, identifier string) string {
	return string(keyType) + ":" + identifier
}

func (f *fakeRedis) GetValue(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", redis.ErrKeyNotExist
	}
	return v, nil
}

func (f *fakeRedis) SetValue(_ context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.values[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	f.published = append(f.published, message)
	return nil
}

func (f *fakeRedis) Subscribe(context.Context, string, func(string)) error { return nil }

func TestCallRecordLifecycle(t *testing.T) {
	store := newFakeRedis()
	repo := NewCallRecordRepository(store)
	ctx := context.Background()

	record := &domain.CallRecord{
		JobID:       "AJ_1",
		RoomName:    "outbound-0000000001",
		Direction:   domain.DirectionOutbound,
		Destination: "+919876543210",
	}
	require.NoError(t, repo.Start(ctx, record))
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, domain.CallStatusActive, record.Status)

	require.NoError(t, repo.AddAction(ctx, record, domain.CallAction{
		Tool:   "get_properties",
		Result: "Found 1 properties",
	}))
	require.NoError(t, repo.Finish(ctx, record, domain.CallStatusEnded, ""))

	stored, err := repo.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusEnded, stored.Status)
	require.Len(t, stored.Actions, 1)
	assert.Equal(t, "get_properties", stored.Actions[0].Tool)
	assert.False(t, stored.EndedAt.IsZero())
	assert.Equal(t, config.CallRecordTTL, store.ttls["truliv:call:"+record.ID])

	require.Len(t, store.published, 2)
	assert.Equal(t, []string{config.CallEventsChannel, config.CallEventsChannel}, store.channels)
	first := store.published[0].(domain.CallEvent)
	last := store.published[1].(domain.CallEvent)
	assert.Equal(t, domain.CallStatusActive, first.Status)
	assert.Equal(t, domain.CallStatusEnded, last.Status)
	assert.Equal(t, record.ID, last.CallID)
}

func TestFinishWithReasonIsSerialised(t *testing.T) {
	store := newFakeRedis()
	repo := NewCallRecordRepository(store)
	record := &domain.CallRecord{ID: "c1", Direction: domain.DirectionOutbound}

	require.NoError(t, repo.Finish(context.Background(), record, domain.CallStatusNoAnswer, "sip 486 Busy Here"))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(store.values["truliv:call:c1"]), &decoded))
	assert.Equal(t, "no_answer", decoded["status"])
	assert.Equal(t, "sip 486 Busy Here", decoded["fail_reason"])
}

func TestGetMissingRecord(t *testing.T) {
	repo := NewCallRecordRepository(newFakeRedis())
	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCallNotFound)
}

func TestSaveErrorIsReturned(t *testing.T) {
	store := newFakeRedis()
	store.setErr = errors.New("connection refused")
	repo := NewCallRecordRepository(store)

	err := repo.Start(context.Background(), &domain.CallRecord{})
	require.Error(t, err)
	assert.Empty(t, store.published)
}

func TestWithoutRedisOnlyTracksInMemory(t *testing.T) {
	repo := NewCallRecordRepository(nil)
	record := &domain.CallRecord{}

	require.NoError(t, repo.Start(context.Background(), record))
	require.NoError(t, repo.AddAction(context.Background(), record, domain.CallAction{Tool: "get_location"}))
	require.NoError(t, repo.Finish(context.Background(), record, domain.CallStatusEnded, ""))
	assert.Len(t, record.Actions, 1)

	_, err := repo.Get(context.Background(), record.ID)
	assert.ErrorIs(t, err, ErrCallNotFound)
}
