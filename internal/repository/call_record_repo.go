package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/truliv/voice-agent/internal/config"
	"github.com/truliv/voice-agent/internal/domain"
	"github.com/truliv/voice-agent/pkg/logger"
	"github.com/truliv/voice-agent/pkg/redis"
	"go.uber.org/zap"
)

// ErrCallNotFound is returned by Get for unknown or expired records.
var ErrCallNotFound = errors.New("call record not found")

// CallRecorder tracks one record per call.
type CallRecorder interface {
	Start(ctx context.Context, record *domain.CallRecord) error
	AddAction(ctx context.Context, record *domain.CallRecord, action domain.CallAction) error
	Finish(ctx context.Context, record *domain.CallRecord, status, reason string) error
}

// CallRecordRepository keeps call records in Redis with a TTL and publishes
// a CallEvent on every status change. With no Redis service it only
// maintains the in-memory record.
type CallRecordRepository struct {
	redisSvc redis.RedisServiceInterface
	ttl      time.Duration
	channel  string
	mu       sync.Mutex
	now      func() time.Time
}

// NewCallRecordRepository creates a repository. redisSvc may be nil.
func NewCallRecordRepository(redisSvc redis.RedisServiceInterface) *CallRecordRepository {
	return &CallRecordRepository{
		redisSvc: redisSvc,
		ttl:      config.CallRecordTTL,
		channel:  config.CallEventsChannel,
		now:      time.Now,
	}
}

// Start assigns an id, marks the call active and stores it.
func (r *CallRecordRepository) Start(ctx context.Context, record *domain.CallRecord) error {
	r.mu.Lock()
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	now := r.now()
	if record.StartedAt.IsZero() {
		record.StartedAt = now
	}
	record.UpdatedAt = now
	record.Status = domain.CallStatusActive
	data, err := json.Marshal(record)
	event := r.eventFor(record, "")
	r.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to marshal call record: %w", err)
	}
	if err := r.save(ctx, record.ID, data); err != nil {
		return err
	}
	r.publish(ctx, event)
	return nil
}

// AddAction appends a tool invocation to the record.
func (r *CallRecordRepository) AddAction(ctx context.Context, record *domain.CallRecord, action domain.CallAction) error {
	r.mu.Lock()
	if action.CreatedAt.IsZero() {
		action.CreatedAt = r.now()
	}
	record.Actions = append(record.Actions, action)
	record.UpdatedAt = r.now()
	data, err := json.Marshal(record)
	r.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to marshal call record: %w", err)
	}
	return r.save(ctx, record.ID, data)
}

// Finish sets the final status and end time.
func (r *CallRecordRepository) Finish(ctx context.Context, record *domain.CallRecord, status, reason string) error {
	r.mu.Lock()
	now := r.now()
	record.Status = status
	record.FailReason = reason
	record.EndedAt = now
	record.UpdatedAt = now
	data, err := json.Marshal(record)
	event := r.eventFor(record, reason)
	r.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to marshal call record: %w", err)
	}
	if err := r.save(ctx, record.ID, data); err != nil {
		return err
	}
	r.publish(ctx, event)

	logger.Info(ctx, "Call record finished",
		zap.String("call_id", record.ID),
		zap.String("status", status),
		zap.String("reason", reason),
		zap.Int("actions", len(record.Actions)))
	return nil
}

// Get loads a stored record.
func (r *CallRecordRepository) Get(ctx context.Context, id string) (*domain.CallRecord, error) {
	if r.redisSvc == nil {
		return nil, ErrCallNotFound
	}
	val, err := r.redisSvc.GetValue(ctx, r.redisSvc.GenerateKey(redis.CALL_RECORD, id))
	if err != nil {
		if errors.Is(err, redis.ErrKeyNotExist) {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("failed to get call record: %w", err)
	}

	var record domain.CallRecord
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal call record: %w", err)
	}
	return &record, nil
}

func (r *CallRecordRepository) save(ctx context.Context, id string, data []byte) error {
	if r.redisSvc == nil {
		return nil
	}
	key := r.redisSvc.GenerateKey(redis.CALL_RECORD, id)
	if err := r.redisSvc.SetValue(ctx, key, string(data), r.ttl); err != nil {
		return fmt.Errorf("failed to save call record: %w", err)
	}
	return nil
}

// publish is best effort; a lost event never fails the call.
func (r *CallRecordRepository) publish(ctx context.Context, event domain.CallEvent) {
	if r.redisSvc == nil {
		return
	}
	if err := r.redisSvc.Publish(ctx, r.channel, event); err != nil {
		logger.Warn(ctx, "Failed to publish call event",
			zap.String("call_id", event.CallID),
			zap.String("status", event.Status),
			zap.Error(err))
	}
}

func (r *CallRecordRepository) eventFor(record *domain.CallRecord, reason string) domain.CallEvent {
	return domain.CallEvent{
		CallID:    record.ID,
		RoomName:  record.RoomName,
		Direction: record.Direction,
		Status:    record.Status,
		Reason:    reason,
		At:        record.UpdatedAt,
	}
}
