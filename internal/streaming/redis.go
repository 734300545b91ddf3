package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultStreamMaxLen = 256
	DefaultEventTTL     = 24 * time.Hour
)

// EventLog keeps a bounded per-chat history of events in a Redis stream so a
// caller that lost its connection can catch up.
type EventLog struct {
	rdb    *redis.Client
	maxLen int64
	ttl    time.Duration
	logger *zap.Logger
}

func NewEventLog(rdb *redis.Client, maxLen int64, ttl time.Duration, logger *zap.Logger) *EventLog {
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	if ttl <= 0 {
		ttl = DefaultEventTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventLog{rdb: rdb, maxLen: maxLen, ttl: ttl, logger: logger}
}

func streamKey(chatID string) string { return fmt.Sprintf("ori:chat:%s:events", chatID) }
func seqKey(chatID string) string    { return fmt.Sprintf("ori:chat:%s:seq", chatID) }

// Append stores e and returns its sequence number. Numbers are strictly
// increasing per chat and start at 1.
func (l *EventLog) Append(ctx context.Context, chatID string, e Event) (uint64, error) {
	seq, err := l.rdb.Incr(ctx, seqKey(chatID)).Uint64()
	if err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return 0, err
	}
	stream := streamKey(chatID)
	if err := l.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: l.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"seq":     strconv.FormatUint(seq, 10),
			"type":    string(e.Type),
			"payload": string(payload),
		},
	}).Err(); err != nil {
		return 0, fmt.Errorf("xadd: %w", err)
	}
	pipe := l.rdb.Pipeline()
	pipe.Expire(ctx, stream, l.ttl)
	pipe.Expire(ctx, seqKey(chatID), l.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("event log expire failed", zap.String("chat_id", chatID), zap.Error(err))
	}
	return seq, nil
}

// Replay returns the retained events with a sequence number greater than since.
func (l *EventLog) Replay(ctx context.Context, chatID string, since uint64) ([]Event, error) {
	msgs, err := l.rdb.XRange(ctx, streamKey(chatID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("xrange: %w", err)
	}
	out := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		seqStr, _ := m.Values["seq"].(string)
		seq, err := strconv.ParseUint(seqStr, 10, 64)
		if err != nil {
			l.logger.Warn("skipping event without seq", zap.String("chat_id", chatID), zap.String("entry", m.ID))
			continue
		}
		if seq <= since {
			continue
		}
		payload, _ := m.Values["payload"].(string)
		if err := ValidateEventDocument([]byte(payload)); err != nil {
			l.logger.Warn("skipping malformed event", zap.String("chat_id", chatID), zap.String("entry", m.ID), zap.Error(err))
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			l.logger.Warn("skipping undecodable event", zap.String("chat_id", chatID), zap.String("entry", m.ID), zap.Error(err))
			continue
		}
		e.Seq = seq
		out = append(out, e)
	}
	return out, nil
}

// Delete drops the chat's retained history.
func (l *EventLog) Delete(ctx context.Context, chatID string) error {
	return l.rdb.Del(ctx, streamKey(chatID), seqKey(chatID)).Err()
}
