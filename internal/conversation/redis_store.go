package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const activeSetKey = "jarvis:conversations:active"

// RedisStore keeps each conversation as a JSON document and tracks active
// phones in a set. Writes use WATCH/MULTI so the version check and the write
// are atomic across processes. ListActive evicts phones whose record is
// gone, closed or past the inactivity timeout.
type RedisStore struct {
	redis   *redis.Client
	tracer  trace.Tracer
	timeout time.Duration
	now     func() time.Time
}

type RedisStoreOption func(*RedisStore)

// WithActiveTimeout evicts conversations idle for longer than d from the
// active set. Zero keeps them until they are closed.
func WithActiveTimeout(d time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		s.timeout = d
	}
}

func WithStoreClock(now func() time.Time) RedisStoreOption {
	return func(s *RedisStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewRedisStore(client *redis.Client, tracer trace.Tracer, opts ...RedisStoreOption) *RedisStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("jarvis.internal.conversation.store")
	}
	s := &RedisStore{redis: client, tracer: tracer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func conversationKey(phone string) string {
	return fmt.Sprintf("jarvis:conversation:%s", phone)
}

func (s *RedisStore) Get(ctx context.Context, phone string) (*Conversation, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.store.get")
	defer span.End()

	data, err := s.redis.Get(ctx, conversationKey(phone)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrConversationNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load %s: %w", phone, err)
	}
	return decodeConversation(data)
}

func (s *RedisStore) Put(ctx context.Context, conv *Conversation) error {
	ctx, span := s.tracer.Start(ctx, "conversation.store.put")
	defer span.End()

	err := s.write(ctx, conv, func(int64) bool { return true })
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, conv *Conversation, expected int64) error {
	ctx, span := s.tracer.Start(ctx, "conversation.store.compare_and_swap",
		trace.WithAttributes(attribute.Int64("conversation.expected_version", expected)))
	defer span.End()

	err := s.write(ctx, conv, func(current int64) bool { return current == expected })
	if err != nil && !errors.Is(err, ErrVersionConflict) {
		span.RecordError(err)
	}
	return err
}

// write stores conv at current+1 when accept(current) holds.
func (s *RedisStore) write(ctx context.Context, conv *Conversation, accept func(current int64) bool) error {
	key := conversationKey(conv.Phone)
	var written *Conversation

	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		var current int64
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			stored, err := decodeConversation(data)
			if err != nil {
				return err
			}
			current = stored.Version
		case !errors.Is(err, redis.Nil):
			return fmt.Errorf("conversation: failed to read version: %w", err)
		}
		if !accept(current) {
			return ErrVersionConflict
		}

		next := conv.Clone()
		next.Version = current + 1
		next.UpdatedAt = time.Now().UTC()
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("conversation: failed to marshal: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			if next.Active && !next.State.Terminal() {
				pipe.SAdd(ctx, activeSetKey, next.Phone)
			} else {
				pipe.SRem(ctx, activeSetKey, next.Phone)
			}
			return nil
		})
		if err != nil {
			return err
		}
		written = next
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return err
		}
		return fmt.Errorf("conversation: failed to persist %s: %w", conv.Phone, err)
	}
	conv.Version = written.Version
	conv.UpdatedAt = written.UpdatedAt
	return nil
}

func (s *RedisStore) ListActive(ctx context.Context) ([]*Conversation, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.store.list_active")
	defer span.End()

	phones, err := s.redis.SMembers(ctx, activeSetKey).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to list active set: %w", err)
	}
	if len(phones) == 0 {
		return nil, nil
	}
	keys := make([]string, len(phones))
	for i, phone := range phones {
		keys[i] = conversationKey(phone)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load active conversations: %w", err)
	}

	now := s.now()
	out := make([]*Conversation, 0, len(values))
	var stale []string
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, phones[i])
			continue
		}
		conv, err := decodeConversation([]byte(raw))
		if err != nil {
			span.RecordError(err)
			continue
		}
		if s.stale(conv, now) {
			stale = append(stale, phones[i])
			continue
		}
		out = append(out, conv)
	}
	for _, phone := range stale {
		if err := s.evict(ctx, phone, now); err != nil {
			span.RecordError(err)
		}
	}
	span.SetAttributes(attribute.Int("conversation.evicted", len(stale)))
	sort.Slice(out, func(i, j int) bool { return out[i].Phone < out[j].Phone })
	return out, nil
}

func (s *RedisStore) stale(conv *Conversation, now time.Time) bool {
	return !conv.Active || conv.State.Terminal() || conv.Expired(now, s.timeout)
}

// evict removes phone from the active set unless a concurrent write
// reactivated it.
func (s *RedisStore) evict(ctx context.Context, phone string, now time.Time) error {
	key := conversationKey(phone)
	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			conv, err := decodeConversation(data)
			if err != nil {
				return err
			}
			if !s.stale(conv, now) {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, activeSetKey, phone)
			return nil
		})
		return err
	}, key)
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("conversation: failed to evict %s: %w", phone, err)
	}
	return nil
}

func decodeConversation(data []byte) (*Conversation, error) {
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("conversation: failed to decode: %w", err)
	}
	return &conv, nil
}
