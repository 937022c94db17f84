package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ggoodman/mcp-core-go/sessions"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// Config for the Redis-backed Store. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: SESSIONS_KEY_PREFIX
	KeyPrefix string `env:"SESSIONS_KEY_PREFIX,default=mcp:sessions:"`
	// TTL applied to records and event logs on every write. ENV: SESSIONS_TTL
	TTL time.Duration `env:"SESSIONS_TTL,default=24h"`
}

const maxUpdateAttempts = 8

type Store struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func New(cfg Config) (*Store, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(cl, cfg), nil
}

// NewWithClient wraps an existing client. The client's lifetime is handed to
// the Store; Close closes it.
func NewWithClient(cl *redis.Client, cfg Config) *Store {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "mcp:sessions:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: cl, keyPrefix: prefix, ttl: ttl}
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv() (*Store, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis store config: %w", err)
	}
	return New(cfg)
}

// Close closes the Redis client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) recordKey(id string) string { return s.keyPrefix + "rec:" + id }
func (s *Store) streamKey(id string) string { return s.keyPrefix + "stream:" + id }

// --- Records ---

func (s *Store) Create(ctx context.Context, rec sessions.Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.recordKey(rec.ID), b, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return sessions.ErrExists
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (sessions.Record, error) {
	b, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return sessions.Record{}, sessions.ErrNotFound
		}
		return sessions.Record{}, err
	}
	var rec sessions.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return sessions.Record{}, fmt.Errorf("decode session record: %w", err)
	}
	return rec, nil
}

func (s *Store) Update(ctx context.Context, id string, fn func(*sessions.Record) error) error {
	key := s.recordKey(id)
	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return sessions.ErrNotFound
			}
			return err
		}
		var rec sessions.Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return fmt.Errorf("decode session record: %w", err)
		}
		if err := fn(&rec); err != nil {
			return err
		}
		rec.ID = id
		rec.UpdatedAt = time.Now().UTC()
		out, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode session record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, out, s.ttl)
			return nil
		})
		return err
	}

	for range maxUpdateAttempts {
		err := s.client.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return fmt.Errorf("update session %s: too much contention", id)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	c := context.WithoutCancel(ctx)
	return s.client.Del(c, s.recordKey(id), s.streamKey(id)).Err()
}

// --- Event log via Redis Streams ---

func (s *Store) AppendEvent(ctx context.Context, sessionID string, data []byte) (string, error) {
	key := s.streamKey(sessionID)
	var add *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		add = p.XAdd(ctx, &redis.XAddArgs{Stream: key, Values: map[string]any{"d": data}})
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return "", err
	}
	return add.Val(), nil
}

func (s *Store) EventsAfter(ctx context.Context, sessionID, afterID string) ([]sessions.Event, error) {
	start := "-"
	if afterID != "" {
		if !validStreamID(afterID) {
			return nil, nil
		}
		start = "(" + afterID
	}
	msgs, err := s.client.XRange(ctx, s.streamKey(sessionID), start, "+").Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	out := make([]sessions.Event, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, sessions.Event{ID: m.ID, Data: payload(m.Values["d"])})
	}
	return out, nil
}

// payload accepts the string form go-redis returns as well as raw bytes.
func payload(v any) []byte {
	switch v := v.(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	default:
		return []byte(fmt.Sprintf("%v", v))
	}
}

// validStreamID reports whether id has the "<ms>-<seq>" shape of stream ids.
func validStreamID(id string) bool {
	ms, seq, ok := strings.Cut(id, "-")
	if !ok {
		return false
	}
	if _, err := strconv.ParseUint(ms, 10, 64); err != nil {
		return false
	}
	_, err := strconv.ParseUint(seq, 10, 64)
	return err == nil
}

var _ sessions.Store = (*Store)(nil)
