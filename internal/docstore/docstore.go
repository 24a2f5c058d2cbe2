// Package docstore keeps the real-time side of farmwatch in Redis: recent
// sensor readings, equipment status, weather-station logs and alerts. Every
// collection is a stream or hash whose entry ids Redis assigns.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "farmwatch:"
	// Streams other than alerts are capped; the cap is approximate.
	defaultStreamMaxLen = 10000
	payloadField        = "payload"
)

type Options struct {
	Prefix       string
	StreamMaxLen int64
}

type Store struct {
	rdb    *redis.Client
	prefix string
	maxLen int64
	logger *slog.Logger
	now    func() time.Time
}

// Open parses a redis:// URL and connects.
func Open(ctx context.Context, url string, opts Options, logger *slog.Logger) (*Store, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, opts, logger), nil
}

func New(client *redis.Client, opts Options, logger *slog.Logger) *Store {
	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}
	if opts.StreamMaxLen <= 0 {
		opts.StreamMaxLen = defaultStreamMaxLen
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		rdb:    client,
		prefix: opts.Prefix,
		maxLen: opts.StreamMaxLen,
		logger: logger.With("component", "docstore"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) key(parts ...string) string {
	k := s.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

func (s *Store) addArgs(stream string, v any) (*redis.XAddArgs, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &redis.XAddArgs{
		Stream: stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{payloadField: string(payload)},
	}, nil
}

func decodePayload[T any](msg redis.XMessage) (T, error) {
	var out T
	raw, ok := msg.Values[payloadField].(string)
	if !ok {
		return out, fmt.Errorf("stream entry %s has no payload", msg.ID)
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("decode stream entry %s: %w", msg.ID, err)
	}
	return out, nil
}

func decodeAll[T any](msgs []redis.XMessage) ([]T, error) {
	out := make([]T, 0, len(msgs))
	for _, m := range msgs {
		v, err := decodePayload[T](m)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
