// Package redis provides the Redis-backed session store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/weeklydigest/sessionauth/internal/domain/auth"
	apperrors "github.com/weeklydigest/sessionauth/internal/errors"
	"github.com/weeklydigest/sessionauth/internal/ports"
	"github.com/weeklydigest/sessionauth/internal/sessioncodec"
)

var _ ports.SessionStore = (*SessionStore)(nil)

// DefaultKeyPrefix namespaces session keys.
const DefaultKeyPrefix = "session:"

// SessionStoreOptions groups dependencies for the Redis session store.
type SessionStoreOptions struct {
	Prefix string
	Logger *slog.Logger
}

// SessionStore is a Redis-based session store.
// Each record is a single key holding the encoded payload. The key is written with an
// absolute PXAT deadline and read back with PEXPIRETIME, so expiry is judged only by the
// Redis server clock. PEXPIRETIME needs Redis 7.0 or newer.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewSessionStore creates a new Redis-based session store.
func NewSessionStore(client redis.UniversalClient, opts SessionStoreOptions) *SessionStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "redis_session_store"),
	}
}

func (s *SessionStore) Save(ctx context.Context, rec domainauth.SessionRecord) error {
	if rec.ID == "" {
		return apperrors.ValidationField("id", "session ID cannot be empty")
	}

	key := s.prefix + rec.ID
	deadline := rec.Expiry.UnixMilli()
	if deadline <= 0 {
		// Redis rejects non-positive deadlines; such a record is already expired.
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return mapRedisError(err, "save expired session")
		}
		return nil
	}

	data, err := sessioncodec.Encode(rec.Payload)
	if err != nil {
		return apperrors.Internal("encode session payload: " + err.Error())
	}
	// A deadline already in the past makes Redis drop the key, so expired == absent.
	if err := s.client.Do(ctx, "SET", key, data, "PXAT", deadline).Err(); err != nil {
		return mapRedisError(err, "save session")
	}
	return nil
}

func (s *SessionStore) Load(ctx context.Context, id string) (*domainauth.SessionRecord, error) {
	if id == "" {
		return nil, nil
	}

	key := s.prefix + id
	var (
		getCmd    *redis.StringCmd
		expiryCmd *redis.DurationCmd
	)
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		getCmd = p.Get(ctx, key)
		expiryCmd = p.PExpireTime(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, mapRedisError(err, "load session")
	}

	data, err := getCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, mapRedisError(err, "load session")
	}
	expiresAt := expiryCmd.Val()
	if expiresAt <= 0 {
		// -2: the key vanished between GET and PEXPIRETIME. -1: it carries no expiry.
		if expiresAt == -1 {
			s.logger.WarnContext(ctx, "session key has no expiry; treating as absent")
		}
		return nil, nil
	}

	p, err := sessioncodec.Decode(data)
	if err != nil {
		s.logger.WarnContext(ctx, "discarding undecodable session payload", "error", err)
		return nil, nil
	}
	return &domainauth.SessionRecord{
		ID:      id,
		Payload: p,
		// PEXPIRETIME replies in Unix milliseconds; DurationCmd scales that to nanoseconds.
		Expiry: time.Unix(0, int64(expiresAt)).UTC(),
	}, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.prefix+id).Err(); err != nil {
		return mapRedisError(err, "delete session")
	}
	return nil
}

// DeleteExpired is a no-op: Redis evicts expired keys natively.
func (s *SessionStore) DeleteExpired(context.Context) (int64, error) {
	return 0, nil
}

func mapRedisError(err error, op string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.StorageUnavailable(
			apperrors.Wrap(err, apperrors.ErrCodeTimeout, "storage request timed out"), op)
	case errors.Is(err, context.Canceled):
		return apperrors.StorageUnavailable(
			apperrors.Wrap(err, apperrors.ErrCodeCanceled, "storage request was canceled"), op)
	default:
		return apperrors.StorageUnavailable(fmt.Errorf("redis: %w", err), op)
	}
}
