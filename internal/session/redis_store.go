package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions and login states as expiring Redis keys.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore wraps an existing client. Keys are namespaced with prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

// DialRedis parses url, connects and pings.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, errParse := redis.ParseURL(strings.TrimSpace(url))
	if errParse != nil {
		return nil, fmt.Errorf("session: parse redis url: %w", errParse)
	}
	client := redis.NewClient(opt)
	if errPing := client.Ping(ctx).Err(); errPing != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session: redis ping: %w", errPing)
	}
	return client, nil
}

func (s *RedisStore) sessionKey(tokenHash string) string { return s.prefix + "session:" + tokenHash }
func (s *RedisStore) stateKey(state string) string       { return s.prefix + "login-state:" + state }

// Create stores the session with a TTL matching its expiry.
func (s *RedisStore) Create(ctx context.Context, tokenHash string, sess Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("session: create: already expired")
	}
	data, errMarshal := json.Marshal(sess)
	if errMarshal != nil {
		return fmt.Errorf("session: encode: %w", errMarshal)
	}
	if errSet := s.client.Set(ctx, s.sessionKey(tokenHash), data, ttl).Err(); errSet != nil {
		return fmt.Errorf("session: create: %w", errSet)
	}
	return nil
}

// Get loads a live session.
func (s *RedisStore) Get(ctx context.Context, tokenHash string) (Session, error) {
	val, errGet := s.client.Get(ctx, s.sessionKey(tokenHash)).Bytes()
	if errors.Is(errGet, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if errGet != nil {
		return Session{}, fmt.Errorf("session: get: %w", errGet)
	}
	var sess Session
	if errUnmarshal := json.Unmarshal(val, &sess); errUnmarshal != nil {
		return Session{}, fmt.Errorf("session: decode: %w", errUnmarshal)
	}
	if sess.Expired(s.now()) {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// Delete removes a session.
func (s *RedisStore) Delete(ctx context.Context, tokenHash string) error {
	if errDel := s.client.Del(ctx, s.sessionKey(tokenHash)).Err(); errDel != nil {
		return fmt.Errorf("session: delete: %w", errDel)
	}
	return nil
}

// PurgeExpired is a no-op; Redis expires keys itself.
func (s *RedisStore) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// SaveLoginState stores the nonce under the state with a TTL.
func (s *RedisStore) SaveLoginState(ctx context.Context, state, nonce string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("session: save login state: already expired")
	}
	if errSet := s.client.Set(ctx, s.stateKey(state), nonce, ttl).Err(); errSet != nil {
		return fmt.Errorf("session: save login state: %w", errSet)
	}
	return nil
}

// ConsumeLoginState atomically reads and deletes the state.
func (s *RedisStore) ConsumeLoginState(ctx context.Context, state string) (string, error) {
	nonce, errGet := s.client.GetDel(ctx, s.stateKey(state)).Result()
	if errors.Is(errGet, redis.Nil) {
		return "", ErrInvalidState
	}
	if errGet != nil {
		return "", fmt.Errorf("session: consume login state: %w", errGet)
	}
	return nonce, nil
}
