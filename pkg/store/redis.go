// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/stacklok/orgproxy/pkg/logger"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// dialAttempts bounds the exponential backoff inside a single connect cycle.
const dialAttempts = 3

// connState tracks the connection lifecycle of the Redis store.
type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateReady
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string

	// DB is the Redis database number.
	DB int

	// Username and Password are optional ACL credentials.
	Username string
	Password string

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore implements Store with a Redis backend.
//
// The connection is lazy: the first operation dials the server, and
// concurrent callers share a single in-flight connect attempt. On a
// transient socket error (reset, broken pipe, unreachable) the store
// reconnects and retries the operation exactly once; any other error
// propagates to the caller.
type RedisStore struct {
	cfg RedisConfig

	mu     sync.Mutex
	state  connState
	client redis.UniversalClient

	// connect shares one in-flight dial across concurrent callers.
	connect singleflight.Group
}

// NewRedisStore creates a Redis-backed store. No connection is made until
// the first operation.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	return &RedisStore{cfg: cfg, state: stateDisconnected}, nil
}

// NewRedisStoreWithClient creates a RedisStore with a pre-configured client.
// The store starts in the ready state; reconnection is not available because
// the store does not own the dial parameters.
func NewRedisStoreWithClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{state: stateReady, client: client}
}

// conn returns a ready client, dialing lazily if necessary.
func (s *RedisStore) conn(ctx context.Context) (redis.UniversalClient, error) {
	s.mu.Lock()
	if s.state == stateReady {
		c := s.client
		s.mu.Unlock()
		return c, nil
	}
	s.state = stateConnecting
	s.mu.Unlock()

	// The winning caller's context drives the dial; losers just wait for
	// the shared result.
	v, err, _ := s.connect.Do("connect", func() (any, error) {
		client, err := backoff.Retry(ctx, func() (redis.UniversalClient, error) {
			c := redis.NewClient(&redis.Options{
				Addr:         s.cfg.Addr,
				DB:           s.cfg.DB,
				Username:     s.cfg.Username,
				Password:     s.cfg.Password,
				DialTimeout:  s.cfg.DialTimeout,
				ReadTimeout:  s.cfg.ReadTimeout,
				WriteTimeout: s.cfg.WriteTimeout,
				// Retry discipline lives in this package, not the driver.
				MaxRetries: -1,
			})
			if err := c.Ping(ctx).Err(); err != nil {
				_ = c.Close()
				return nil, err
			}
			return c, nil
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(dialAttempts))
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.client = client
		s.state = stateReady
		s.mu.Unlock()
		return client, nil
	})
	if err != nil {
		s.mu.Lock()
		s.state = stateDisconnected
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return v.(redis.UniversalClient), nil
}

// invalidate drops the client if it is still the current one, forcing the
// next operation to reconnect.
func (s *RedisStore) invalidate(c redis.UniversalClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == c {
		_ = s.client.Close()
		s.client = nil
		s.state = stateDisconnected
	}
}

// do runs op against a ready client, reconnecting and retrying once on a
// transient socket error.
func (s *RedisStore) do(ctx context.Context, op func(redis.UniversalClient) error) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}

	err = op(c)
	if err == nil || !isTransient(err) {
		return err
	}

	logger.Warnw("transient store error, reconnecting", "error", err)
	s.invalidate(c)

	c, cerr := s.conn(ctx)
	if cerr != nil {
		return cerr
	}
	return op(c)
}

// isTransient reports whether err is a socket-level failure worth a single
// reconnect-and-retry. Anything else, including redis.Nil and context
// cancellation, propagates unchanged.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// SetWithTTL writes a value under key with the given TTL.
func (s *RedisStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.do(ctx, func(c redis.UniversalClient) error {
		return c.Set(ctx, key, value, ttl).Err()
	})
}

// Get reads the value for key without touching its TTL.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.do(ctx, func(c redis.UniversalClient) error {
		v, err := c.Get(ctx, key).Result()
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key: %w", err)
	}
	return value, nil
}

// GetAndRefreshTTL reads the value for key and resets its TTL to the full
// window in the same server-side operation (GETEX).
func (s *RedisStore) GetAndRefreshTTL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	var value string
	err := s.do(ctx, func(c redis.UniversalClient) error {
		v, err := c.GetEx(ctx, key, ttl).Result()
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key: %w", err)
	}
	return value, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.do(ctx, func(c redis.UniversalClient) error {
		return c.Del(ctx, key).Err()
	})
}

// Ping checks Redis connectivity, dialing if necessary.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.do(ctx, func(c redis.UniversalClient) error {
		return c.Ping(ctx).Err()
	})
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	s.state = stateDisconnected
	return err
}

// Compile-time interface compliance check.
var _ Store = (*RedisStore)(nil)
