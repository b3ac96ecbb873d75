package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

const (
	// scanCount is the COUNT hint passed to each SCAN call.
	scanCount = 500

	// deleteBatchSize caps the number of DEL commands per pipeline.
	deleteBatchSize = 200
)

// Store is the key-value contract every view cache depends on.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the stored payload and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores the payload. A ttl of zero stores it without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes the key and reports whether it existed. Deleting an
	// absent key is not an error.
	Delete(ctx context.Context, key string) (bool, error)
	// DeleteByPrefix scans for keys starting with prefix and deletes them in
	// batches. It is O(n) in matching keys and must stay off request paths.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
	// CountByPrefix counts keys starting with prefix.
	CountByPrefix(ctx context.Context, prefix string) (int, error)
}

// RedisStore implements Store on top of a rueidis client.
type RedisStore struct {
	client rueidis.Client
	logger *zap.Logger
}

// NewRedisStore creates a Store backed by the given Redis client.
func NewRedisStore(client rueidis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger.Named("cache_store"),
	}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	return data, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = s.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Px(ttl).Build()
	} else {
		cmd = s.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Build()
	}

	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	deleted, err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", key, err)
	}

	return deleted > 0, nil
}

// DeleteByPrefix implements Store. Keys are deleted one command each in
// pipelined batches because matching keys may live in different hash slots.
func (s *RedisStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	var deleted int

	err := s.scan(ctx, prefix, func(keys []string) error {
		for start := 0; start < len(keys); start += deleteBatchSize {
			end := min(start+deleteBatchSize, len(keys))

			cmds := make(rueidis.Commands, 0, end-start)
			for _, key := range keys[start:end] {
				cmds = append(cmds, s.client.B().Del().Key(key).Build())
			}

			for i, resp := range s.client.DoMulti(ctx, cmds...) {
				n, err := resp.AsInt64()
				if err != nil {
					return fmt.Errorf("failed to delete %s: %w", keys[start+i], err)
				}
				deleted += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return deleted, err
	}

	s.logger.Debug("Deleted keys by prefix",
		zap.String("prefix", prefix),
		zap.Int("deleted", deleted))

	return deleted, nil
}

// CountByPrefix implements Store.
func (s *RedisStore) CountByPrefix(ctx context.Context, prefix string) (int, error) {
	var count int

	err := s.scan(ctx, prefix, func(keys []string) error {
		count += len(keys)
		return nil
	})

	return count, err
}

// scan walks every key matching prefix* and hands each non-empty page to fn.
func (s *RedisStore) scan(ctx context.Context, prefix string, fn func(keys []string) error) error {
	return ScanPrefix(ctx, s.client, prefix, fn)
}

// ScanPrefix iterates SCAN MATCH prefix* over client until the cursor wraps.
func ScanPrefix(ctx context.Context, client rueidis.Client, prefix string, fn func(keys []string) error) error {
	pattern := EscapePattern(prefix) + "*"

	var cursor uint64
	for {
		entry, err := client.Do(ctx, client.B().Scan().Cursor(cursor).Match(pattern).Count(scanCount).Build()).AsScanEntry()
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", pattern, err)
		}

		if len(entry.Elements) > 0 {
			if err := fn(entry.Elements); err != nil {
				return err
			}
		}

		cursor = entry.Cursor
		if cursor == 0 {
			return nil
		}
	}
}

// EscapePattern escapes glob metacharacters so prefix matches literally in SCAN MATCH.
func EscapePattern(prefix string) string {
	var b strings.Builder

	for _, r := range prefix {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}

	return b.String()
}
