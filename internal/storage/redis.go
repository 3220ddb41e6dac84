package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angola031/ecoswap-session/internal/crypto"
	"github.com/angola031/ecoswap-session/internal/domain"
)

// RedisStore persists the credential under a namespaced key. Payloads
// are sealed with the configured cipher before they leave the process.
type RedisStore struct {
	rdb       *goredis.Client
	namespace string
	cipher    crypto.Cipher
}

var _ domain.CredentialStore = (*RedisStore)(nil)

func NewRedisStore(rdb *goredis.Client, namespace string, cipher crypto.Cipher) *RedisStore {
	if cipher == nil {
		cipher = crypto.Plaintext{}
	}
	return &RedisStore{rdb: rdb, namespace: namespace, cipher: cipher}
}

func (s *RedisStore) key() string {
	return s.namespace + ":credential"
}

// Load returns nil without error when no credential is stored. A
// payload that cannot be opened or decoded is treated as absent and
// removed, so a rotated encryption key degrades to a fresh sign-in
// rather than a crash loop.
func (s *RedisStore) Load(ctx context.Context) (*domain.Credential, error) {
	sealed, err := s.rdb.Get(ctx, s.key()).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	payload, err := s.cipher.Open(sealed)
	if err != nil {
		slog.Warn("Discarding unreadable persisted credential", "error", err)
		_ = s.rdb.Del(ctx, s.key()).Err()
		return nil, nil
	}

	var cred domain.Credential
	if err := json.Unmarshal(payload, &cred); err != nil {
		slog.Warn("Discarding malformed persisted credential", "error", err)
		_ = s.rdb.Del(ctx, s.key()).Err()
		return nil, nil
	}
	return &cred, nil
}

func (s *RedisStore) Save(ctx context.Context, cred *domain.Credential) error {
	payload, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	sealed, err := s.cipher.Seal(payload)
	if err != nil {
		return fmt.Errorf("failed to seal credential: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(), sealed, 0).Err(); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

// Wipe removes every key in the store's namespace, not just the
// credential. Forced termination must leave no auth residue behind.
func (s *RedisStore) Wipe(ctx context.Context) error {
	var cursor uint64
	pattern := s.namespace + ":*"
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan namespace: %w", err)
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete namespace keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
