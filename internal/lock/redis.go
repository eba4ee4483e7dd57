package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"retreat/internal/models"
)

// compareAndDelete removes a key only while it still carries our value.
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore shares locks between engine instances. Each cell is its own
// key written with SET NX, so Redis serializes contenders per cell and
// expires abandoned holds on its own.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) cellKey(c models.Cell) string {
	return s.prefix + "lock:cell:" + c.Key()
}

func (s *RedisStore) sessionKey(sessionID string) string {
	return s.prefix + "lock:session:" + sessionID
}

func holdValue(l *models.ReservationLock) string {
	return l.SessionID + "|" + l.Token
}

func holdSession(v string) string {
	session, _, _ := strings.Cut(v, "|")
	return session
}

func (s *RedisStore) TryAcquire(ctx context.Context, lock *models.ReservationLock, now time.Time) (bool, error) {
	ttl := lock.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return false, nil
	}
	val := holdValue(lock)
	cells := lock.Cells()
	acquired := make([]string, 0, len(cells))
	renewed := make(map[string]string)

	rollback := func() {
		for _, key := range acquired {
			if old, ok := renewed[key]; ok {
				_ = s.client.Set(ctx, key, old, redis.KeepTTL).Err()
				continue
			}
			_ = compareAndDelete.Run(ctx, s.client, []string{key}, val).Err()
		}
	}

	for _, c := range cells {
		key := s.cellKey(c)
		ok, err := s.client.SetNX(ctx, key, val, ttl).Result()
		if err != nil {
			rollback()
			return false, fmt.Errorf("lock cell %s: %w", c.Key(), err)
		}
		if ok {
			acquired = append(acquired, key)
			continue
		}
		current, err := s.client.Get(ctx, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			// Expired between SETNX and GET; one more try.
			ok, err = s.client.SetNX(ctx, key, val, ttl).Result()
			if err != nil {
				rollback()
				return false, fmt.Errorf("lock cell %s: %w", c.Key(), err)
			}
			if !ok {
				rollback()
				return false, nil
			}
			acquired = append(acquired, key)
			continue
		case err != nil:
			rollback()
			return false, fmt.Errorf("read cell %s: %w", c.Key(), err)
		}
		if holdSession(current) != lock.SessionID {
			rollback()
			return false, nil
		}
		// Our own earlier hold: take it over with the new token.
		if err := s.client.Set(ctx, key, val, ttl).Err(); err != nil {
			rollback()
			return false, fmt.Errorf("renew cell %s: %w", c.Key(), err)
		}
		renewed[key] = current
		acquired = append(acquired, key)
	}

	prev, err := s.Get(ctx, lock.SessionID)
	if err != nil {
		prev = nil
	}
	data, err := json.Marshal(lock)
	if err != nil {
		rollback()
		return false, err
	}
	if err := s.client.Set(ctx, s.sessionKey(lock.SessionID), data, ttl).Err(); err != nil {
		rollback()
		return false, fmt.Errorf("store session lock: %w", err)
	}
	if prev != nil && prev.Token != lock.Token {
		s.dropCells(ctx, prev)
	}
	return true, nil
}

func (s *RedisStore) dropCells(ctx context.Context, lock *models.ReservationLock) {
	val := holdValue(lock)
	for _, c := range lock.Cells() {
		_ = compareAndDelete.Run(ctx, s.client, []string{s.cellKey(c)}, val).Err()
	}
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*models.ReservationLock, error) {
	data, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var l models.ReservationLock
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decode session lock: %w", err)
	}
	return &l, nil
}

func (s *RedisStore) Release(ctx context.Context, sessionID string) error {
	l, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if l != nil {
		s.dropCells(ctx, l)
	}
	return s.client.Del(ctx, s.sessionKey(sessionID)).Err()
}

func (s *RedisStore) Holders(ctx context.Context, cells []models.Cell, _ time.Time) ([]string, error) {
	if len(cells) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(cells))
	for _, c := range cells {
		keys = append(keys, s.cellKey(c))
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		session := holdSession(str)
		if _, dup := seen[session]; !dup {
			seen[session] = struct{}{}
			out = append(out, session)
		}
	}
	return out, nil
}

// Purge is a no-op: Redis expires cell and session keys itself.
func (s *RedisStore) Purge(context.Context, time.Time) (int, error) {
	return 0, nil
}
