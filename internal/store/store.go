// Package store is the storage abstraction: typed read/write access to the hash,
// sorted-set, list, set, and pub/sub keyspaces the core operations read and write.
// It is a thin wrapper over go-redis, covering every keyspace family the core needs
// rather than a single one.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Store is the Storage Abstraction: every core operation reads and writes exclusively
// through these typed accessors, never through a raw *redis.Client call.
type Store struct {
	rdb *redis.Client
}

// New wraps an existing go-redis client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Client exposes the underlying client for operations (health pings, pipelines) that
// need it directly.
func (s *Store) Client() *redis.Client {
	return s.rdb
}

// ---- Hashes ----

// HGetAll returns every field of a hash record, or an empty map if it does not exist.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	res, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}
	return res, nil
}

// HSet writes a set of fields onto a hash record in one round trip.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	if err := s.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// HIncrBy atomically increments an integer hash field and returns the new value.
func (s *Store) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	val, err := s.rdb.HIncrBy(ctx, key, field, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("hincrby %s.%s: %w", key, field, err)
	}
	return val, nil
}

// HGet returns a single hash field, or "" and false if absent.
func (s *Store) HGet(ctx context.Context, key, field string) (string, bool, error) {
	val, err := s.rdb.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("hget %s.%s: %w", key, field, err)
	}
	return val, true, nil
}

// Del deletes one or more keys outright (used to destruct a job/recurring record).
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("del %v: %w", keys, err)
	}
	return nil
}

// Exists reports whether a key has any fields/members at all.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return n > 0, nil
}

// ---- Sorted sets ----

// ZAdd inserts or repositions a member at the given score.
func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := s.rdb.ZAdd(ctx, key, &redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("zadd %s: %w", key, err)
	}
	return nil
}

// ZRem removes a member from a sorted set.
func (s *Store) ZRem(ctx context.Context, key, member string) error {
	if err := s.rdb.ZRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("zrem %s: %w", key, err)
	}
	return nil
}

// ZScore returns a member's score, or ok=false if the member is absent.
func (s *Store) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	score, err := s.rdb.ZScore(ctx, key, member).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("zscore %s.%s: %w", key, member, err)
	}
	return score, true, nil
}

// ZIncrBy adds delta to a member's score and returns the new score.
func (s *Store) ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error) {
	score, err := s.rdb.ZIncrBy(ctx, key, delta, member).Result()
	if err != nil {
		return 0, fmt.Errorf("zincrby %s.%s: %w", key, member, err)
	}
	return score, nil
}

// ZCard returns the number of members in a sorted set.
func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard %s: %w", key, err)
	}
	return n, nil
}

// ZRangeByScore returns members with score in [min, max], ascending, capped at limit
// (limit<=0 means unbounded).
func (s *Store) ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]string, error) {
	by := &redis.ZRangeBy{Min: fmt.Sprintf("%f", min), Max: fmt.Sprintf("%f", max)}
	if limit > 0 {
		by.Offset, by.Count = 0, limit
	}
	res, err := s.rdb.ZRangeByScore(ctx, key, by).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore %s: %w", key, err)
	}
	return res, nil
}

// ZRevRange returns up to count members ordered by descending score (ties broken by
// the store's natural lexical tie-break, which the priority score formula avoids
// relying on).
func (s *Store) ZRevRange(ctx context.Context, key string, count int64) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}
	res, err := s.rdb.ZRevRange(ctx, key, 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange %s: %w", key, err)
	}
	return res, nil
}

// ZAll returns every member of a sorted set, ascending by score.
func (s *Store) ZAll(ctx context.Context, key string) ([]string, error) {
	res, err := s.rdb.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange %s: %w", key, err)
	}
	return res, nil
}

// ---- Sets ----

// SAdd adds a member to a set.
func (s *Store) SAdd(ctx context.Context, key, member string) error {
	if err := s.rdb.SAdd(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("sadd %s: %w", key, err)
	}
	return nil
}

// SRem removes a member from a set.
func (s *Store) SRem(ctx context.Context, key, member string) error {
	if err := s.rdb.SRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("srem %s: %w", key, err)
	}
	return nil
}

// SMembers returns every member of a set.
func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	res, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", key, err)
	}
	return res, nil
}

// SIsMember reports whether a member is present in a set.
func (s *Store) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("sismember %s: %w", key, err)
	}
	return ok, nil
}

// ---- Lists ----

// LPush pushes a member onto the head of a list (most-recent at head, per the failed
// group list layout in the keyspace).
func (s *Store) LPush(ctx context.Context, key, member string) error {
	if err := s.rdb.LPush(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", key, err)
	}
	return nil
}

// LRem removes a member from a list.
func (s *Store) LRem(ctx context.Context, key, member string) error {
	if err := s.rdb.LRem(ctx, key, 0, member).Err(); err != nil {
		return fmt.Errorf("lrem %s: %w", key, err)
	}
	return nil
}

// LLen returns the length of a list.
func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", key, err)
	}
	return n, nil
}

// LRange returns the full contents of a list, head to tail.
func (s *Store) LRange(ctx context.Context, key string) ([]string, error) {
	res, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}
	return res, nil
}

// PopTail removes and returns up to count members from the tail of a list (the oldest
// entries, since new failures are pushed onto the head).
func (s *Store) PopTail(ctx context.Context, key string, count int64) ([]string, error) {
	var out []string
	for i := int64(0); i < count; i++ {
		v, err := s.rdb.RPop(ctx, key).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return out, fmt.Errorf("rpop %s: %w", key, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ---- Pub/Sub ----

// Publish best-effort publishes a JSON-encoded payload to a channel. Publish failures
// are silent per the recovery semantics of the error handling design: they never abort
// the core operation that triggered them.
func (s *Store) Publish(ctx context.Context, channel string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	s.rdb.Publish(ctx, channel, data)
}

// Keys returns every key matching a glob pattern. Used only by diagnostics; core
// operations never scan the keyspace.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	res, err := s.rdb.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, fmt.Errorf("keys %s: %w", pattern, err)
	}
	return res, nil
}
