package otp

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Both scripts run server-side so the read, the checks and the write happen as one
// step no concurrent request can interleave with.
var putScript = redis.NewScript(`
local cooldown = tonumber(ARGV[4])
if cooldown > 0 then
  local issued = redis.call('HGET', KEYS[1], 'issued_at')
  if issued and tonumber(ARGV[2]) - tonumber(issued) < cooldown then
    return 'RATE_LIMITED'
  end
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'code', ARGV[1], 'attempts', '0', 'verified', '0', 'issued_at', ARGV[2], 'expires_at', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 'OK'
`)

var checkScript = redis.NewScript(`
local c = redis.call('HMGET', KEYS[1], 'code', 'attempts', 'verified', 'expires_at')
if not c[1] then
  return 'NOT_FOUND'
end
if c[3] == '1' then
  return 'ALREADY_USED'
end
if tonumber(ARGV[3]) > tonumber(c[4]) then
  return 'EXPIRED'
end
if tonumber(c[2]) >= tonumber(ARGV[4]) then
  return 'ATTEMPTS_EXHAUSTED'
end
if c[1] ~= ARGV[1] and (ARGV[2] == '' or ARGV[2] ~= ARGV[1]) then
  redis.call('HINCRBY', KEYS[1], 'attempts', 1)
  return 'MISMATCH'
end
redis.call('HSET', KEYS[1], 'verified', '1')
return 'OK'
`)

// RedisStore keeps challenges in Redis hashes.
type RedisStore struct {
	client *redis.Client
	// retention keeps a challenge readable after expiry so callers see EXPIRED
	// instead of NOT_FOUND.
	retention time.Duration
}

// NewRedisStore builds a Redis-backed challenge store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, retention: 24 * time.Hour}
}

func (s *RedisStore) Put(ctx context.Context, key string, ch Challenge, cooldown time.Duration) error {
	ttl := ch.ExpiresAt.Sub(ch.IssuedAt) + s.retention
	res, err := putScript.Run(ctx, s.client, []string{key},
		ch.Code,
		strconv.FormatInt(ch.IssuedAt.UnixMilli(), 10),
		strconv.FormatInt(ch.ExpiresAt.UnixMilli(), 10),
		strconv.FormatInt(cooldown.Milliseconds(), 10),
		strconv.FormatInt(ttl.Milliseconds(), 10),
	).Text()
	if err != nil {
		return fmt.Errorf("store otp challenge: %w", err)
	}
	return resultError(res)
}

func (s *RedisStore) Check(ctx context.Context, key, digest, bypass string, now time.Time, maxAttempts int) error {
	res, err := checkScript.Run(ctx, s.client, []string{key},
		digest,
		bypass,
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.Itoa(maxAttempts),
	).Text()
	if err != nil {
		return fmt.Errorf("check otp challenge: %w", err)
	}
	return resultError(res)
}

func resultError(res string) error {
	if res == "OK" {
		return nil
	}
	if err, ok := byCode[res]; ok {
		return err
	}
	return fmt.Errorf("unexpected otp store result %q", res)
}
