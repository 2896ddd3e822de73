package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// RunLock keeps a second instance from running the fleet at the same time.
type RunLock struct {
	client *Client
	key    string
	ttl    time.Duration
}

func NewRunLock(client *Client, key string, ttl time.Duration) *RunLock {
	return &RunLock{client: client, key: key, ttl: ttl}
}

// Acquire returns a token when the lock was free. ok is false when another
// holder has it.
func (l *RunLock) Acquire(ctx context.Context) (token string, ok bool, err error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", false, fmt.Errorf("generate lock token: %w", err)
	}
	token = hex.EncodeToString(buf)

	ok, err = l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}

	log.Debug().Str("key", l.key).Dur("ttl", l.ttl).Msg("run lock acquired")
	return token, true, nil
}

// Release drops the lock if token still owns it.
func (l *RunLock) Release(ctx context.Context, token string) error {
	n, err := releaseScript.Run(ctx, l.client.Client, []string{l.key}, token).Int()
	if err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	if n == 0 {
		log.Warn().Str("key", l.key).Msg("run lock expired before release")
	}
	return nil
}
