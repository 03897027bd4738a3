package redisstream

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	wserrors "github.com/vnykmshr/webstreams/pkg/common/errors"
)

// luaFixedWindow counts one event in the window key and reports whether the
// window is still within its limit.
const luaFixedWindow = `
local current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
	return 0
end
return 1
`

// Limiter allows up to limit events per window across every process that
// shares key.
type Limiter struct {
	client redis.UniversalClient
	key    string
	limit  int64
	window time.Duration
	script *redis.Script
	now    func() time.Time
}

// NewLimiter creates a Limiter.
func NewLimiter(client redis.UniversalClient, key string, limit int64, window time.Duration) (*Limiter, error) {
	if client == nil {
		return nil, ErrNoClient
	}
	if limit <= 0 {
		return nil, wserrors.NewValidationError("redisstream", "limit", limit, "must be positive")
	}
	if window < time.Millisecond {
		return nil, wserrors.NewValidationError("redisstream", "window", window, "must be at least 1ms")
	}
	return &Limiter{
		client: client,
		key:    key,
		limit:  limit,
		window: window,
		script: redis.NewScript(luaFixedWindow),
		now:    time.Now,
	}, nil
}

func (l *Limiter) windowStart(t time.Time) time.Time {
	return t.Truncate(l.window)
}

func (l *Limiter) windowKey(t time.Time) string {
	return fmt.Sprintf("%s:window:%d", l.key, l.windowStart(t).UnixMilli())
}

// Allow counts one event and reports whether it fits in the current window.
func (l *Limiter) Allow(ctx context.Context) (bool, error) {
	now := l.now()
	res, err := l.script.Run(ctx, l.client, []string{l.windowKey(now)}, l.limit, l.window.Milliseconds()).Int64()
	if err != nil {
		return false, &RedisError{"limit", err}
	}
	return res == 1, nil
}

// Wait blocks until an event is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		ok, err := l.Allow(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		now := l.now()
		timer := time.NewTimer(l.windowStart(now).Add(l.window).Sub(now))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
