package redisstream

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/webstreams/internal/testutil"
	wserrors "github.com/vnykmshr/webstreams/pkg/common/errors"
	"github.com/vnykmshr/webstreams/pkg/streams"
)

// newTestClient connects to REDIS_ADDR or skips the test.
func newTestClient(t *testing.T) redis.UniversalClient {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 1})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	return client
}

func testKey(t *testing.T, client redis.UniversalClient) string {
	key := fmt.Sprintf("webstreams:test:%s:%d", t.Name(), time.Now().UnixNano())
	t.Cleanup(func() { _ = client.Del(context.Background(), key).Err() })
	return key
}

func TestConfigValidation(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer func() { _ = client.Close() }()

	_, err := NewSource(nil, DefaultConfig())
	testutil.AssertErrorIs(t, err, ErrNoClient)

	config := DefaultConfig()
	_, err = NewSink(client, config)
	testutil.AssertEqual(t, wserrors.IsValidationError(err), true)

	config.Key = "k"
	config.Block = 0
	_, err = NewSource(client, config)
	testutil.AssertEqual(t, wserrors.IsValidationError(err), true)

	config = DefaultConfig()
	config.Key = "k"
	config.MaxLen = -1
	_, err = NewSink(client, config)
	testutil.AssertEqual(t, wserrors.IsValidationError(err), true)

	_, err = NewLimiter(client, "k", 0, time.Second)
	testutil.AssertEqual(t, wserrors.IsValidationError(err), true)
	_, err = NewLimiter(client, "k", 1, 0)
	testutil.AssertEqual(t, wserrors.IsValidationError(err), true)
}

func TestXAddArgs(t *testing.T) {
	config := DefaultConfig()
	config.Key = "events"
	msg := Message{Values: map[string]interface{}{"n": 1}}

	args := xaddArgs(config, msg)
	testutil.AssertEqual(t, args.Stream, "events")
	testutil.AssertEqual(t, args.ID, "*")
	testutil.AssertEqual(t, args.MaxLen, int64(0))
	testutil.AssertEqual(t, args.Approx, false)

	config.MaxLen = 1000
	args = xaddArgs(config, msg)
	testutil.AssertEqual(t, args.MaxLen, int64(1000))
	testutil.AssertEqual(t, args.Approx, true)
}

func TestLimiterWindowKey(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer func() { _ = client.Close() }()

	l, err := NewLimiter(client, "api", 10, time.Second)
	testutil.AssertNoError(t, err)

	base := time.UnixMilli(1_700_000_000_000)
	testutil.AssertEqual(t, l.windowKey(base.Add(999*time.Millisecond)), "api:window:1700000000000")
	testutil.AssertEqual(t, l.windowKey(base.Add(time.Second)), "api:window:1700000001000")
}

func TestRedisErrorUnwrap(t *testing.T) {
	err := &RedisError{"xadd", redis.Nil}
	testutil.AssertErrorIs(t, err, redis.Nil)
	testutil.AssertEqual(t, err.Error(), "redisstream: xadd: redis: nil")
}

func TestSinkThenSource(t *testing.T) {
	client := newTestClient(t)
	key := testKey(t, client)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	config := DefaultConfig()
	config.Key = key
	config.Count = 2
	config.Block = 50 * time.Millisecond

	dst, err := NewSink(client, config)
	testutil.AssertNoError(t, err)
	input := streams.FromSlice([]Message{
		{Values: map[string]interface{}{"n": "1"}},
		{Values: map[string]interface{}{"n": "2"}},
		{Values: map[string]interface{}{"n": "3"}},
	})
	testutil.AssertNoError(t, input.PipeTo(ctx, dst, streams.PipeOptions{}))

	src, err := NewSource(client, config)
	testutil.AssertNoError(t, err)
	r, err := src.GetReader()
	testutil.AssertNoError(t, err)

	var got []string
	for len(got) < 3 {
		res, err := r.Read(ctx)
		testutil.AssertNoError(t, err)
		if res.Value.ID == "" {
			t.Error("message has no ID")
		}
		got = append(got, res.Value.Values["n"].(string))
	}
	testutil.AssertSliceEqual(t, got, []string{"1", "2", "3"})
	testutil.AssertNoError(t, r.Cancel(ctx, nil))
}

func TestSourceFromDollarSkipsExisting(t *testing.T) {
	client := newTestClient(t)
	key := testKey(t, client)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	testutil.AssertNoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: key, Values: map[string]interface{}{"n": "old"}}).Err())

	config := DefaultConfig()
	config.Key = key
	config.StartID = "$"
	config.Block = 50 * time.Millisecond
	src, err := NewSource(client, config)
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: key, Values: map[string]interface{}{"n": "new"}}).Err())

	r, err := src.GetReader()
	testutil.AssertNoError(t, err)
	res, err := r.Read(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertDeepEqual(t, res.Value.Values["n"], "new")
	testutil.AssertNoError(t, r.Cancel(ctx, nil))
}

func TestLimiter(t *testing.T) {
	client := newTestClient(t)
	key := testKey(t, client)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l, err := NewLimiter(client, key, 2, 200*time.Millisecond)
	testutil.AssertNoError(t, err)

	// the third event has to wait for the next window
	for i := 0; i < 3; i++ {
		testutil.AssertNoError(t, l.Wait(ctx))
	}

	short, stop := context.WithCancel(ctx)
	stop()
	for {
		ok, err := l.Allow(ctx)
		testutil.AssertNoError(t, err)
		if !ok {
			break
		}
	}
	testutil.AssertEqual(t, errors.Is(l.Wait(short), context.Canceled), true)
}
