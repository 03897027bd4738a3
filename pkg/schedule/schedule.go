// Package schedule provides ReadableStreams of cron activation times.
//
// A tick stream waits for the next activation only when its consumer asks
// for a chunk, so a slow consumer never accumulates missed ticks: the next
// tick is always the first activation after the previous one that is not
// already in the past.
//
//	ticks, _ := schedule.NewTickStream("*/5 * * * *", schedule.DefaultConfig())
//	reader, _ := ticks.GetReader()
//	for {
//		tick, err := reader.Read(ctx)
//		...
//	}
//
// Expressions use the standard five fields (minute hour day-of-month month
// day-of-week) or descriptors such as "@hourly" and "@every 10s". Set
// Config.Seconds to accept a leading seconds field.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	wserrors "github.com/vnykmshr/webstreams/pkg/common/errors"
	"github.com/vnykmshr/webstreams/pkg/streams"
)

// Clock provides the current time and timers. It can be mocked for testing.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock implements Clock using the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// After is time.After.
func (SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Config holds configuration for tick streams.
type Config struct {
	// Seconds enables a leading seconds field in expressions.
	Seconds bool

	// Location is the time zone expressions are evaluated in.
	Location *time.Location

	// MaxTicks closes the stream after this many ticks. Zero means unlimited.
	MaxTicks int

	// Clock is the time source.
	Clock Clock

	// Stream configures the underlying stream. The default high water mark
	// of zero computes a tick only while a read is waiting.
	Stream streams.Config[time.Time]
}

// DefaultConfig returns a configuration for five-field expressions in the
// local time zone.
func DefaultConfig() Config {
	stream := streams.DefaultConfig[time.Time]()
	stream.Name = "ticks"
	stream.Strategy = streams.CountQueuingStrategy[time.Time](0)
	return Config{
		Location: time.Local,
		Clock:    SystemClock{},
		Stream:   stream,
	}
}

// Parse validates expr and returns its schedule.
func Parse(expr string, seconds bool) (cron.Schedule, error) {
	fields := cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor
	if seconds {
		fields |= cron.Second
	}
	schedule, err := cron.NewParser(fields).Parse(expr)
	if err != nil {
		return nil, wserrors.NewValidationError("schedule", "expression", expr, err.Error()).
			WithHint(`use five fields such as "*/5 * * * *" or a descriptor such as "@hourly"`)
	}
	return schedule, nil
}

// NewTickStream returns a ReadableStream that yields the activation times of
// the cron expression expr.
func NewTickStream(expr string, config Config) (*streams.ReadableStream[time.Time], error) {
	schedule, err := Parse(expr, config.Seconds)
	if err != nil {
		return nil, err
	}
	if config.MaxTicks < 0 {
		return nil, wserrors.NewValidationError("schedule", "MaxTicks", config.MaxTicks, "must not be negative")
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	return streams.NewReadableStreamWithConfig[time.Time](&tickSource{schedule: schedule, config: config}, config.Stream)
}

type tickSource struct {
	schedule cron.Schedule
	config   Config
	last     time.Time
	ticks    int
}

func (s *tickSource) Start(context.Context, streams.ReadableController[time.Time]) error {
	return nil
}

func (s *tickSource) Pull(ctx context.Context, c streams.ReadableController[time.Time]) error {
	now := s.config.Clock.Now().In(s.config.Location)
	from := now
	if s.last.After(from) {
		from = s.last
	}
	next := s.schedule.Next(from)
	if next.IsZero() {
		// the schedule has no further activations
		return c.Close()
	}

	select {
	case <-s.config.Clock.After(next.Sub(now)):
	case <-ctx.Done():
		return nil
	}

	s.last = next
	s.ticks++
	if err := c.Enqueue(next); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if s.config.MaxTicks > 0 && s.ticks >= s.config.MaxTicks {
		return c.Close()
	}
	return nil
}

func (s *tickSource) Cancel(context.Context, error) error {
	return nil
}
