package streams

import (
	"context"
	"errors"
	"fmt"
	"sync"

	wscontext "github.com/vnykmshr/webstreams/pkg/common/context"
)

// tee fans one reader out to two branch streams. Each branch has its own
// queue and cancel flag; the source is cancelled only once both branches
// have been cancelled.
type tee[T any] struct {
	reader  *Reader[T]
	ctx     context.Context
	stop    func(error)
	started chan struct{}

	mu        sync.Mutex
	reading   bool
	readAgain bool
	cancelled [2]bool
	reasons   [2]error
	branches  [2]*ReadableStream[T]
}

// Tee locks s and returns two streams that each receive every chunk of s.
// Cancelling one branch leaves the other running; the source is cancelled,
// with both reasons joined, when both branches have been cancelled.
func (s *ReadableStream[T]) Tee() (*ReadableStream[T], *ReadableStream[T], error) {
	reader, err := s.GetReader()
	if err != nil {
		return nil, nil, err
	}

	t := &tee[T]{reader: reader, started: make(chan struct{})}
	t.ctx, t.stop = wscontext.WithReason(context.Background())

	for i := range t.branches {
		branch := i
		config := Config[T]{
			Name:     fmt.Sprintf("%s-tee%d", s.tel.name, branch+1),
			Strategy: s.strategy,
			Logger:   s.tel.log,
			Metrics:  s.tel.reg,
		}
		stream, err := NewReadableStreamWithConfig[T](SourceFuncs[T]{
			PullFunc: func(ctx context.Context, _ ReadableController[T]) error {
				select {
				case <-t.started:
				case <-ctx.Done():
					return nil
				}
				return t.pull()
			},
			CancelFunc: func(ctx context.Context, reason error) error {
				return t.cancel(ctx, branch, reason)
			},
		}, config)
		if err != nil {
			reader.ReleaseLock()
			t.stop(err)
			return nil, nil, err
		}
		t.mu.Lock()
		t.branches[branch] = stream
		t.mu.Unlock()
	}
	close(t.started)

	go t.watchSource()
	return t.branches[0], t.branches[1], nil
}

// pull reads one chunk from the source and hands it to every live branch.
// A pull arriving while a read is outstanding is folded into one more read.
func (t *tee[T]) pull() error {
	t.mu.Lock()
	if t.reading {
		t.readAgain = true
		t.mu.Unlock()
		return nil
	}
	t.reading = true
	t.mu.Unlock()

	for {
		result, err := t.reader.Read(t.ctx)

		t.mu.Lock()
		branches := t.liveBranchesLocked()
		t.mu.Unlock()

		switch {
		case err != nil:
			if t.ctx.Err() == nil {
				for _, b := range branches {
					b.errorStream(err)
				}
			}
		case result.Done:
			for _, b := range branches {
				_ = b.close()
			}
		default:
			for _, b := range branches {
				_ = b.enqueue(result.Value)
			}
		}

		t.mu.Lock()
		if err == nil && !result.Done && t.readAgain {
			t.readAgain = false
			t.mu.Unlock()
			continue
		}
		t.reading = false
		t.readAgain = false
		t.mu.Unlock()
		return nil
	}
}

func (t *tee[T]) liveBranchesLocked() []*ReadableStream[T] {
	live := make([]*ReadableStream[T], 0, 2)
	for i, b := range t.branches {
		if !t.cancelled[i] {
			live = append(live, b)
		}
	}
	return live
}

func (t *tee[T]) cancel(ctx context.Context, branch int, reason error) error {
	t.mu.Lock()
	t.cancelled[branch] = true
	t.reasons[branch] = reason
	if !t.cancelled[0] || !t.cancelled[1] {
		t.mu.Unlock()
		return nil
	}
	composite := errors.Join(t.reasons[0], t.reasons[1])
	t.mu.Unlock()

	err := t.reader.Cancel(ctx, composite)
	t.stop(composite)
	return err
}

// watchSource errors both branches when the source errors while no read is
// outstanding.
func (t *tee[T]) watchSource() {
	err := t.reader.Closed(t.ctx)
	if err == nil || t.ctx.Err() != nil {
		return
	}

	t.mu.Lock()
	branches := t.liveBranchesLocked()
	t.mu.Unlock()
	for _, b := range branches {
		b.errorStream(err)
	}
}
