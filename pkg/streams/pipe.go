package streams

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// PipeOptions controls how termination propagates between the two ends of a pipe.
type PipeOptions struct {
	// PreventClose leaves the destination open when the source closes.
	PreventClose bool

	// PreventAbort leaves the destination open when the source errors or
	// the pipe's context ends.
	PreventAbort bool

	// PreventCancel leaves the source open when the destination errors or
	// closes, or the pipe's context ends.
	PreventCancel bool
}

const (
	pipeResultClosed  = "closed"
	pipeResultErrored = "errored"
	pipeResultAborted = "aborted"
)

// PipeTo moves every chunk of s into dest, reading only as fast as dest
// is ready. Both streams are locked for the duration.
//
// When the source errors, dest is aborted with the source's reason; when
// dest errors, the source is cancelled with dest's reason; when the source
// closes, dest is closed after pending writes. A dest that is closing or
// closed cancels the source with ErrPipeDestinationClosed. When ctx ends
// both ends are cancelled or aborted with context.Cause(ctx). Each action
// can be suppressed through opts.
//
// PipeTo returns once every action settled: nil after a clean close,
// otherwise the error raised by the cascading action, or the original
// error when the action succeeded.
func (s *ReadableStream[T]) PipeTo(ctx context.Context, dest *WritableStream[T], opts PipeOptions) error {
	p, err := newPipe(s, dest, opts)
	if err != nil {
		return err
	}
	return p.run(ctx)
}

// PipeThrough pipes src into pair's writable side in the background and
// returns pair's readable side. Both locks are taken before it returns; the
// pipe's outcome is observable through the returned stream.
func PipeThrough[I, O any](ctx context.Context, src *ReadableStream[I], pair ReadableWritablePair[I, O], opts PipeOptions) (*ReadableStream[O], error) {
	p, err := newPipe(src, pair.Writable(), opts)
	if err != nil {
		return nil, err
	}
	go func() {
		_ = p.run(ctx)
	}()
	return pair.Readable(), nil
}

type pipe[T any] struct {
	source *ReadableStream[T]
	dest   *WritableStream[T]
	reader *Reader[T]
	writer *Writer[T]
	opts   PipeOptions
	tel    *telemetry

	stopPump context.CancelFunc
	pumpDone chan struct{}

	mu        sync.Mutex
	lastWrite <-chan error
}

func newPipe[T any](source *ReadableStream[T], dest *WritableStream[T], opts PipeOptions) (*pipe[T], error) {
	reader, err := source.GetReader()
	if err != nil {
		return nil, err
	}
	writer, err := dest.GetWriter()
	if err != nil {
		reader.ReleaseLock()
		return nil, err
	}

	source.mu.Lock()
	source.disturbed = true
	source.mu.Unlock()

	return &pipe[T]{
		source:   source,
		dest:     dest,
		reader:   reader,
		writer:   writer,
		opts:     opts,
		tel:      source.tel,
		pumpDone: make(chan struct{}),
	}, nil
}

// shutdownAction is what the pipe does once one end settled.
type shutdownAction struct {
	actions    []func(ctx context.Context) error
	err        error
	waitWrites bool
	result     string
}

func (p *pipe[T]) run(ctx context.Context) error {
	start := time.Now()

	pumpCtx, stopPump := context.WithCancel(context.Background())
	p.stopPump = stopPump

	var action *shutdownAction
	if ctx.Err() != nil {
		action = p.abortAction(ctx)
	} else {
		action = p.check()
	}
	if action == nil {
		go p.pump(pumpCtx)
		action = p.watch(ctx)
	} else {
		close(p.pumpDone)
	}

	err := p.shutdown(ctx, action)
	p.tel.log.WithField("result", action.result).WithError(err).Debug("pipe finished")
	if p.tel.reg != nil {
		p.tel.reg.PipeCompletions.WithLabelValues(action.result).Inc()
		p.tel.reg.PipeDuration.WithLabelValues(action.result).Observe(time.Since(start).Seconds())
	}
	return err
}

// pump reads a chunk whenever the writer is ready and hands it to the
// writer. A chunk that was read is always written, even when the pump is
// being stopped.
func (p *pipe[T]) pump(ctx context.Context) {
	defer close(p.pumpDone)

	for {
		if err := p.writer.Ready(ctx); err != nil {
			return
		}
		// Ready may win the select against a stopped pump
		if ctx.Err() != nil {
			return
		}
		result, err := p.reader.Read(ctx)
		if err != nil || result.Done {
			return
		}

		done := p.writer.WriteAsync(result.Value)
		p.mu.Lock()
		p.lastWrite = done
		p.mu.Unlock()
	}
}

// watch blocks until an event decides how the pipe shuts down.
func (p *pipe[T]) watch(ctx context.Context) *shutdownAction {
	pumpDone := p.pumpDone
	for {
		select {
		case <-ctx.Done():
			return p.abortAction(ctx)
		case <-p.source.done:
		case <-p.dest.erroring:
		case <-p.dest.done:
		case <-pumpDone:
			pumpDone = nil
		}
		if action := p.check(); action != nil {
			return action
		}
	}
}

// check inspects both ends in precedence order and returns the action for
// the first terminal condition, or nil while both are still running.
func (p *pipe[T]) check() *shutdownAction {
	p.source.mu.Lock()
	srcState, srcErr := p.source.state, p.source.storedErr
	p.source.mu.Unlock()

	p.dest.mu.Lock()
	destState, destErr := p.dest.state, p.dest.storedErr
	destClosing := p.dest.closeQueuedOrInFlightLocked()
	p.dest.mu.Unlock()

	switch {
	case srcState == ReadableStateErrored:
		a := &shutdownAction{err: srcErr, waitWrites: true, result: pipeResultErrored}
		if !p.opts.PreventAbort {
			a.actions = append(a.actions, func(ctx context.Context) error {
				return p.writer.Abort(ctx, srcErr)
			})
		}
		return a

	case destState == stateErroring || destState == stateErrored:
		a := &shutdownAction{err: destErr, result: pipeResultErrored}
		if !p.opts.PreventCancel {
			a.actions = append(a.actions, func(ctx context.Context) error {
				return p.reader.Cancel(ctx, destErr)
			})
		}
		return a

	case srcState == ReadableStateClosed:
		a := &shutdownAction{waitWrites: true, result: pipeResultClosed}
		if !p.opts.PreventClose {
			a.actions = append(a.actions, p.closeDest)
		}
		return a

	case destClosing || destState == stateClosed:
		a := &shutdownAction{err: ErrPipeDestinationClosed, result: pipeResultErrored}
		if !p.opts.PreventCancel {
			a.actions = append(a.actions, func(ctx context.Context) error {
				return p.reader.Cancel(ctx, ErrPipeDestinationClosed)
			})
		}
		return a
	}
	return nil
}

func (p *pipe[T]) abortAction(ctx context.Context) *shutdownAction {
	reason := context.Cause(ctx)
	p.tel.cancelled("pipe aborted", reason)

	// with the destination being aborted there is no point draining writes
	a := &shutdownAction{err: reason, waitWrites: p.opts.PreventAbort, result: pipeResultAborted}
	if !p.opts.PreventAbort {
		a.actions = append(a.actions, func(ctx context.Context) error {
			if p.destWritable() {
				return p.writer.Abort(ctx, reason)
			}
			return nil
		})
	}
	if !p.opts.PreventCancel {
		a.actions = append(a.actions, func(ctx context.Context) error {
			if p.source.State() == ReadableStateReadable {
				return p.reader.Cancel(ctx, reason)
			}
			return nil
		})
	}
	return a
}

func (p *pipe[T]) destWritable() bool {
	p.dest.mu.Lock()
	defer p.dest.mu.Unlock()
	return p.dest.state == stateWritable
}

// closeDest closes the destination unless it is already closing, closed
// or errored.
func (p *pipe[T]) closeDest(ctx context.Context) error {
	p.dest.mu.Lock()
	state, storedErr := p.dest.state, p.dest.storedErr
	closing := p.dest.closeQueuedOrInFlightLocked()
	p.dest.mu.Unlock()

	switch {
	case closing || state == stateClosed:
		return nil
	case state == stateErroring || state == stateErrored:
		return storedErr
	}
	return p.writer.Close(ctx)
}

func (p *pipe[T]) shutdown(ctx context.Context, action *shutdownAction) error {
	p.stopPump()
	<-p.pumpDone

	if action.waitWrites {
		p.waitPendingWrites()
	}

	actx := context.WithoutCancel(ctx)
	var g errgroup.Group
	for _, fn := range action.actions {
		fn := fn
		g.Go(func() error {
			return fn(actx)
		})
	}
	actionErr := g.Wait()

	p.writer.ReleaseLock()
	p.reader.ReleaseLock()

	if actionErr != nil {
		return actionErr
	}
	return action.err
}

// waitPendingWrites waits for the last chunk the pump handed to dest while
// dest is still accepting writes. Writes settle in order, so the last one
// settles after all earlier ones.
func (p *pipe[T]) waitPendingWrites() {
	p.dest.mu.Lock()
	accepting := p.dest.state == stateWritable && !p.dest.closeQueuedOrInFlightLocked()
	p.dest.mu.Unlock()
	if !accepting {
		return
	}

	p.mu.Lock()
	last := p.lastWrite
	p.mu.Unlock()
	if last != nil {
		<-last
	}
}
