package orchestrator

import (
	"context"
	"errors"
)

// ErrInboxClosed is returned for work submitted after the inbox stopped.
var ErrInboxClosed = errors.New("inbox closed")

type job struct {
	ctx  context.Context
	fn   func(ctx context.Context)
	done chan struct{} // nil for fire-and-forget jobs
}

// Inbox runs submitted work one job at a time on a single goroutine, so user
// turns and failure handling never interleave.
type Inbox struct {
	jobs chan job
	done chan struct{}
}

// NewInbox creates an inbox with the given queue depth.
func NewInbox(bufferSize int) *Inbox {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Inbox{
		jobs: make(chan job, bufferSize),
		done: make(chan struct{}),
	}
}

// Start launches the worker goroutine. It runs until ctx is cancelled.
func (in *Inbox) Start(ctx context.Context) {
	go in.run(ctx)
}

func (in *Inbox) run(ctx context.Context) {
	defer close(in.done)

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-in.jobs:
			if j.ctx.Err() == nil {
				j.fn(j.ctx)
			}
			if j.done != nil {
				close(j.done)
			}
		}
	}
}

func (in *Inbox) enqueue(ctx context.Context, j job) error {
	select {
	case <-in.done:
		return ErrInboxClosed
	default:
	}

	select {
	case in.jobs <- j:
		return nil
	case <-in.done:
		return ErrInboxClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the inbox goroutine and waits for it to finish. It respects
// cancellation at both the send and wait stages.
func (in *Inbox) Do(ctx context.Context, fn func(ctx context.Context)) error {
	j := job{ctx: ctx, fn: fn, done: make(chan struct{})}
	if err := in.enqueue(ctx, j); err != nil {
		return err
	}

	select {
	case <-j.done:
		return nil
	case <-in.done:
		select {
		case <-j.done:
			return nil
		default:
			return ErrInboxClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post queues fn without waiting for it to run.
func (in *Inbox) Post(ctx context.Context, fn func(ctx context.Context)) error {
	return in.enqueue(ctx, job{ctx: ctx, fn: fn})
}

// Stop blocks until the worker goroutine has exited.
func (in *Inbox) Stop() {
	<-in.done
}
