package bridge

import (
	"context"
	"sync"
)

// defaultQueueSize bounds the pending frame queue of a Loop.
const defaultQueueSize = 256

// LoopOptions holds configuration overrides passed to NewLoop().
type LoopOptions struct {
	// QueueSize bounds the number of pending frames.
	QueueSize int
}

// Loop is the reference Poster: a single goroutine draining a bounded
// queue, the cooperative run-loop model frontends without a native event
// loop can build on.
type Loop struct {
	queue    chan func()
	stopOnce sync.Once
	stopped  chan struct{}
}

var _ Poster = (*Loop)(nil)

// NewLoop constructs a Loop. Run must be called for posted frames to
// execute.
func NewLoop(optFns ...func(o *LoopOptions)) *Loop {
	opts := LoopOptions{QueueSize: defaultQueueSize}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &Loop{
		queue:   make(chan func(), opts.QueueSize),
		stopped: make(chan struct{}),
	}
}

// Post implements Poster. Frames posted after Stop, or while the queue is
// full, are dropped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.stopped:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	default:
		return false
	}
}

// Run executes posted frames in order until ctx is cancelled or Stop is
// called. Frames still queued at shutdown are discarded.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case fn := <-l.queue:
			fn()
		case <-ctx.Done():
			l.Stop()
			return
		case <-l.stopped:
			return
		}
	}
}

// Stop makes Run return and all further Posts fail.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopped) })
}
