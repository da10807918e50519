package transport

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Pipe is a Stream fed by a single producer goroutine. Closing the pipe
// cancels the context handed to the producer, which is how an abandoned
// consumer aborts the underlying HTTP call.
type Pipe struct {
	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	once   sync.Once
}

var _ Stream = (*Pipe)(nil)

// NewPipe returns a pipe whose producer context derives from ctx.
func NewPipe(ctx context.Context) *Pipe {
	pctx, cancel := context.WithCancel(ctx)
	return &Pipe{
		ctx:    pctx,
		cancel: cancel,
		events: make(chan Event, 16),
	}
}

// Context is cancelled when the consumer closes the stream.
func (p *Pipe) Context() context.Context { return p.ctx }

// Send delivers ev to the consumer. It returns false once the stream has been
// closed, in which case the producer should stop.
func (p *Pipe) Send(ev Event) bool {
	if p.ctx.Err() != nil {
		return false
	}
	select {
	case p.events <- ev:
		return true
	case <-p.ctx.Done():
		return false
	}
}

// Finish must be called exactly once by the producer when it is done.
func (p *Pipe) Finish() {
	close(p.events)
	p.cancel()
}

// Events implements Stream.
func (p *Pipe) Events() <-chan Event { return p.events }

// Close implements Stream.
func (p *Pipe) Close() error {
	p.once.Do(p.cancel)
	return nil
}

// Watchdog fires onIdle when Kick has not been called for the configured
// interval. A nil Watchdog is valid and never fires.
type Watchdog struct {
	d     time.Duration
	timer *time.Timer
	fired atomic.Bool
}

// StartWatchdog arms a watchdog. A non-positive d disables it and returns nil.
func StartWatchdog(d time.Duration, onIdle func()) *Watchdog {
	if d <= 0 {
		return nil
	}
	w := &Watchdog{d: d}
	w.timer = time.AfterFunc(d, func() {
		w.fired.Store(true)
		onIdle()
	})
	return w
}

// Kick postpones the deadline.
func (w *Watchdog) Kick() {
	if w == nil || w.fired.Load() {
		return
	}
	w.timer.Reset(w.d)
}

// Stop disarms the watchdog.
func (w *Watchdog) Stop() {
	if w == nil {
		return
	}
	w.timer.Stop()
}

// Fired reports whether the idle deadline passed.
func (w *Watchdog) Fired() bool {
	return w != nil && w.fired.Load()
}

// Err rewrites err as ErrIdleTimeout when the watchdog caused it.
func (w *Watchdog) Err(err error) error {
	if err != nil && w.Fired() {
		return ErrIdleTimeout
	}
	return err
}

// Reader wraps r so that every successful read kicks the watchdog and reads
// aborted by it report ErrIdleTimeout.
func (w *Watchdog) Reader(r io.Reader) io.Reader {
	if w == nil {
		return r
	}
	return &idleReader{r: r, w: w}
}

type idleReader struct {
	r io.Reader
	w *Watchdog
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.w.Kick()
	}
	if err == io.EOF {
		return n, err
	}
	return n, ir.w.Err(err)
}
