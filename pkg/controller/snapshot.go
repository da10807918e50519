package controller

import (
	"github.com/nstogner/plantchat/pkg/domain"
)

// State is the controller's position in the submit/stream cycle.
type State string

const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateStreaming State = "streaming"
	// StateError is published once when an answer fails, immediately followed
	// by StateIdle.
	StateError State = "error"
)

// Snapshot is an immutable copy of the conversation handed to presentation.
type Snapshot struct {
	Messages []domain.Message `json:"messages"`
	Busy     bool             `json:"busy"`
	State    State            `json:"state"`
}

// Draft returns the in-progress message, if any.
func (s Snapshot) Draft() (domain.Message, bool) {
	if n := len(s.Messages); n > 0 && s.Messages[n-1].IsDraft {
		return s.Messages[n-1], true
	}
	return domain.Message{}, false
}

// Snapshot returns the current conversation state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel that always eventually holds the latest
// snapshot. Intermediate snapshots may be skipped when the reader is slow.
// The current snapshot is delivered immediately. The returned func stops the
// subscription; the channel is closed then, or on Dispose.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshotLocked()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			close(sub)
			delete(c.subs, id)
		}
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Messages: append([]domain.Message(nil), c.msgs...),
		Busy:     c.state == StateSending || c.state == StateStreaming,
		State:    c.state,
	}
}

// publishLocked replaces whatever snapshot a subscriber has not read yet.
func (c *Controller) publishLocked() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
