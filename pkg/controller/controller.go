package controller

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/nstogner/plantchat/pkg/domain"
	"github.com/nstogner/plantchat/pkg/transport"
)

const (
	// DefaultHistoryWindow is the number of finalized messages sent as history.
	DefaultHistoryWindow = 8

	// DefaultGreeting seeds an empty conversation opened without a context hint.
	DefaultGreeting = "Hi! Ask me anything about caring for your plants."

	// SafetyBlockedText is appended when the remote service stops for safety reasons.
	SafetyBlockedText = "I can't continue with this answer because it was blocked by the safety filter. Try rephrasing your question."
	// PromptBlockedText is appended when the remote service rejects the prompt.
	PromptBlockedText = "Your message was blocked and could not be answered. Try asking in a different way."
	// ErrorText is appended when the call fails.
	ErrorText = "Something went wrong while getting an answer. Please try again."
	// NoResponseText replaces an answer that finished without any text.
	NoResponseText = "(no response)"
	// CancelledText replaces an answer that was cancelled before any text arrived.
	CancelledText = "(cancelled)"
)

var (
	// ErrEmptyPrompt is returned by Submit for blank input.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrDisposed is returned after Dispose.
	ErrDisposed = errors.New("controller is disposed")
)

// Store is the persistence the controller needs. *store.ConversationStore
// satisfies it.
type Store interface {
	Load(ctx context.Context) []domain.Message
	Save(ctx context.Context, msgs []domain.Message) error
	Clear(ctx context.Context) error
}

// Options tune a Controller. Zero values select defaults.
type Options struct {
	// ID names the conversation in logs.
	ID string
	// HistoryWindow bounds the finalized messages sent with each prompt.
	HistoryWindow int
	// Greeting seeds empty conversations. Set NoGreeting to disable.
	Greeting   string
	NoGreeting bool
}

// Controller owns one conversation: it runs the submit/stream state machine,
// applies stream events to the draft and persists finished turns.
type Controller struct {
	transport transport.Transport
	store     Store
	opts      Options

	ctx  context.Context
	stop context.CancelFunc

	mu          sync.Mutex
	msgs        []domain.Message
	state       State
	token       uint64
	stream      transport.Stream
	lastContext string
	disposed    bool
	subs        map[int]chan Snapshot
	nextSub     int
	saveSeq     uint64

	saveMu   sync.Mutex
	savedSeq uint64

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a Controller. Call Open before Submit to restore history.
func New(t transport.Transport, s Store, opts Options) *Controller {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultHistoryWindow
	}
	if opts.Greeting == "" {
		opts.Greeting = DefaultGreeting
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Controller{
		transport: t,
		store:     s,
		opts:      opts,
		ctx:       ctx,
		stop:      stop,
		state:     StateIdle,
		subs:      make(map[int]chan Snapshot),
	}
}

// Open replaces the in-memory conversation with the persisted one. A greeting
// is added when nothing was restored and hint is blank. Any in-flight answer
// is cancelled first.
func (c *Controller) Open(ctx context.Context, hint string) error {
	msgs := c.store.Load(ctx)

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	cancelled, seq, saved := c.cancelLocked()
	c.msgs = msgs
	c.lastContext = hint
	if len(c.msgs) == 0 && strings.TrimSpace(hint) == "" {
		c.msgs = c.greetingLocked()
	}
	c.state = StateIdle
	c.publishLocked()
	c.mu.Unlock()

	if cancelled {
		c.persistAsync(seq, saved)
	}
	slog.Info("Conversation opened", "conversation", c.opts.ID, "restored", len(msgs))
	return nil
}

// Submit starts answering text. An answer already in flight is superseded.
// The call returns once the stream has been started; progress is observed
// through Subscribe. A non-empty hint replaces the context used for this and
// later prompts.
func (c *Controller) Submit(ctx context.Context, text, hint string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyPrompt
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}

	superseded, prevSeq, prevMsgs := c.cancelLocked()
	if superseded {
		slog.Debug("Superseding in-flight answer", "conversation", c.opts.ID)
		c.persistAsync(prevSeq, prevMsgs)
	}

	if strings.TrimSpace(hint) != "" {
		c.lastContext = hint
	}
	window := domain.Tail(domain.Finalized(c.msgs), c.opts.HistoryWindow)
	req := transport.Request{
		Prompt:  text,
		History: transport.HistoryFrom(window),
		Context: c.lastContext,
	}

	c.msgs = append(c.msgs, domain.NewMessage(domain.RoleUser, text), domain.NewDraft())
	c.token++
	tok := c.token
	c.state = StateSending
	c.publishLocked()

	s := c.transport.Stream(c.ctx, req)
	c.stream = s
	c.state = StateStreaming
	c.publishLocked()

	c.wg.Add(1)
	go c.consume(tok, s)
	c.mu.Unlock()

	slog.Info("Prompt submitted", "conversation", c.opts.ID, "token", tok, "historyCount", len(req.History))
	return nil
}

// Cancel aborts the in-flight answer, keeping whatever text already arrived.
// It is a no-op when nothing is in flight.
func (c *Controller) Cancel() {
	c.mu.Lock()
	cancelled, seq, msgs := c.cancelLocked()
	if cancelled {
		c.publishLocked()
	}
	c.mu.Unlock()

	if cancelled {
		slog.Info("Answer cancelled", "conversation", c.opts.ID)
		c.persistAsync(seq, msgs)
	}
}

// ClearHistory cancels any in-flight answer, deletes the persisted
// conversation and re-seeds the greeting.
func (c *Controller) ClearHistory(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	c.cancelLocked()
	c.msgs = nil
	if !c.opts.NoGreeting {
		c.msgs = c.greetingLocked()
	}
	c.lastContext = ""
	c.state = StateIdle
	c.saveSeq++
	seq := c.saveSeq
	c.publishLocked()
	c.mu.Unlock()

	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	if seq > c.savedSeq {
		c.savedSeq = seq
	}
	if err := c.store.Clear(ctx); err != nil {
		slog.Warn("Failed to clear persisted conversation", "conversation", c.opts.ID, "error", err)
	}
	slog.Info("Conversation cleared", "conversation", c.opts.ID)
	return nil
}

// Dispose cancels any in-flight answer and closes all subscriptions. It is
// safe to call more than once.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	cancelled, seq, msgs := c.cancelLocked()
	c.disposed = true
	if cancelled {
		c.publishLocked()
	}
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.mu.Unlock()

	if cancelled {
		c.persistAsync(seq, msgs)
	}
	c.stopOnce.Do(c.stop)
	slog.Debug("Controller disposed", "conversation", c.opts.ID)
}

// Wait blocks until every stream consumer and pending save has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// consume applies events from s until a terminal event, or until the stream
// is superseded.
func (c *Controller) consume(tok uint64, s transport.Stream) {
	defer c.wg.Done()
	defer s.Close()

	for ev := range s.Events() {
		if !c.apply(tok, ev) {
			return
		}
	}
	// Closed without a terminal event.
	c.apply(tok, transport.Failure(errors.New("stream ended without a result")))
}

// apply mutates the draft for one event. It returns false once the stream is
// finished or stale.
func (c *Controller) apply(tok uint64, ev transport.Event) bool {
	c.mu.Lock()
	if tok != c.token || c.stream == nil {
		c.mu.Unlock()
		slog.Log(context.Background(), transport.LevelTrace, "Dropping stale event", "conversation", c.opts.ID, "token", tok, "event", ev.String())
		return false
	}
	draft := &c.msgs[len(c.msgs)-1]

	switch ev.Type {
	case transport.EventDelta:
		draft.Text += ev.Text
		c.publishLocked()
		c.mu.Unlock()
		return true
	case transport.EventSafetyBlocked:
		slog.Info("Answer blocked for safety", "conversation", c.opts.ID, "reason", ev.Reason)
		draft.Text = withMarker(draft.Text, SafetyBlockedText)
	case transport.EventPromptBlocked:
		slog.Info("Prompt blocked", "conversation", c.opts.ID, "reason", ev.Reason)
		draft.Text = withMarker(draft.Text, PromptBlockedText)
	case transport.EventDone:
		if draft.Text == "" {
			draft.Text = NoResponseText
		}
	case transport.EventFailure:
		slog.Error("Answer failed", "conversation", c.opts.ID, "error", ev.Err)
		draft.Text = withMarker(draft.Text, ErrorText)
		draft.IsDraft = false
		c.state = StateError
		c.publishLocked()
	default:
		slog.Warn("Ignoring unknown stream event", "conversation", c.opts.ID, "type", ev.Type)
		c.mu.Unlock()
		return true
	}

	draft.IsDraft = false
	c.stream = nil
	c.state = StateIdle
	seq, msgs := c.nextSaveLocked()
	c.publishLocked()
	c.mu.Unlock()

	c.persist(seq, msgs)
	return false
}

// cancelLocked invalidates the active token and finalizes the draft. It
// reports whether anything was cancelled, along with the save to schedule.
func (c *Controller) cancelLocked() (bool, uint64, []domain.Message) {
	if c.stream == nil {
		return false, 0, nil
	}
	c.token++
	c.stream.Close()
	c.stream = nil
	if n := len(c.msgs); n > 0 && c.msgs[n-1].IsDraft {
		d := &c.msgs[n-1]
		if d.Text == "" {
			d.Text = CancelledText
		}
		d.IsDraft = false
	}
	c.state = StateIdle
	seq, msgs := c.nextSaveLocked()
	return true, seq, msgs
}

func (c *Controller) greetingLocked() []domain.Message {
	if c.opts.NoGreeting {
		return nil
	}
	return []domain.Message{domain.NewMessage(domain.RoleAssistant, c.opts.Greeting)}
}

func (c *Controller) nextSaveLocked() (uint64, []domain.Message) {
	c.saveSeq++
	return c.saveSeq, append([]domain.Message(nil), c.msgs...)
}

func (c *Controller) persistAsync(seq uint64, msgs []domain.Message) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.persist(seq, msgs)
	}()
}

// persist writes msgs unless a newer save or clear already ran. Failures are
// logged; losing history never blocks chatting.
func (c *Controller) persist(seq uint64, msgs []domain.Message) {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	if seq <= c.savedSeq {
		return
	}
	c.savedSeq = seq
	if err := c.store.Save(context.Background(), msgs); err != nil {
		slog.Warn("Failed to persist conversation", "conversation", c.opts.ID, "error", err)
		return
	}
	slog.Debug("Conversation persisted", "conversation", c.opts.ID, "messages", len(msgs))
}

func withMarker(text, marker string) string {
	if strings.TrimSpace(text) == "" {
		return marker
	}
	return text + "\n\n" + marker
}
