package chat

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/kendall-kelly/design-studio-api/models"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateSending
	StateReloading
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateSending:
		return "sending"
	case StateReloading:
		return "reloading"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Viewer is the authenticated user a session is opened for.
type Viewer struct {
	ID   uint
	Name string
	Role models.Role
}

// View renders a session. Calls are serialized in the order of the state
// changes that caused them, and no session lock is held while they run, so a
// View may read the session. It must not call Open, Send, Online or Close
// from inside a callback.
type View interface {
	// Render replaces the displayed thread.
	Render(messages []models.ChatMessage)
	// Append shows one new message at the end of the thread.
	Append(msg models.ChatMessage)
	// RestoreDraft puts unsent text back into the composer.
	RestoreDraft(content string)
	// ShowError reports a failure. Persistent errors need a reload.
	ShowError(err error, persistent bool)
	StateChanged(state State)
}

// Notifier raises a best-effort alert for a message the recipient did not send.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, recipientID uint, msg models.ChatMessage)
}

// SessionOptions tune a Session. Zero values use the defaults.
type SessionOptions struct {
	// LoadAttempts bounds tries of the initial history load. Default 3.
	LoadAttempts int
	// InitialBackoff is the wait after the first failed load. Default 200ms.
	InitialBackoff time.Duration
	// MaxBackoff caps the wait between loads. Default 2s.
	MaxBackoff time.Duration
	Notifier   Notifier
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.LoadAttempts <= 0 {
		o.LoadAttempts = 3
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 200 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 2 * time.Second
	}
	return o
}

// Session is one open chat view for a (viewer, order) pair. It loads the
// history, merges live pushes without duplicates, sends through the store
// and reconciles after a transport drop. Own messages only appear when the
// push for them arrives.
type Session struct {
	id       string
	viewer   Viewer
	orderID  uint
	messages *MessageService
	channel  *Channel
	view     View
	opts     SessionOptions

	mu          sync.Mutex
	viewMu      sync.Mutex
	pending     []func(View)
	phase       State
	sending     bool
	offline     bool
	generation  uint64
	buf         []models.ChatMessage
	seen        map[uint]struct{}
	unsubscribe func()
}

// NewSession creates an idle session. view may be nil.
func NewSession(viewer Viewer, orderID uint, messages *MessageService, channel *Channel, view View, opts SessionOptions) *Session {
	return &Session{
		id:       uuid.NewString(),
		viewer:   viewer,
		orderID:  orderID,
		messages: messages,
		channel:  channel,
		view:     view,
		opts:     opts.withDefaults(),
		phase:    StateIdle,
		seen:     make(map[uint]struct{}),
	}
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

// OrderID returns the order the session shows.
func (s *Session) OrderID() uint {
	return s.orderID
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	if s.phase == StateReady && s.sending {
		return StateSending
	}
	return s.phase
}

// Connected reports whether the session believes its transport is up.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.offline
}

// Messages returns a copy of the displayed thread.
func (s *Session) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMessages(s.buf)
}

// emitLocked must be called with s.mu held. It queues fn behind every
// earlier view update, releases s.mu and delivers the queue. It returns once
// fn has run.
func (s *Session) emitLocked(fn func(View)) {
	if s.view == nil {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, fn)
	s.mu.Unlock()
	s.flush()
}

// flush runs queued view updates one at a time in queue order. s.mu is only
// held to pop the queue, never while waiting for viewMu or calling the view.
func (s *Session) flush() {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		fn := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]
		s.mu.Unlock()

		fn(s.view)
	}
}

func (s *Session) closedError() error {
	return newError(KindValidation, CodeSessionClosed, "chat session is closed")
}

// Open loads the history, marks it read and subscribes to live pushes, in
// that order. The subscription is never opened before the history load
// completes. Once it is live the history is read again and merged, so a
// message written between the load and the subscribe is not skipped. A load
// that keeps failing leaves the session Failed.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != StateIdle {
		defer s.mu.Unlock()
		if s.phase == StateClosed {
			return s.closedError()
		}
		return newError(KindValidation, CodeSessionNotReady, "chat session already opened")
	}
	s.phase = StateLoading
	gen := s.generation
	s.emitLocked(func(v View) { v.StateChanged(StateLoading) })

	jww.INFO.Printf("[CHAT] Session %s opening order %d for %s %d", s.id, s.orderID, s.viewer.Role, s.viewer.ID)

	history, err := s.load(ctx)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return s.closedError()
	}
	if err != nil {
		s.phase = StateFailed
		s.emitLocked(func(v View) {
			v.ShowError(err, true)
			v.StateChanged(StateFailed)
		})
		jww.ERROR.Printf("[CHAT] Session %s failed to load order %d: %v", s.id, s.orderID, err)
		return err
	}
	s.replaceLocked(history)
	snapshot := copyMessages(s.buf)
	s.emitLocked(func(v View) { v.Render(snapshot) })

	if _, err := s.messages.MarkRead(ctx, s.orderID, s.viewer.ID); err != nil {
		jww.WARN.Printf("[CHAT] Session %s failed to mark order %d read: %v", s.id, s.orderID, err)
	}

	unsubscribe, err := s.subscribe(ctx, gen)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		return s.closedError()
	}
	if err != nil {
		s.phase = StateFailed
		s.emitLocked(func(v View) {
			v.ShowError(err, true)
			v.StateChanged(StateFailed)
		})
		return err
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	latest, err := s.messages.ReloadMessages(ctx, s.orderID)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return s.closedError()
	}
	if err != nil {
		jww.WARN.Printf("[CHAT] Session %s catch-up read for order %d failed: %v", s.id, s.orderID, err)
	} else if s.unseenLocked(latest) > 0 {
		s.mergeLocked(latest)
		snapshot := copyMessages(s.buf)
		s.emitLocked(func(v View) { v.Render(snapshot) })
		s.mu.Lock()
		if gen != s.generation {
			s.mu.Unlock()
			return s.closedError()
		}
	}
	s.phase = StateReady
	s.emitLocked(func(v View) { v.StateChanged(StateReady) })
	return nil
}

func (s *Session) unseenLocked(messages []models.ChatMessage) int {
	n := 0
	for _, msg := range messages {
		if _, ok := s.seen[msg.ID]; !ok {
			n++
		}
	}
	return n
}

// load reads the history from the store, retrying transient failures with
// exponential backoff. The cache is bypassed: it only sees invalidations for
// orders this process is subscribed to.
func (s *Session) load(ctx context.Context) ([]models.ChatMessage, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialBackoff
	b.MaxInterval = s.opts.MaxBackoff
	b.MaxElapsedTime = 0

	attempt := 0
	var history []models.ChatMessage
	operation := func() error {
		attempt++
		messages, err := s.messages.ReloadMessages(ctx, s.orderID)
		if err != nil {
			if !Retryable(err) {
				return backoff.Permanent(err)
			}
			jww.WARN.Printf("[CHAT] Session %s load attempt %d/%d failed: %v", s.id, attempt, s.opts.LoadAttempts, err)
			return err
		}
		history = messages
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.LoadAttempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if KindOf(err) == KindUnknown && ctx.Err() != nil {
			return nil, &Error{Kind: KindTimeout, Code: CodeTimeout, Message: "load messages: timed out", Err: err}
		}
		return nil, err
	}
	return history, nil
}

func (s *Session) subscribe(ctx context.Context, gen uint64) (func(), error) {
	return s.channel.Subscribe(ctx, s.orderID,
		func(msg models.ChatMessage) { s.handlePush(gen, msg) },
		func() { s.handleReconnect(gen) },
	)
}

func (s *Session) replaceLocked(messages []models.ChatMessage) {
	s.buf = make([]models.ChatMessage, 0, len(messages))
	s.seen = make(map[uint]struct{}, len(messages))
	for _, msg := range messages {
		if _, dup := s.seen[msg.ID]; dup {
			continue
		}
		s.seen[msg.ID] = struct{}{}
		s.buf = append(s.buf, msg)
	}
}

func (s *Session) handlePush(gen uint64, msg models.ChatMessage) {
	s.mu.Lock()
	if gen != s.generation || msg.OrderID != s.orderID {
		s.mu.Unlock()
		return
	}
	switch s.phase {
	case StateLoading, StateReady, StateReloading:
	default:
		s.mu.Unlock()
		return
	}
	if _, dup := s.seen[msg.ID]; dup {
		s.mu.Unlock()
		return
	}
	s.seen[msg.ID] = struct{}{}
	s.buf = append(s.buf, msg)

	notifier := s.opts.Notifier
	if msg.SenderID == s.viewer.ID {
		notifier = nil
	}
	s.emitLocked(func(v View) { v.Append(msg) })

	if notifier != nil {
		go notifier.NotifyNewMessage(context.Background(), s.viewer.ID, msg)
	}
}

func (s *Session) handleReconnect(gen uint64) {
	go func() {
		s.mu.Lock()
		stale := gen != s.generation
		s.mu.Unlock()
		if stale {
			return
		}

		s.Offline()
		if err := s.Online(context.Background()); err != nil {
			jww.WARN.Printf("[CHAT] Session %s reload after reconnect failed: %v", s.id, err)
		}
	}()
}

// Offline records that the transport dropped. Pushes may be missed until
// Online reconciles with the store.
func (s *Session) Offline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == StateClosed || s.phase == StateFailed {
		return
	}
	s.offline = true
	jww.INFO.Printf("[CHAT] Session %s for order %d went offline", s.id, s.orderID)
}

// Online reconciles after a transport drop: it re-subscribes, reloads the
// history from the store with the cache bypassed and merges anything pushed
// meanwhile. Only one reload runs at a time; a concurrent call returns nil.
func (s *Session) Online(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.phase == StateClosed:
		s.mu.Unlock()
		return s.closedError()
	case s.phase == StateReloading:
		s.mu.Unlock()
		return nil
	case s.phase != StateReady:
		s.mu.Unlock()
		return newError(KindValidation, CodeSessionNotReady, "chat session is not ready")
	}
	s.phase = StateReloading
	gen := s.generation
	previous := s.unsubscribe
	s.unsubscribe = nil
	s.emitLocked(func(v View) { v.StateChanged(StateReloading) })

	if previous != nil {
		previous()
	}
	unsubscribe, subErr := s.subscribe(ctx, gen)
	history, err := s.messages.ReloadMessages(ctx, s.orderID)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		return s.closedError()
	}
	s.unsubscribe = unsubscribe
	s.phase = StateReady
	if err == nil {
		err = subErr
	} else if subErr != nil {
		jww.WARN.Printf("[CHAT] Session %s resubscribe failed: %v", s.id, subErr)
	}
	if err != nil {
		s.emitLocked(func(v View) {
			v.ShowError(err, false)
			v.StateChanged(StateReady)
		})
		return err
	}

	s.offline = false
	s.mergeLocked(history)
	snapshot := copyMessages(s.buf)
	s.emitLocked(func(v View) {
		v.Render(snapshot)
		v.StateChanged(StateReady)
	})
	return nil
}

// mergeLocked puts the store history first, in store order, followed by
// known messages the history did not contain yet in arrival order.
func (s *Session) mergeLocked(history []models.ChatMessage) {
	previous := s.buf
	s.replaceLocked(history)
	for _, msg := range previous {
		if _, ok := s.seen[msg.ID]; ok {
			continue
		}
		s.seen[msg.ID] = struct{}{}
		s.buf = append(s.buf, msg)
	}
}

// Send posts a message as the viewer. The message is not appended here; it
// shows up through the push like everyone else's. A failed send restores the
// draft and is reported once. Only one send may be in flight.
func (s *Session) Send(ctx context.Context, content string, msgType models.MessageType, attachments []Attachment) (*models.ChatMessage, error) {
	s.mu.Lock()
	switch {
	case s.phase == StateClosed:
		s.mu.Unlock()
		return nil, s.closedError()
	case s.phase != StateReady:
		s.mu.Unlock()
		return nil, newError(KindValidation, CodeSessionNotReady, "chat session is not ready")
	case s.sending:
		s.mu.Unlock()
		return nil, newError(KindValidation, CodeSendInFlight, "a message is already being sent")
	}
	s.sending = true
	gen := s.generation
	s.emitLocked(func(v View) { v.StateChanged(StateSending) })

	msg, err := s.messages.Send(ctx, SendRequest{
		OrderID:     s.orderID,
		SenderID:    s.viewer.ID,
		SenderName:  s.viewer.Name,
		SenderRole:  models.SenderRole(s.viewer.Role),
		Content:     content,
		Type:        msgType,
		Attachments: attachments,
	})

	s.mu.Lock()
	s.sending = false
	if gen != s.generation {
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return msg, nil
	}
	state := s.stateLocked()
	if err != nil {
		s.emitLocked(func(v View) {
			v.RestoreDraft(content)
			v.ShowError(err, false)
			v.StateChanged(state)
		})
		return nil, err
	}
	s.emitLocked(func(v View) { v.StateChanged(state) })
	return msg, nil
}

// MarkRead re-marks the thread read on explicit request.
func (s *Session) MarkRead(ctx context.Context) error {
	s.mu.Lock()
	closed := s.phase == StateClosed
	s.mu.Unlock()
	if closed {
		return s.closedError()
	}

	_, err := s.messages.MarkRead(ctx, s.orderID, s.viewer.ID)
	return err
}

// Close unsubscribes and releases the buffer. Results of calls still in
// flight are discarded. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.phase == StateClosed {
		s.mu.Unlock()
		return
	}
	s.phase = StateClosed
	s.generation++
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.buf = nil
	s.seen = nil
	s.emitLocked(func(v View) { v.StateChanged(StateClosed) })

	if unsubscribe != nil {
		unsubscribe()
	}
	jww.INFO.Printf("[CHAT] Session %s for order %d closed", s.id, s.orderID)
}

// IsClosedError reports whether err came from a closed session.
func IsClosedError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeSessionClosed
}
