// Package chat implements the support chat session: ticket lifecycle, PIN
// verification, the local message buffer and the Session Anchor, on top of
// a REST API and a realtime gateway that own the actual business rules.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-support-chat/internal/domain"
	"github.com/go-support-chat/internal/pkg/id"
	"github.com/go-support-chat/internal/pkg/validate"
)

const (
	defaultPinTimeout   = 30 * time.Second
	defaultSuccessFlash = 2 * time.Second
	cleanupTimeout      = 10 * time.Second
	archiveTimeout      = 30 * time.Second
)

// Inline notice texts.
const (
	msgCreateFailed   = "We could not start the conversation. Please try again."
	msgSignInAgain    = "Your session has expired. Please sign in again."
	msgSendFailed     = "Message not sent. You can retry or discard it."
	msgUnreachable    = "Support is unreachable right now. Please try again later."
	msgLiveDegraded   = "Live updates are unavailable. Messages will still be delivered."
	msgPinLength      = "Enter the 4 to 6 digit PIN."
	msgPinIncorrect   = "Incorrect PIN. Please try again."
	msgPinTimedOut    = "Verification timed out. Please try again."
	msgPinUnreachable = "Could not reach support to verify the PIN. Please try again."
	msgPinMissing     = "Set up a support PIN in your account security settings to continue."
	msgVerified       = "Identity verified."
	msgClosed         = "This conversation has been closed."

	answerResolved   = "Yes, my issue is resolved."
	answerUnresolved = "No, I still need help."
)

// Options tunes controller timers.
type Options struct {
	// PinTimeout bounds the wait for pin_success / pin_failed after verify_pin.
	PinTimeout time.Duration
	// SuccessFlash is how long the "verified" notice stays up.
	SuccessFlash time.Duration
}

// Deps are the controller's collaborators. Auth and Transcripts are optional.
type Deps struct {
	API         TicketAPI
	Gateway     Gateway
	Anchors     AnchorStore
	Auth        Authenticator
	Transcripts TranscriptSink
	Options     Options
}

// Snapshot is a read-only copy of the session for rendering.
type Snapshot struct {
	State     domain.State        `json:"state"`
	TicketID  string              `json:"ticketId,omitempty"`
	Status    domain.HandleStatus `json:"status"`
	Verified  bool                `json:"verified"`
	Challenge *domain.Challenge   `json:"challenge,omitempty"`
	Messages  []domain.Message    `json:"messages"`
	Notice    *domain.Notice      `json:"notice,omitempty"`
	PinError  string              `json:"pinError,omitempty"`
	Open      bool                `json:"open"`
	Identity  *domain.Identity    `json:"identity,omitempty"`
}

type stopper interface {
	Stop() bool
}

// Controller is the chat session state machine. All methods are safe for
// concurrent use; gateway events may arrive on another goroutine.
type Controller struct {
	api         TicketAPI
	gw          Gateway
	anchors     AnchorStore
	auth        Authenticator
	transcripts TranscriptSink
	opts        Options

	afterFunc func(time.Duration, func()) stopper
	async     func(func())
	now       func() time.Time

	mu        sync.Mutex
	state     domain.State
	ticketID  string
	verified  bool
	challenge *domain.Challenge
	messages  []domain.Message
	notice    *domain.Notice
	pinError  string
	open      bool

	// gen changes whenever the active ticket changes; async results carrying
	// an older gen are dropped.
	gen        uint64
	pinSeq     uint64
	pinTimer   stopper
	flashTimer stopper

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
}

func NewController(d Deps) *Controller {
	if d.Options.PinTimeout <= 0 {
		d.Options.PinTimeout = defaultPinTimeout
	}
	if d.Options.SuccessFlash <= 0 {
		d.Options.SuccessFlash = defaultSuccessFlash
	}
	return &Controller{
		api:         d.API,
		gw:          d.Gateway,
		anchors:     d.Anchors,
		auth:        d.Auth,
		transcripts: d.Transcripts,
		opts:        d.Options,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		async: func(f func()) { go f() },
		now:   time.Now,
		state: domain.StateNoTicket,
		subs:  make(map[int]func(Snapshot)),
	}
}

// Subscribe registers fn to receive a snapshot after every change.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.subMu.Lock()
	sid := c.nextSub
	c.nextSub++
	c.subs[sid] = fn
	c.subMu.Unlock()
	return func() {
		c.subMu.Lock()
		delete(c.subs, sid)
		c.subMu.Unlock()
	}
}

// Snapshot returns the current session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Attach routes bus commands to Open and Close.
func (c *Controller) Attach(ctx context.Context, bus *Bus) (detach func()) {
	return bus.Subscribe(func(cmd Command) {
		switch cmd {
		case CommandOpen:
			c.Open(ctx)
		case CommandClose:
			c.Close()
		}
	})
}

// Initialize recovers the session: from the Session Anchor first, then from
// the identity's open tickets. With neither, the state stays NO_TICKET.
func (c *Controller) Initialize(ctx context.Context) error {
	ticketID, err := c.anchors.Load(ctx)
	if err != nil {
		slog.Warn("chat: could not read session anchor", "err", err)
		ticketID = ""
	}
	if ticketID != "" {
		return c.resume(ctx, ticketID, false)
	}
	if c.identity() != nil {
		return c.adoptOpenTicket(ctx)
	}
	c.update(func() {
		if c.ticketID == "" {
			c.state = domain.StateNoTicket
		}
	})
	return nil
}

// Login installs the customer's bearer token. Without an active ticket the
// identity's open tickets are searched.
func (c *Controller) Login(ctx context.Context, token string) error {
	if c.auth == nil {
		return fmt.Errorf("login: no authenticator configured: %w", domain.ErrConflict)
	}
	ident, err := c.auth.Login(token)
	if err != nil {
		return err
	}
	slog.Info("chat: identity available", "user_id", ident.UserID)

	c.mu.Lock()
	idle := c.state == domain.StateNoTicket
	c.mu.Unlock()
	if idle {
		return c.adoptOpenTicket(ctx)
	}
	c.update(func() {})
	return nil
}

// Logout drops the customer's credentials. The active ticket is kept.
func (c *Controller) Logout() {
	if c.auth != nil {
		c.auth.Logout()
	}
	c.update(func() {})
}

// Open shows the widget and connects the realtime channel if a ticket is active.
func (c *Controller) Open(ctx context.Context) {
	c.mu.Lock()
	c.open = true
	ticketID := c.ticketID
	gen := c.gen
	c.mu.Unlock()

	if ticketID != "" {
		c.connect(ctx, gen, ticketID)
	}
	c.update(func() {})
}

// Close hides the widget and releases the realtime channel. Session state
// and the anchor are kept.
func (c *Controller) Close() {
	c.update(func() { c.open = false })
	if err := c.gw.Close(); err != nil {
		slog.Debug("chat: gateway close", "err", err)
	}
}

// CreateTicket starts a conversation from the contact form.
func (c *Controller) CreateTicket(ctx context.Context, form domain.CreateTicketRequest) error {
	form.Email = strings.TrimSpace(form.Email)
	if form.Email == "" {
		if ident := c.identity(); ident != nil {
			form.Email = ident.Email
		}
	}
	if err := validate.Struct(form); err != nil {
		c.update(func() {
			c.notice = &domain.Notice{Kind: domain.NoticeError, Text: "Please complete: " + strings.Join(validate.Fields(form), ", ")}
		})
		return err
	}

	c.mu.Lock()
	if c.state != domain.StateNoTicket {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("create ticket in state %s: %w", state, domain.ErrConflict)
	}
	c.state = domain.StateCreating
	c.notice = nil
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	ticket, err := c.api.CreateTicket(ctx, form)
	if err != nil {
		slog.Warn("chat: create ticket failed", "err", err)
		text := msgCreateFailed
		if errors.Is(err, domain.ErrUnauthorized) {
			text = msgSignInAgain
		}
		c.update(func() {
			c.state = domain.StateNoTicket
			c.notice = &domain.Notice{Kind: domain.NoticeError, Text: text}
		})
		return err
	}

	if err := c.anchors.Save(ctx, ticket.ID); err != nil {
		slog.Warn("chat: could not write session anchor", "ticket_id", ticket.ID, "err", err)
	}

	tempID := id.NewTemp()
	c.mu.Lock()
	c.resetLocked()
	c.ticketID = ticket.ID
	c.state = domain.StateActive
	c.messages = []domain.Message{{
		ID:         tempID,
		ClientID:   tempID,
		Content:    form.Message,
		Sender:     domain.SenderCustomer,
		SenderName: c.customerNameLocked(),
		CreatedAt:  c.now().UTC(),
		Delivery:   domain.DeliveryConfirmed,
	}}
	gen := c.gen
	open := c.open
	snap = c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	slog.Info("chat: ticket created", "ticket_id", ticket.ID)
	if open {
		c.connect(ctx, gen, ticket.ID)
	} else if err := c.gw.Join(ticket.ID); err != nil {
		slog.Warn("chat: join failed", "ticket_id", ticket.ID, "err", err)
	}
	return nil
}

// SendMessage appends an optimistic message and delivers it over the
// realtime channel, or over REST while the channel is down.
func (c *Controller) SendMessage(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("empty message: %w", domain.ErrValidation)
	}

	c.mu.Lock()
	if err := c.canSendLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	tempID := id.NewTemp()
	msg := domain.Message{
		ID:         tempID,
		ClientID:   tempID,
		Content:    content,
		Sender:     domain.SenderCustomer,
		SenderName: c.customerNameLocked(),
		CreatedAt:  c.now().UTC(),
		Delivery:   domain.DeliveryPending,
	}
	c.messages = append(c.messages, msg)
	ticketID, gen := c.ticketID, c.gen
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	return c.deliver(ctx, gen, ticketID, msg)
}

// RetryMessage re-sends a failed optimistic message.
func (c *Controller) RetryMessage(ctx context.Context, messageID string) error {
	c.mu.Lock()
	if err := c.canSendLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	i := c.indexLocked(messageID)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
	}
	if c.messages[i].Delivery != domain.DeliveryFailed {
		c.mu.Unlock()
		return fmt.Errorf("message %s is %s: %w", messageID, c.messages[i].Delivery, domain.ErrConflict)
	}
	c.messages[i].Delivery = domain.DeliveryPending
	msg := c.messages[i]
	ticketID, gen := c.ticketID, c.gen
	c.notice = nil
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	return c.deliver(ctx, gen, ticketID, msg)
}

// DiscardMessage removes an unconfirmed optimistic message.
func (c *Controller) DiscardMessage(messageID string) error {
	c.mu.Lock()
	i := c.indexLocked(messageID)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
	}
	if c.messages[i].Delivery == domain.DeliveryConfirmed {
		c.mu.Unlock()
		return fmt.Errorf("message %s already delivered: %w", messageID, domain.ErrConflict)
	}
	c.messages = append(c.messages[:i], c.messages[i+1:]...)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)
	return nil
}

// SubmitPin validates pin locally and emits verify_pin. Malformed PINs never
// reach the server.
func (c *Controller) SubmitPin(ctx context.Context, pin string) error {
	pin = strings.TrimSpace(pin)

	c.mu.Lock()
	if c.state != domain.StatePinRequired {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("submit pin in state %s: %w", state, domain.ErrConflict)
	}
	if err := validate.Struct(domain.PinSubmission{Pin: pin}); err != nil {
		c.pinError = msgPinLength
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.publish(snap)
		return err
	}
	c.state = domain.StateVerifying
	c.pinError = ""
	if c.challenge == nil {
		c.challenge = &domain.Challenge{Type: domain.ChallengeEmailPin}
	}
	c.challenge.AttemptPin = pin
	c.pinSeq++
	ticketID, gen, seq := c.ticketID, c.gen, c.pinSeq
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	if err := c.gw.VerifyPin(ticketID, pin); err != nil {
		slog.Warn("chat: verify_pin emit failed", "ticket_id", ticketID, "err", err)
		c.update(func() {
			if c.gen == gen && c.state == domain.StateVerifying {
				c.state = domain.StatePinRequired
				c.pinError = msgPinUnreachable
			}
		})
		return err
	}

	t := c.afterFunc(c.opts.PinTimeout, func() { c.pinTimedOut(gen, seq) })
	c.mu.Lock()
	if c.gen == gen && c.pinSeq == seq && c.state == domain.StateVerifying {
		c.stopPinTimerLocked()
		c.pinTimer = t
	} else {
		t.Stop()
	}
	c.mu.Unlock()
	return nil
}

// AnswerResolution answers the resolution prompt with an in-thread message.
// The prompt is dismissed even if the message cannot be sent.
func (c *Controller) AnswerResolution(ctx context.Context, resolved bool) error {
	c.mu.Lock()
	if c.state != domain.StateResolutionPrompted {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("answer resolution in state %s: %w", state, domain.ErrConflict)
	}
	c.state = domain.StateActive
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	text := answerUnresolved
	if resolved {
		text = answerResolved
	}
	return c.SendMessage(ctx, text)
}

// Reset abandons the current conversation locally so a new one can start.
func (c *Controller) Reset(ctx context.Context) error {
	c.cleanup(ctx, "", false)
	return nil
}

func (c *Controller) resume(ctx context.Context, ticketID string, writeAnchor bool) error {
	c.mu.Lock()
	c.resetLocked()
	c.ticketID = ticketID
	c.state = domain.StateActive
	gen := c.gen
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	ticket, err := c.api.GetTicket(ctx, ticketID)
	switch {
	case err != nil && domain.IsSessionInvalidating(err):
		slog.Info("chat: anchored ticket is gone", "ticket_id", ticketID, "err", err)
		c.cleanupIf(ctx, gen, "", false)
		return nil
	case err != nil:
		// The anchor stays as a hint for the next attempt.
		slog.Warn("chat: could not revalidate ticket", "ticket_id", ticketID, "err", err)
		c.update(func() {
			if c.gen == gen {
				c.resetLocked()
				c.notice = &domain.Notice{Kind: domain.NoticeError, Text: msgUnreachable}
			}
		})
		return err
	case ticket.Status.IsTerminal():
		slog.Info("chat: anchored ticket is finished", "ticket_id", ticketID, "status", ticket.Status)
		c.cleanupIf(ctx, gen, "", false)
		return nil
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil
	}
	c.messages = append([]domain.Message(nil), ticket.Messages...)
	open := c.open
	snap = c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	if writeAnchor {
		if err := c.anchors.Save(ctx, ticketID); err != nil {
			slog.Warn("chat: could not write session anchor", "ticket_id", ticketID, "err", err)
		}
	}
	if open {
		c.connect(ctx, gen, ticketID)
	} else if err := c.gw.Join(ticketID); err != nil {
		slog.Warn("chat: join failed", "ticket_id", ticketID, "err", err)
	}
	return nil
}

func (c *Controller) adoptOpenTicket(ctx context.Context) error {
	tickets, err := c.api.ListTickets(ctx)
	if err != nil {
		slog.Warn("chat: could not list tickets", "err", err)
		return err
	}
	for _, t := range tickets {
		if !t.Status.IsTerminal() {
			c.mu.Lock()
			idle := c.state == domain.StateNoTicket
			c.mu.Unlock()
			if !idle {
				return nil
			}
			return c.resume(ctx, t.ID, true)
		}
	}
	c.update(func() {})
	return nil
}

// connect joins ticketID and dials the gateway. A rejected session is
// cleaned up; any other dial failure degrades sending to REST.
func (c *Controller) connect(ctx context.Context, gen uint64, ticketID string) {
	if err := c.gw.Join(ticketID); err != nil {
		slog.Warn("chat: join failed", "ticket_id", ticketID, "err", err)
	}
	if err := c.gw.Connect(ctx); err != nil {
		if domain.IsSessionInvalidating(err) {
			slog.Info("chat: gateway rejected the session", "ticket_id", ticketID, "err", err)
			c.cleanupIf(ctx, gen, "", false)
			return
		}
		slog.Warn("chat: realtime channel unavailable", "ticket_id", ticketID, "err", err)
		c.update(func() {
			if c.gen == gen {
				c.notice = &domain.Notice{Kind: domain.NoticeInfo, Text: msgLiveDegraded}
			}
		})
	}
}

func (c *Controller) deliver(ctx context.Context, gen uint64, ticketID string, msg domain.Message) error {
	if c.gw.Connected() {
		err := c.gw.SendMessage(ticketID, msg.Content, msg.ClientID)
		if err == nil {
			return nil
		}
		slog.Warn("chat: socket send failed, using REST", "ticket_id", ticketID, "err", err)
	}

	saved, err := c.api.SendMessage(ctx, ticketID, msg.Content)
	if err != nil {
		if domain.IsSessionInvalidating(err) {
			slog.Info("chat: ticket gone while sending", "ticket_id", ticketID, "err", err)
			c.cleanupIf(ctx, gen, "", false)
			return nil
		}
		slog.Warn("chat: send failed", "ticket_id", ticketID, "err", err)
		c.update(func() {
			if c.gen != gen {
				return
			}
			if i := c.indexLocked(msg.ID); i >= 0 {
				c.messages[i].Delivery = domain.DeliveryFailed
			}
			c.notice = &domain.Notice{Kind: domain.NoticeError, Text: msgSendFailed}
		})
		return err
	}

	c.update(func() {
		if c.gen != gen {
			return
		}
		i := c.indexLocked(msg.ID)
		if i < 0 {
			return
		}
		if saved != nil && saved.ID != "" {
			if c.indexLocked(saved.ID) >= 0 {
				c.messages = append(c.messages[:i], c.messages[i+1:]...)
				return
			}
			c.messages[i].ID = saved.ID
		}
		c.messages[i].Delivery = domain.DeliveryConfirmed
	})
	return nil
}

func (c *Controller) pinTimedOut(gen, seq uint64) {
	c.update(func() {
		if c.gen != gen || c.pinSeq != seq || c.state != domain.StateVerifying {
			return
		}
		slog.Warn("chat: pin verification timed out", "ticket_id", c.ticketID)
		c.state = domain.StatePinRequired
		c.pinError = msgPinTimedOut
		c.pinTimer = nil
		if c.challenge != nil {
			c.challenge.AttemptPin = ""
		}
	})
}

// cleanup ends the session: state, anchor and channel. It is idempotent.
func (c *Controller) cleanup(ctx context.Context, noticeText string, archive bool) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.cleanupIf(ctx, gen, noticeText, archive)
}

// cleanupIf runs cleanup unless the session moved on from gen.
func (c *Controller) cleanupIf(ctx context.Context, gen uint64, noticeText string, archive bool) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	ticketID := c.ticketID
	var transcript []domain.Message
	if archive {
		transcript = append(transcript, c.messages...)
	}
	c.resetLocked()
	if noticeText != "" {
		c.notice = &domain.Notice{Kind: domain.NoticeInfo, Text: noticeText}
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	c.gw.Leave()
	if err := c.gw.Close(); err != nil {
		slog.Debug("chat: gateway close", "err", err)
	}
	if err := c.anchors.Clear(ctx); err != nil {
		slog.Warn("chat: could not clear session anchor", "err", err)
	}
	if ticketID != "" {
		slog.Info("chat: session ended", "ticket_id", ticketID)
	}

	if archive && ticketID != "" && c.transcripts != nil && len(transcript) > 0 {
		c.async(func() {
			actx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
			defer cancel()
			if err := c.transcripts.Archive(actx, ticketID, transcript); err != nil {
				slog.Warn("chat: transcript archive failed", "ticket_id", ticketID, "err", err)
			}
		})
	}
}

// resetLocked returns the in-memory session to NO_TICKET and invalidates
// pending async work.
func (c *Controller) resetLocked() {
	c.gen++
	c.state = domain.StateNoTicket
	c.ticketID = ""
	c.verified = false
	c.challenge = nil
	c.messages = nil
	c.notice = nil
	c.pinError = ""
	c.stopPinTimerLocked()
	if c.flashTimer != nil {
		c.flashTimer.Stop()
		c.flashTimer = nil
	}
}

func (c *Controller) stopPinTimerLocked() {
	if c.pinTimer != nil {
		c.pinTimer.Stop()
		c.pinTimer = nil
	}
}

func (c *Controller) canSendLocked() error {
	if c.ticketID == "" {
		return fmt.Errorf("no active conversation: %w", domain.ErrConflict)
	}
	if !c.state.AcceptsChatInput() {
		return fmt.Errorf("chat input blocked in state %s: %w", c.state, domain.ErrConflict)
	}
	return nil
}

func (c *Controller) indexLocked(messageID string) int {
	for i := range c.messages {
		if c.messages[i].ID == messageID {
			return i
		}
	}
	return -1
}

func (c *Controller) customerNameLocked() string {
	if ident := c.identity(); ident != nil && ident.Name != "" {
		return ident.Name
	}
	return "You"
}

func (c *Controller) identity() *domain.Identity {
	if c.auth == nil {
		return nil
	}
	return c.auth.Identity()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		State:    c.state,
		TicketID: c.ticketID,
		Status:   domain.HandleStatusFor(c.state, c.verified),
		Verified: c.verified,
		Messages: append([]domain.Message{}, c.messages...),
		PinError: c.pinError,
		Open:     c.open,
		Identity: c.identity(),
	}
	if c.challenge != nil {
		ch := *c.challenge
		s.Challenge = &ch
	}
	if c.notice != nil {
		n := *c.notice
		s.Notice = &n
	}
	return s
}

// update applies fn under the lock and notifies subscribers.
func (c *Controller) update(fn func()) {
	c.mu.Lock()
	fn()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)
}

func (c *Controller) publish(snap Snapshot) {
	c.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}
