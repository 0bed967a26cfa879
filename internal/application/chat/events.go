package chat

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/go-support-chat/internal/domain"
	"github.com/go-support-chat/internal/pkg/id"
)

// HandleEvent applies one realtime event to the session.
func (c *Controller) HandleEvent(ev domain.Event) {
	switch ev.Type {
	case domain.EventTicketClosed:
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		c.cleanup(ctx, msgClosed, true)
		return
	case domain.EventTicketError:
		slog.Warn("chat: ticket error from gateway", "data", string(ev.Data))
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		c.cleanup(ctx, "", false)
		return
	}

	c.mu.Lock()
	if c.ticketID == "" {
		c.mu.Unlock()
		slog.Debug("chat: event without active ticket", "event", ev.Type)
		return
	}
	changed := c.applyLocked(ev)
	var snap Snapshot
	if changed {
		snap = c.snapshotLocked()
	}
	c.mu.Unlock()
	if changed {
		c.publish(snap)
	}
}

// applyLocked handles the non-terminal events and reports whether the
// session changed.
func (c *Controller) applyLocked(ev domain.Event) bool {
	switch ev.Type {
	case domain.EventTicketHistory:
		var wire []domain.WireMessage
		if err := decode(ev, &wire); err != nil {
			return false
		}
		c.messages = domain.NormalizeAll(wire)
		c.stopPinTimerLocked()
		c.challenge = nil
		c.pinError = ""
		c.state = domain.StateActive
		return true

	case domain.EventNewMessage:
		var wire domain.WireMessage
		if err := decode(ev, &wire); err != nil {
			return false
		}
		return c.mergeLocked(wire.Normalize())

	case domain.EventRequestPin:
		if c.state != domain.StateActive {
			return ignored(ev, c.state)
		}
		var p domain.RequestPinPayload
		if len(ev.Data) > 0 {
			if err := decode(ev, &p); err != nil {
				return false
			}
		}
		c.state = domain.StatePinRequired
		c.challenge = &domain.Challenge{Type: domain.ParseChallengeType(p.Type)}
		c.pinError = ""
		return true

	case domain.EventPinMissing:
		if c.state != domain.StatePinRequired && c.state != domain.StateVerifying {
			return ignored(ev, c.state)
		}
		c.stopPinTimerLocked()
		c.state = domain.StatePinMissing
		c.pinError = ""
		c.notice = &domain.Notice{Kind: domain.NoticeInfo, Text: msgPinMissing}
		return true

	case domain.EventPinSuccess:
		if c.state != domain.StateVerifying {
			return ignored(ev, c.state)
		}
		c.stopPinTimerLocked()
		c.state = domain.StateActive
		c.verified = true
		c.challenge = nil
		c.pinError = ""
		notice := &domain.Notice{Kind: domain.NoticeSuccess, Text: msgVerified}
		c.notice = notice
		if c.flashTimer != nil {
			c.flashTimer.Stop()
		}
		c.flashTimer = c.afterFunc(c.opts.SuccessFlash, func() {
			c.update(func() {
				if c.notice == notice {
					c.notice = nil
				}
			})
		})
		return true

	case domain.EventPinFailed:
		if c.state != domain.StateVerifying && c.state != domain.StatePinRequired {
			return ignored(ev, c.state)
		}
		c.stopPinTimerLocked()
		c.state = domain.StatePinRequired
		c.pinError = msgPinIncorrect
		if c.challenge == nil {
			c.challenge = &domain.Challenge{Type: domain.ChallengeEmailPin}
		}
		c.challenge.AttemptPin = ""
		return true

	case domain.EventRequestResolution:
		if c.state != domain.StateActive {
			return ignored(ev, c.state)
		}
		c.state = domain.StateResolutionPrompted
		return true
	}

	slog.Debug("chat: unhandled event", "event", ev.Type)
	return false
}

// HandleReconnect resynchronises after the gateway redialed: messages the
// server recorded after the last known one are merged in.
func (c *Controller) HandleReconnect(ctx context.Context) {
	c.mu.Lock()
	ticketID, gen := c.ticketID, c.gen
	lastID := c.lastConfirmedIDLocked()
	c.mu.Unlock()
	if ticketID == "" {
		return
	}

	ticket, err := c.api.GetTicket(ctx, ticketID)
	switch {
	case err != nil && domain.IsSessionInvalidating(err):
		c.cleanupIf(ctx, gen, "", false)
		return
	case err != nil:
		slog.Warn("chat: resync after reconnect failed", "ticket_id", ticketID, "err", err)
		return
	case ticket.Status.IsTerminal():
		c.cleanupIf(ctx, gen, msgClosed, true)
		return
	}

	missed := ticket.Messages
	if lastID != "" {
		for i := range ticket.Messages {
			if ticket.Messages[i].ID == lastID {
				missed = ticket.Messages[i+1:]
				break
			}
		}
	}

	c.update(func() {
		if c.gen != gen {
			return
		}
		for _, m := range missed {
			c.mergeLocked(m)
		}
	})
}

// HandleUnauthorized ends the session after the gateway refused the
// customer's credentials on redial.
func (c *Controller) HandleUnauthorized(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, cleanupTimeout)
	defer cancel()
	c.cleanup(ctx, "", false)
}

// mergeLocked adds m to the buffer unless its id is already present. Echoes
// of optimistic messages replace them in place, matched by client id or,
// failing that, by identical customer content.
func (c *Controller) mergeLocked(m domain.Message) bool {
	m.Delivery = domain.DeliveryConfirmed
	if m.ID != "" && c.indexLocked(m.ID) >= 0 {
		return false
	}
	if m.ClientID != "" {
		for i := range c.messages {
			local := &c.messages[i]
			if unacknowledged(local) && (local.ClientID == m.ClientID || local.ID == m.ClientID) {
				c.confirmLocked(i, m)
				return true
			}
		}
	}
	if m.Sender == domain.SenderCustomer {
		for i := range c.messages {
			local := &c.messages[i]
			if unacknowledged(local) && local.Sender == domain.SenderCustomer && local.Content == m.Content {
				c.confirmLocked(i, m)
				return true
			}
		}
	}
	c.messages = append(c.messages, m)
	return true
}

// unacknowledged reports whether m still lacks a server id: pending and
// failed sends, and the opening message of a freshly created ticket.
func unacknowledged(m *domain.Message) bool {
	return m.Delivery != domain.DeliveryConfirmed || id.IsTemp(m.ID)
}

func (c *Controller) confirmLocked(i int, m domain.Message) {
	local := c.messages[i]
	if m.ClientID == "" {
		m.ClientID = local.ClientID
	}
	if m.ID == "" {
		m.ID = local.ID
	}
	if m.SenderName == "" {
		m.SenderName = local.SenderName
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = local.CreatedAt
	}
	c.messages[i] = m
}

func (c *Controller) lastConfirmedIDLocked() string {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Delivery == domain.DeliveryConfirmed && c.messages[i].ID != "" && !id.IsTemp(c.messages[i].ID) {
			return c.messages[i].ID
		}
	}
	return ""
}

func decode(ev domain.Event, v interface{}) error {
	if err := json.Unmarshal(ev.Data, v); err != nil {
		slog.Warn("chat: malformed event payload", "event", ev.Type, "err", err)
		return err
	}
	return nil
}

func ignored(ev domain.Event, state domain.State) bool {
	slog.Debug("chat: event ignored in state", "event", ev.Type, "state", state)
	return false
}
