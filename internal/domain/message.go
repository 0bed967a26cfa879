package domain

import "time"

// Sender identifies who authored a chat message.
type Sender string

const (
	SenderCustomer Sender = "CUSTOMER"
	SenderStaff    Sender = "STAFF"
	SenderSystem   Sender = "SYSTEM"
)

// Delivery tracks an optimistic message until the server confirms it.
type Delivery string

const (
	DeliveryPending   Delivery = "pending"
	DeliveryConfirmed Delivery = "confirmed"
	DeliveryFailed    Delivery = "failed"
)

type Message struct {
	ID         string    `json:"id"`
	ClientID   string    `json:"clientId,omitempty"`
	Content    string    `json:"content"`
	Sender     Sender    `json:"sender"`
	SenderName string    `json:"senderName,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	Delivery   Delivery  `json:"delivery"`
}

// WireMessage is the message shape shared by REST responses and socket events.
// History fetched over REST carries staffUserId instead of sender.
type WireMessage struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"clientId,omitempty"`
	Content     string    `json:"content"`
	Sender      string    `json:"sender,omitempty"`
	SenderName  string    `json:"senderName,omitempty"`
	StaffUserID *string   `json:"staffUserId,omitempty"`
	StaffUser   *struct {
		FirstName string `json:"firstName"`
	} `json:"staffUser,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Normalize maps the server representation to a confirmed Message.
func (w WireMessage) Normalize() Message {
	m := Message{
		ID:         w.ID,
		ClientID:   w.ClientID,
		Content:    w.Content,
		Sender:     Sender(w.Sender),
		SenderName: w.SenderName,
		CreatedAt:  w.CreatedAt,
		Delivery:   DeliveryConfirmed,
	}
	switch m.Sender {
	case SenderCustomer, SenderStaff, SenderSystem:
		return m
	}
	if w.StaffUserID != nil && *w.StaffUserID != "" {
		m.Sender = SenderStaff
		if m.SenderName == "" {
			m.SenderName = "Staff"
			if w.StaffUser != nil && w.StaffUser.FirstName != "" {
				m.SenderName = w.StaffUser.FirstName
			}
		}
		return m
	}
	m.Sender = SenderCustomer
	if m.SenderName == "" {
		m.SenderName = "Customer"
	}
	return m
}

// NormalizeAll normalizes a history list, preserving order.
func NormalizeAll(in []WireMessage) []Message {
	out := make([]Message, 0, len(in))
	for _, w := range in {
		out = append(out, w.Normalize())
	}
	return out
}
