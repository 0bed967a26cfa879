package domain

import (
	"strings"
	"time"
)

// TicketStatus is the lifecycle status reported by the ticket backend.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusWaiting    TicketStatus = "WAITING"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// IsTerminal reports whether no further conversation can happen on the ticket.
func (s TicketStatus) IsTerminal() bool {
	switch TicketStatus(strings.ToUpper(string(s))) {
	case TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// Ticket is a support conversation as returned by the REST API.
type Ticket struct {
	ID        string       `json:"id"`
	Subject   string       `json:"subject,omitempty"`
	Status    TicketStatus `json:"status"`
	Messages  []Message    `json:"messages,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// CreateTicketRequest is the "start a conversation" form.
type CreateTicketRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Category string `json:"category" validate:"required"`
	Subject  string `json:"subject" validate:"required"`
	Message  string `json:"message" validate:"required"`
}

// HandleStatus is the client-side status of the active ticket handle.
type HandleStatus string

const (
	HandleOpen            HandleStatus = "OPEN"
	HandlePinPending      HandleStatus = "PIN_PENDING"
	HandleVerified        HandleStatus = "VERIFIED"
	HandleResolvedPending HandleStatus = "RESOLVED_PENDING"
	HandleClosed          HandleStatus = "CLOSED"
)
