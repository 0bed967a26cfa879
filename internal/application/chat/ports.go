package chat

import (
	"context"

	"github.com/go-support-chat/internal/domain"
)

// TicketAPI is the REST collaborator.
type TicketAPI interface {
	CreateTicket(ctx context.Context, req domain.CreateTicketRequest) (*domain.Ticket, error)
	ListTickets(ctx context.Context) ([]domain.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error)
	// SendMessage may return a nil message when the server acknowledges
	// without a body.
	SendMessage(ctx context.Context, ticketID, content string) (*domain.Message, error)
}

// Gateway is the realtime channel. Join sets the room joined on every
// (re)connect; emits fail with domain.ErrTransport while disconnected.
type Gateway interface {
	Connect(ctx context.Context) error
	Join(ticketID string) error
	Leave()
	SendMessage(ticketID, content, clientID string) error
	VerifyPin(ticketID, pin string) error
	Connected() bool
	Close() error
}

// AnchorStore persists the Session Anchor. Load returns "" when absent.
type AnchorStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, ticketID string) error
	Clear(ctx context.Context) error
}

// Authenticator holds the customer's credentials, if any.
type Authenticator interface {
	Login(token string) (*domain.Identity, error)
	Logout()
	Identity() *domain.Identity
}

// TranscriptSink archives the buffer of a ticket the server closed.
type TranscriptSink interface {
	Archive(ctx context.Context, ticketID string, messages []domain.Message) error
}
