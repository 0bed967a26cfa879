package ticketapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-support-chat/internal/domain"
	"golang.org/x/time/rate"
)

// TokenSource supplies the customer bearer token, "" when anonymous.
type TokenSource interface {
	Token() string
}

// Client talks to the customer-portal Ticket REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	limiter    *rate.Limiter
}

// NewClient creates a client rooted at baseURL (for example
// "https://api.example.com/customer/portal"). A nil limiter disables
// client-side throttling.
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource, limiter *rate.Limiter) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		limiter:    limiter,
	}
}

type createTicketBody struct {
	Email    string `json:"email"`
	Category string `json:"category"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
}

type wireTicket struct {
	ID        string               `json:"id"`
	Subject   string               `json:"subject"`
	Status    domain.TicketStatus  `json:"status"`
	Messages  []domain.WireMessage `json:"messages"`
	CreatedAt time.Time            `json:"createdAt"`
}

func (w wireTicket) toDomain() *domain.Ticket {
	return &domain.Ticket{
		ID:        w.ID,
		Subject:   w.Subject,
		Status:    w.Status,
		Messages:  domain.NormalizeAll(w.Messages),
		CreatedAt: w.CreatedAt,
	}
}

// CreateTicket opens a new ticket whose first message is req.Message.
func (c *Client) CreateTicket(ctx context.Context, req domain.CreateTicketRequest) (*domain.Ticket, error) {
	body := createTicketBody{
		Email:    req.Email,
		Category: req.Category,
		Subject:  req.Subject,
		Message:  req.Message,
		Priority: "MEDIUM",
	}
	var out wireTicket
	if err := c.do(ctx, http.MethodPost, "/tickets", body, &out); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("create ticket: response without id: %w", domain.ErrTransport)
	}
	return out.toDomain(), nil
}

// ListTickets returns the authenticated customer's tickets. The portal answers
// with a bare array; the paginated {"tickets": [...]} form is accepted too.
func (c *Client) ListTickets(ctx context.Context) ([]domain.Ticket, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/tickets", nil, &raw); err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	var items []wireTicket
	if err := json.Unmarshal(raw, &items); err != nil {
		var page struct {
			Tickets []wireTicket `json:"tickets"`
		}
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("list tickets: decode: %w", domain.ErrTransport)
		}
		items = page.Tickets
	}
	out := make([]domain.Ticket, 0, len(items))
	for _, w := range items {
		out = append(out, *w.toDomain())
	}
	return out, nil
}

// GetTicket returns a ticket with its full message history.
func (c *Client) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	var out wireTicket
	if err := c.do(ctx, http.MethodGet, "/tickets/"+url.PathEscape(ticketID), nil, &out); err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", ticketID, err)
	}
	return out.toDomain(), nil
}

// SendMessage posts a message without the realtime channel. The returned
// message is nil when the backend answers without a body.
func (c *Client) SendMessage(ctx context.Context, ticketID, content string) (*domain.Message, error) {
	body := map[string]string{"ticketId": ticketID, "content": content}
	var out *domain.WireMessage
	if err := c.do(ctx, http.MethodPost, "/chat/messages", body, &out); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	if out == nil || out.ID == "" {
		return nil, nil
	}
	m := out.Normalize()
	return &m, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", errors.Join(domain.ErrTransport, err))
		}
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Join(domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s: %w", resp.StatusCode, bytes.TrimSpace(msg), statusError(resp.StatusCode))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Join(domain.ErrTransport, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", errors.Join(domain.ErrTransport, err))
	}
	return nil
}

// statusError maps an HTTP status onto the domain error taxonomy.
func statusError(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrUnauthorized
	case http.StatusNotFound, http.StatusGone:
		return domain.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.ErrValidation
	case http.StatusConflict:
		return domain.ErrConflict
	default:
		return domain.ErrTransport
	}
}
