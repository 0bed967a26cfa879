package ticketapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-support-chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, staticToken("tok"), nil)
}

func TestCreateTicket(t *testing.T) {
	var got createTicketBody
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tickets", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"T-100","status":"OPEN"}`))
	})

	ticket, err := c.CreateTicket(context.Background(), domain.CreateTicketRequest{
		Email: "a@b.com", Category: "Billing", Subject: "Invoice", Message: "Need a copy",
	})
	require.NoError(t, err)
	assert.Equal(t, "T-100", ticket.ID)
	assert.Equal(t, "MEDIUM", got.Priority)
	assert.Equal(t, "Billing", got.Category)
	assert.Equal(t, "Need a copy", got.Message)
}

func TestCreateTicket_Unauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	})
	_, err := c.CreateTicket(context.Background(), domain.CreateTicketRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestCreateTicket_MissingID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	_, err := c.CreateTicket(context.Background(), domain.CreateTicketRequest{})
	assert.True(t, errors.Is(err, domain.ErrTransport))
}

func TestGetTicket_NormalizesHistory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tickets/T-100", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"id":"T-100","status":"IN_PROGRESS",
			"messages":[
				{"id":"m1","content":"hi","staffUserId":null},
				{"id":"m2","content":"hello","staffUserId":"s1","staffUser":{"firstName":"Sam"}}
			]}`))
	})

	ticket, err := c.GetTicket(context.Background(), "T-100")
	require.NoError(t, err)
	require.Len(t, ticket.Messages, 2)
	assert.Equal(t, domain.SenderCustomer, ticket.Messages[0].Sender)
	assert.Equal(t, domain.SenderStaff, ticket.Messages[1].Sender)
	assert.Equal(t, "Sam", ticket.Messages[1].SenderName)
	assert.False(t, ticket.Status.IsTerminal())
}

func TestGetTicket_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.GetTicket(context.Background(), "gone")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.True(t, domain.IsSessionInvalidating(err))
}

func TestGetTicket_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.GetTicket(context.Background(), "T-1")
	assert.True(t, errors.Is(err, domain.ErrTransport))
	assert.False(t, domain.IsSessionInvalidating(err))
}

func TestGetTicket_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewClient(srv.URL, time.Second, nil, nil)

	_, err := c.GetTicket(context.Background(), "T-1")
	assert.True(t, errors.Is(err, domain.ErrTransport))
}

func TestListTickets_Array(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"T-1","status":"CLOSED"},{"id":"T-2","status":"OPEN"}]`))
	})
	tickets, err := c.ListTickets(context.Background())
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.True(t, tickets[0].Status.IsTerminal())
	assert.Equal(t, "T-2", tickets[1].ID)
}

func TestListTickets_Paginated(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"tickets":[{"id":"T-7","status":"open"}],"total":1}`))
	})
	tickets, err := c.ListTickets(context.Background())
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "T-7", tickets[0].ID)
}

func TestSendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/messages", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "T-100", body["ticketId"])
		assert.Equal(t, "hello", body["content"])
		_, _ = w.Write([]byte(`{"id":"m9","content":"hello","sender":"CUSTOMER"}`))
	})
	m, err := c.SendMessage(context.Background(), "T-100", "hello")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "m9", m.ID)
	assert.Equal(t, domain.DeliveryConfirmed, m.Delivery)
}

func TestSendMessage_NoBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	m, err := c.SendMessage(context.Background(), "T-100", "hello")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestStatusError(t *testing.T) {
	assert.Equal(t, domain.ErrUnauthorized, statusError(http.StatusForbidden))
	assert.Equal(t, domain.ErrNotFound, statusError(http.StatusGone))
	assert.Equal(t, domain.ErrValidation, statusError(http.StatusBadRequest))
	assert.Equal(t, domain.ErrConflict, statusError(http.StatusConflict))
	assert.Equal(t, domain.ErrTransport, statusError(http.StatusInternalServerError))
}
