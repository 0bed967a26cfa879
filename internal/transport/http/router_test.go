package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-support-chat/internal/application/chat"
	"github.com/go-support-chat/internal/config"
	"github.com/go-support-chat/internal/domain"
	"github.com/stretchr/testify/assert"
)

type stubChat struct{ pins []string }

func (s *stubChat) Snapshot() chat.Snapshot {
	return chat.Snapshot{State: domain.StateNoTicket}
}

func (s *stubChat) Login(context.Context, string) error { return nil }
func (s *stubChat) Logout()                             {}

func (s *stubChat) CreateTicket(context.Context, domain.CreateTicketRequest) error { return nil }
func (s *stubChat) SendMessage(context.Context, string) error                   { return nil }
func (s *stubChat) RetryMessage(context.Context, string) error                  { return nil }
func (s *stubChat) DiscardMessage(string) error                                 { return nil }
func (s *stubChat) AnswerResolution(context.Context, bool) error                { return nil }
func (s *stubChat) Reset(context.Context) error                                 { return nil }

func (s *stubChat) SubmitPin(_ context.Context, pin string) error {
	s.pins = append(s.pins, pin)
	return nil
}

func newRouter(t *testing.T) (http.Handler, *stubChat) {
	t.Helper()
	svc := &stubChat{}
	cfg := &config.Config{AllowedOrigins: []string{"*"}}
	r, stop := NewRouter(cfg, &Deps{Chat: svc, Bus: chat.NewBus()})
	t.Cleanup(stop)
	return r, svc
}

func TestRouter_HealthCheck(t *testing.T) {
	r, _ := newRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health-check/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pong")
}

func TestRouter_State(t *testing.T) {
	r, _ := newRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/chat/state", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"NO_TICKET"`)
}

func TestRouter_PinIsRateLimited(t *testing.T) {
	r, svc := newRouter(t)
	limited := 0
	for i := 0; i < 15; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/pin", strings.NewReader(`{"pin":"1234"}`))
		req.RemoteAddr = "10.1.1.1:5000"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Positive(t, limited)
	assert.Less(t, len(svc.pins), 15)
}
