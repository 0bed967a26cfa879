package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-support-chat/internal/application/chat"
	"github.com/go-support-chat/internal/domain"
	"github.com/go-chi/chi/v5"
)

// ChatService is the part of the chat controller the bridge drives.
type ChatService interface {
	Snapshot() chat.Snapshot
	Login(ctx context.Context, token string) error
	Logout()
	CreateTicket(ctx context.Context, form domain.CreateTicketRequest) error
	SendMessage(ctx context.Context, content string) error
	RetryMessage(ctx context.Context, messageID string) error
	DiscardMessage(messageID string) error
	SubmitPin(ctx context.Context, pin string) error
	AnswerResolution(ctx context.Context, resolved bool) error
	Reset(ctx context.Context) error
}

// Publisher accepts widget commands.
type Publisher interface {
	Publish(cmd chat.Command)
}

// ChatHandler exposes the chat session to a local front-end.
type ChatHandler struct {
	svc ChatService
	bus Publisher
}

func NewChatHandler(svc ChatService, bus Publisher) *ChatHandler {
	return &ChatHandler{svc: svc, bus: bus}
}

type identityInput struct {
	Token string `json:"token"`
}

type messageInput struct {
	Content string `json:"content"`
}

type pinInput struct {
	Pin string `json:"pin"`
}

type resolutionInput struct {
	Resolved *bool `json:"resolved"`
}

func (h *ChatHandler) State(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StateEnvelope{State: h.svc.Snapshot()})
}

func (h *ChatHandler) Open(w http.ResponseWriter, _ *http.Request) {
	h.bus.Publish(chat.CommandOpen)
	writeJSON(w, http.StatusOK, StateEnvelope{State: h.svc.Snapshot()})
}

func (h *ChatHandler) Close(w http.ResponseWriter, _ *http.Request) {
	h.bus.Publish(chat.CommandClose)
	writeJSON(w, http.StatusOK, StateEnvelope{State: h.svc.Snapshot()})
}

func (h *ChatHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input identityInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	h.respond(w, h.svc.Login(r.Context(), input.Token))
}

func (h *ChatHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.svc.Logout()
	writeJSON(w, http.StatusOK, StateEnvelope{State: h.svc.Snapshot()})
}

func (h *ChatHandler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	var form domain.CreateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := h.svc.CreateTicket(r.Context(), form)
	if err == nil {
		writeJSON(w, http.StatusCreated, StateEnvelope{State: h.svc.Snapshot()})
		return
	}
	h.respond(w, err)
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var input messageInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.respond(w, h.svc.SendMessage(r.Context(), input.Content))
}

func (h *ChatHandler) RetryMessage(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.svc.RetryMessage(r.Context(), chi.URLParam(r, "id")))
}

func (h *ChatHandler) DiscardMessage(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.svc.DiscardMessage(chi.URLParam(r, "id")))
}

func (h *ChatHandler) SubmitPin(w http.ResponseWriter, r *http.Request) {
	var input pinInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.respond(w, h.svc.SubmitPin(r.Context(), input.Pin))
}

func (h *ChatHandler) AnswerResolution(w http.ResponseWriter, r *http.Request) {
	var input resolutionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Resolved == nil {
		writeError(w, http.StatusBadRequest, "resolved is required")
		return
	}
	h.respond(w, h.svc.AnswerResolution(r.Context(), *input.Resolved))
}

func (h *ChatHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.svc.Reset(r.Context()))
}

// respond writes the session state, with the error and its status when err
// is non-nil.
func (h *ChatHandler) respond(w http.ResponseWriter, err error) {
	snap := h.svc.Snapshot()
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			slog.Error("chat bridge: unexpected error", "err", err)
		}
		writeJSON(w, status, StateEnvelope{State: snap, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, StateEnvelope{State: snap})
}
