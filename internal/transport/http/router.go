package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-support-chat/internal/config"
	"github.com/go-support-chat/internal/transport/http/handler"
	appmiddleware "github.com/go-support-chat/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// Deps holds what the bridge drives.
type Deps struct {
	Chat handler.ChatService
	Bus  handler.Publisher
}

// NewRouter builds the local bridge router. stop releases the rate
// limiter's background cleanup and must be called once the server is down.
func NewRouter(cfg *config.Config, deps *Deps) (h http.Handler, stop func()) {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10: ticket creation and PIN attempts.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	healthH := handler.NewHealthHandler()
	chatH := handler.NewChatHandler(deps.Chat, deps.Bus)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		r.Route("/chat", func(r chi.Router) {
			r.Get("/state", chatH.State)
			r.Post("/open", chatH.Open)
			r.Post("/close", chatH.Close)
			r.Post("/identity", chatH.Login)
			r.Delete("/identity", chatH.Logout)
			r.With(sensitiveRL.Limit).Post("/tickets", chatH.CreateTicket)
			r.Post("/messages", chatH.SendMessage)
			r.Post("/messages/{id}/retry", chatH.RetryMessage)
			r.Delete("/messages/{id}", chatH.DiscardMessage)
			r.With(sensitiveRL.Limit).Post("/pin", chatH.SubmitPin)
			r.Post("/resolution", chatH.AnswerResolution)
			r.Post("/reset", chatH.Reset)
		})
	})

	return r, sensitiveRL.Stop
}
