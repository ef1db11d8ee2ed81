/*
Package handler provides the HTTP handlers and routing setup for the Ripple Chat server.

This file defines the main Router, applying necessary middleware like logging, CORS,
and IP-based rate limiting before delegating requests to specific handlers (API and WebSocket).
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"ripplechat/internal/pkg/auth/jwt"
	"ripplechat/internal/pkg/limiter"
	"ripplechat/internal/pkg/logx"
	"ripplechat/internal/pkg/resp"
)

const (
	SendRate     = 2.0
	SendBurst    = 10
	ConnectRate  = 0.2
	ConnectBurst = 5
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
// It initializes IP-based rate limiters, configures CORS, and applies global and per-route middleware.
func Router(deps *AppDeps) http.Handler {
	sendLimiter := limiter.NewIPRateLimiter(rate.Limit(SendRate), SendBurst)
	connectLimiter := limiter.NewIPRateLimiter(rate.Limit(ConnectRate), ConnectBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.Environment == "development" {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.Environment == "development" {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		logx.Info("Health check endpoint hit")

		data := map[string]string{
			"status":  "ok",
			"service": "Ripple Chat Server",
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		api.Route("/chats/{chatID}", func(chat chi.Router) {
			chat.Get("/messages", HandleListMessages(deps))

			rateLimitedSend := sendLimiter.Middleware(HandleSendMessage(deps))
			chat.Post("/messages", http.HandlerFunc(rateLimitedSend.ServeHTTP))

			chat.Delete("/messages/{messageID}", HandleDeleteMessage(deps))
			chat.Post("/read", HandleMarkRead(deps))
			chat.Get("/unread", HandleUnreadCount(deps))
		})

		api.Route("/messages/{messageID}", func(msg chi.Router) {
			msg.Post("/reactions", HandleToggleReaction(deps))
			msg.Delete("/reactions/{reactionID}", HandleRemoveReaction(deps))
		})

		api.Get("/presence/status", HandlePresenceStatus(deps))
	})

	// The upgrade handler requires a resolved identity, so the extractor runs
	// here too; websocket clients pass the token as a query parameter.
	r.With(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret)).
		Get("/ws", HandleWebSocket(wsUpgrader, connectLimiter, deps))

	return r
}
