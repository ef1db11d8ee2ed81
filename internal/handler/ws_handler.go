/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which is responsible for rate limiting,
resolving the authenticated identity to an internal user, upgrading the HTTP connection
to WebSocket, and starting the connection pumps.
*/
package handler

import (
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"ripplechat/internal/app/directory"
	"ripplechat/internal/app/realtime"
	"ripplechat/internal/pkg/auth/jwt"
	"ripplechat/internal/pkg/errs"
	"ripplechat/internal/pkg/limiter"
	"ripplechat/internal/pkg/logx"
	"ripplechat/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
// Identity is established here, before the upgrade: the token is resolved through the
// user directory and the internal user id is the only identity the realtime core sees.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if ip == "" {
			ip = "unknown_ip"
		}

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			logx.Warn("WebSocket connection rejected: No identity token")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		user, err := deps.Directory.Resolve(r.Context(), identity.ExternalID)
		if errors.Is(err, directory.ErrUnknownIdentity) {
			logx.Warn("WebSocket connection rejected: Unknown identity", "external_id", identity.ExternalID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknownIdentity))
			return
		}
		if err != nil {
			logx.Error(err, "Failed to resolve identity for WebSocket connection")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		logx.Info("Attempting to upgrade connection", "user_id", user.ID)

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		conn := realtime.NewConn(ws, user)

		go conn.WritePump()

		logx.Info("WebSocket connection established", "conn_id", conn.ID, "user_id", user.ID)

		conn.ReadPump(deps.Dispatcher)
	}
}
