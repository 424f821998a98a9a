/*
Package handler provides the HTTP surface of the gateway: the health check and
the WebSocket handshake.

This file contains HandleWebSocket, which authenticates the handshake
credential, upgrades the connection, and starts the client pumps. There is no
anonymous state: a missing or invalid credential is rejected before the
upgrade, so an unauthenticated transport link is never established.
*/
package handler

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"concord/internal/app/gateway"
	"concord/internal/pkg/errs"
	"concord/internal/pkg/logx"
	"concord/internal/pkg/resp"
)

// bearerToken extracts the handshake credential. Browsers cannot set headers
// on WebSocket dials, so a token query parameter is accepted alongside the
// Authorization header.
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}

	return r.URL.Query().Get("token")
}

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
// Handshake rate limiting runs as route middleware before this handler is reached.
func HandleWebSocket(upgrader websocket.Upgrader, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			logx.Warn("WebSocket connection rejected: Missing credential")
			resp.RespondError(w, r, errs.NewError(errs.ErrAuthenticationFailed))
			return
		}

		claims, err := deps.Verifier.Verify(token)
		if err != nil {
			logx.Warn("WebSocket connection rejected: Invalid credential", "error", err.Error())
			resp.RespondError(w, r, errs.NewError(errs.ErrAuthenticationFailed))
			return
		}

		identity := gateway.Identity{
			UserID:      claims.UserID,
			DisplayName: claims.DisplayName,
			Email:       claims.Email,
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := deps.Gateway.Connect(conn, identity)

		go client.WritePump()

		logx.Info("WebSocket connection established",
			"connection_id", client.ID,
			"user_id", identity.UserID,
		)

		client.ReadPump()
	}
}
