/*
Package handler provides the HTTP handler function for WebSocket connection upgrading.

This file contains the HandleWebSocket function, which is responsible for rate limiting,
resolving the caller's (optional) identity, upgrading the HTTP connection to WebSocket,
and starting the session lifecycle.
*/
package handler

import (
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"gravechat/internal/app/relay"
	"gravechat/internal/app/user"
	"gravechat/internal/pkg/auth/jwt"
	"gravechat/internal/pkg/errs"
	"gravechat/internal/pkg/limiter"
	"gravechat/internal/pkg/logx"
	"gravechat/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
//
// Identity is optional here: browsers cannot set an Authorization header on a
// WebSocket upgrade, so the identity token rides a query parameter instead.
// An absent or invalid token simply yields an anonymous session; the relay is
// identity-agnostic and the sending restriction for anonymous visitors lives
// in the client UI.
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

		var currentUser user.User
		if tokenString := r.URL.Query().Get("token"); tokenString != "" {
			payload, err := jwt.ParseToken(tokenString, deps.Config.JWTSecret)
			if err != nil {
				logx.Warn("Invalid identity token on WebSocket upgrade, treating as anonymous", "error", err)
			} else {
				currentUser = user.User{
					ID:       payload.ID,
					Nickname: payload.Nickname,
					UserType: payload.UserType,
				}
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		session := relay.NewSession(deps.Hub, conn, currentUser)

		go session.WritePump()

		deps.Hub.Register(session)

		logx.Info("WebSocket session established", "session_id", session.ID(), "user_id", currentUser.ID)

		session.ReadPump()
	}
}
