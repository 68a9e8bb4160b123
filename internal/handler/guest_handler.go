/*
Package handler provides the HTTP handler function for guest identity issuance.
*/
package handler

import (
	"net/http"

	"gravechat/internal/app/user"
	"gravechat/internal/pkg/auth/jwt"
	"gravechat/internal/pkg/errs"
	"gravechat/internal/pkg/logx"
	"gravechat/internal/pkg/randx"
	"gravechat/internal/pkg/resp"
)

// HandleGuestIdentity issues a fresh guest identity: a stable generated user
// id, a random display name, and a signed identity token carrying both.
// A caller that already holds a valid identity gets the same identity back
// in a renewed token instead of a new guest.
func HandleGuestIdentity(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)

		if payload == nil {
			guestID, err := randx.GuestID()
			if err != nil {
				logx.Error(err, "Failed to generate guest id")
				resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
				return
			}

			nickname, err := randx.UserNickname()
			if err != nil {
				logx.Error(err, "Failed to generate guest nickname")
				resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
				return
			}

			payload = &jwt.Payload{
				ID:       guestID,
				Nickname: nickname,
				UserType: "guest",
			}
		}

		tokenString, err := jwt.GenerateToken(payload, deps.Config.JWTSecret, jwt.IdentityExpiration)
		if err != nil {
			logx.Error(err, "Failed to sign identity token")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"token": tokenString,
			"user": user.User{
				ID:       payload.ID,
				Nickname: payload.Nickname,
				UserType: payload.UserType,
			},
		})
	}
}
