package auth

import (
	"errors"
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/ghuser/farmstand/pkg/httpx"
	"github.com/ghuser/farmstand/pkg/logger"
	"github.com/ghuser/farmstand/pkg/validator"
)

// DevLoginRequest is the body of POST /api/session.
type DevLoginRequest struct {
	UserID string `json:"user_id" validate:"required,max=128" example:"user-42"`
} // @name DevLoginRequest

// DevLoginHandler starts a session for any user id the caller names. There is
// no identity provider in front of the shop, so cmd/api mounts it only when
// ENVIRONMENT=development.
//
//	@Summary		Start a development session
//	@Description	Starts a session for the given user id. Mounted only when ENVIRONMENT=development.
//	@ID				startSession
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			request	body	DevLoginRequest	true	"User to sign in as"
//	@Success		204
//	@Failure		422	{object}	map[string]string
//	@Failure		503	{object}	map[string]string
//	@Router			/session [post]
func DevLoginHandler(store sessions.Store, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := validator.ValidateRequest[DevLoginRequest](w, r)
		if !ok {
			return
		}
		if err := StartSession(store, w, r, req.UserID); err != nil {
			writeSessionError(w, r, log, err)
			return
		}
		log.InfoContext(r.Context(), "dev session started", "user_id", req.UserID)
		httpx.NoContent(w)
	}
}

// LogoutHandler ends the caller's session.
//
//	@Summary		End session
//	@Description	Deletes the caller's session and expires its cookie.
//	@ID				endSession
//	@Tags			session
//	@Produce		json
//	@Security		SessionCookie
//	@Success		204
//	@Failure		503	{object}	map[string]string
//	@Router			/session [delete]
func LogoutHandler(store sessions.Store, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := EndSession(store, w, r); err != nil {
			writeSessionError(w, r, log, err)
			return
		}
		httpx.NoContent(w)
	}
}

func writeSessionError(w http.ResponseWriter, r *http.Request, log logger.Logger, err error) {
	switch {
	case errors.Is(err, ErrInvalidUserID):
		httpx.JSONError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrSessionBackend):
		log.ErrorContext(r.Context(), "session backend unavailable", "error", err)
		httpx.JSONError(w, http.StatusServiceUnavailable, "session store unavailable")
	default:
		log.ErrorContext(r.Context(), "session error", "error", err)
		httpx.JSONError(w, http.StatusInternalServerError, "internal server error")
	}
}
