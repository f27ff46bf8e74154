package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"

	"github.com/ghuser/farmstand/pkg/httpx"
	"github.com/ghuser/farmstand/pkg/logger"
)

const (
	sessionName      = "farmstand_session"
	sessionUserIDKey = "user_id"
	maxUserIDLength  = 128
)

// ErrInvalidUserID is returned for a user id that is empty, longer than 128
// bytes, or contains whitespace or a slash.
var ErrInvalidUserID = errors.New("invalid user id")

// ValidateUserID checks that id can key a cart.
func ValidateUserID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty", ErrInvalidUserID)
	case len(id) > maxUserIDLength:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidUserID, maxUserIDLength)
	case strings.ContainsAny(id, " \t\r\n/"):
		return fmt.Errorf("%w: contains whitespace or '/'", ErrInvalidUserID)
	}
	return nil
}

// RequireAuth is a chi middleware that enforces authentication via session cookies.
// It reads the session cookie, extracts the user id, and injects it into the request context.
// Returns 401 Unauthorized if the session is missing, invalid, or lacks a usable user_id,
// and 503 if the session backend cannot be reached.
//
// After this middleware, handlers can safely call auth.UserIDFromCtx(r.Context()).
func RequireAuth(store sessions.Store, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := store.Get(r, sessionName)
			if errors.Is(err, ErrSessionBackend) {
				log.ErrorContext(r.Context(), "session backend unavailable", "error", err)
				httpx.JSONError(w, http.StatusServiceUnavailable, "session store unavailable")
				return
			}
			if err != nil {
				log.WarnContext(r.Context(), "invalid session cookie", "error", err)
				httpx.JSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			userID, ok := session.Values[sessionUserIDKey].(string)
			if !ok || userID == "" {
				log.DebugContext(r.Context(), "session missing user_id")
				httpx.JSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			if err := ValidateUserID(userID); err != nil {
				log.WarnContext(r.Context(), "invalid user_id in session", "error", err)
				httpx.JSONError(w, http.StatusUnauthorized, "invalid session data")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
