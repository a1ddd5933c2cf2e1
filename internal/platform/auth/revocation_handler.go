package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type revokeSessionRequest struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// RegisterRevocationRoutes mounts logout for every user and session
// management for administrators.
func RegisterRevocationRoutes(api *echo.Group, store *SessionRevocations, logger zerolog.Logger) {
	log := logger.With().Str("component", "sessions").Logger()

	api.POST("/auth/logout", handleLogout(store, log))

	admin := api.Group("/admin/sessions", RequireRole(RoleAdmin))
	admin.GET("", handleListRevocations(store))
	admin.POST("/revoke", handleRevokeSession(store, log))
	admin.POST("/revoke-user/:userId", handleRevokeUser(store, log))
}

func handleLogout(store *SessionRevocations, log zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		u, err := CurrentUser(c)
		if err != nil {
			return err
		}
		if u.SessionID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "token carries no session id")
		}
		store.RevokeSession(u.SessionID, u.ID)
		log.Info().Str("user_id", u.ID).Str("session_id", u.SessionID).Msg("session logged out")
		return c.NoContent(http.StatusNoContent)
	}
}

func handleRevokeSession(store *SessionRevocations, log zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req revokeSessionRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		if req.SessionID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "sessionId is required")
		}
		store.RevokeSession(req.SessionID, req.UserID)
		log.Warn().Str("session_id", req.SessionID).Str("user_id", req.UserID).Msg("session revoked")
		return c.NoContent(http.StatusNoContent)
	}
}

func handleRevokeUser(store *SessionRevocations, log zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.Param("userId")
		if userID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "userId is required")
		}
		store.RevokeUser(userID)
		log.Warn().Str("user_id", userID).Msg("all sessions revoked")
		return c.NoContent(http.StatusNoContent)
	}
}

func handleListRevocations(store *SessionRevocations) echo.HandlerFunc {
	return func(c echo.Context) error {
		entries := store.Entries()
		return c.JSON(http.StatusOK, map[string]any{"revocations": entries, "total": len(entries)})
	}
}
