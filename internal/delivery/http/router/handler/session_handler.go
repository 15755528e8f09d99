package handler

import (
	"log/slog"
	"net/http"

	"gatekeeper/internal/delivery/http/middleware"
	"gatekeeper/internal/delivery/http/response"
	"gatekeeper/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// SessionHandler exposes the per-device session registry.
type SessionHandler struct {
	uc     usecase.SessionUsecase
	logger *slog.Logger
}

// NewSessionHandler is the constructor for SessionHandler, injected by Fx.
func NewSessionHandler(uc usecase.SessionUsecase, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{uc: uc, logger: logger}
}

// List returns the caller's active sessions.
func (h *SessionHandler) List(c echo.Context) error {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		return response.Unauthorized(c, "INVALID_TOKEN", "Account missing from token")
	}
	sessionID, _ := middleware.GetSessionID(c)

	sessions, err := h.uc.GetActiveSessions(c.Request().Context(), accountID, sessionID)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, sessions, "Active sessions retrieved")
}

// Revoke ends one of the caller's other sessions.
func (h *SessionHandler) Revoke(c echo.Context) error {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		return response.Unauthorized(c, "INVALID_TOKEN", "Account missing from token")
	}
	currentSessionID, _ := middleware.GetSessionID(c)

	targetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest(c, "INVALID_INPUT", "Invalid session id")
	}

	if err := h.uc.RevokeSession(c.Request().Context(), accountID, currentSessionID, targetID); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Session revoked")
}

// RevokeOthers ends every session except the caller's.
func (h *SessionHandler) RevokeOthers(c echo.Context) error {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		return response.Unauthorized(c, "INVALID_TOKEN", "Account missing from token")
	}
	currentSessionID, _ := middleware.GetSessionID(c)

	if err := h.uc.RevokeAllOtherSessions(c.Request().Context(), accountID, currentSessionID); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Other sessions revoked")
}
