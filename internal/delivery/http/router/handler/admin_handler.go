package handler

import (
	"log/slog"
	"net/http"

	"gatekeeper/internal/delivery/http/response"
	"gatekeeper/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// AdminHandler exposes operator actions over other accounts.
type AdminHandler struct {
	authUC    usecase.AuthUsecase
	sessionUC usecase.SessionUsecase
	logger    *slog.Logger
}

// NewAdminHandler is the constructor for AdminHandler, injected by Fx.
func NewAdminHandler(authUC usecase.AuthUsecase, sessionUC usecase.SessionUsecase, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{authUC: authUC, sessionUC: sessionUC, logger: logger}
}

// ListAccountSessions returns the active sessions of any account.
func (h *AdminHandler) ListAccountSessions(c echo.Context) error {
	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest(c, "INVALID_INPUT", "Invalid account id")
	}

	sessions, err := h.sessionUC.GetActiveSessions(c.Request().Context(), accountID, uuid.Nil)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, sessions, "Account sessions retrieved")
}

// ForceLogoutAccount ends every session and revokes every token for an
// account, used when operators respond to a reported compromise.
func (h *AdminHandler) ForceLogoutAccount(c echo.Context) error {
	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest(c, "INVALID_INPUT", "Invalid account id")
	}

	if err := h.authUC.LogoutAllDevices(c.Request().Context(), accountID); err != nil {
		return errors.WithStack(err)
	}

	h.logger.Info("operator forced logout", slog.String("account_id", accountID.String()))

	return response.Success(c, http.StatusOK, nil, "Account logged out everywhere")
}
