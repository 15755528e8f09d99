package middleware

import (
	"log/slog"
	"strings"

	deliverycontext "gatekeeper/internal/delivery/context"
	"gatekeeper/internal/delivery/http/response"
	"gatekeeper/internal/domain/service"
	"gatekeeper/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

// Context keys set by Authenticate for downstream handlers.
const (
	ContextKeyAccountID = "accountID"
	ContextKeySessionID = "sessionID"
	ContextKeyRole      = "role"
)

// AuthMiddleware provides middleware for JWT authentication and authorization.
type AuthMiddleware struct {
	tokenSvc   service.TokenService
	sessionSvc usecase.SessionUsecase
	logger     *slog.Logger
}

// AuthMiddlewareParams holds dependencies for AuthMiddleware, injected by Fx.
type AuthMiddlewareParams struct {
	fx.In

	TokenSvc   service.TokenService
	SessionSvc usecase.SessionUsecase
	Logger     *slog.Logger
}

// NewAuthMiddleware is the constructor for AuthMiddleware.
func NewAuthMiddleware(params AuthMiddlewareParams) *AuthMiddleware {
	return &AuthMiddleware{
		tokenSvc:   params.TokenSvc,
		sessionSvc: params.SessionSvc,
		logger:     params.Logger,
	}
}

// Authenticate validates the access token, exposes its claims on the
// context and records activity on the backing session.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "MISSING_TOKEN", "Authorization header is missing")
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return response.Unauthorized(c, "INVALID_TOKEN", "Invalid token format, must be Bearer token")
		}

		claims, err := m.tokenSvc.ValidateToken(tokenString, service.TokenFamilyAccess)
		if err != nil {
			return response.Unauthorized(c, "INVALID_TOKEN", "Invalid or expired token")
		}

		c.Set(ContextKeyAccountID, claims.AccountID)
		c.Set(ContextKeySessionID, claims.SessionID)
		c.Set(ContextKeyRole, claims.Role)

		// Activity tracking must not block the request itself.
		if err := m.sessionSvc.TouchSession(c.Request().Context(), claims.SessionID); err != nil {
			logger := deliverycontext.GetLoggerOrDefault(c.Request().Context(), m.logger)
			logger.Warn("failed to touch session",
				slog.String("session_id", claims.SessionID.String()),
				slog.Any("error", err))
		}

		return next(c)
	}
}

// RequireRole is a middleware factory that checks the authenticated role.
// It must be used AFTER the Authenticate middleware.
func (m *AuthMiddleware) RequireRole(requiredRole string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(ContextKeyRole).(string)
			if !ok {
				return response.Forbidden(c, "ROLE_MISSING", "Permission denied: role information missing")
			}
			if role != requiredRole {
				return response.Forbidden(c, "ROLE_REQUIRED", "Permission denied: require '"+requiredRole+"' role")
			}

			return next(c)
		}
	}
}

// GetAccountID returns the authenticated account id from the context.
func GetAccountID(c echo.Context) (uuid.UUID, bool) {
	id, ok := c.Get(ContextKeyAccountID).(uuid.UUID)

	return id, ok
}

// GetSessionID returns the authenticated session id from the context.
func GetSessionID(c echo.Context) (uuid.UUID, bool) {
	id, ok := c.Get(ContextKeySessionID).(uuid.UUID)

	return id, ok
}
