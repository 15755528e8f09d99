// Package router contains routing and server setup for the HTTP delivery.
package router

import (
	"gatekeeper/internal/delivery/http/middleware"
	"gatekeeper/internal/delivery/http/router/handler"
	"gatekeeper/internal/domain/entity"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

type RouterParams struct {
	fx.In

	AuthHandler    *handler.AuthHandler
	SessionHandler *handler.SessionHandler
	AdminHandler   *handler.AdminHandler
	AuthMiddleware *middleware.AuthMiddleware
}

// router holds all the handlers that need to be registered.
type router struct {
	authHandler    *handler.AuthHandler
	sessionHandler *handler.SessionHandler
	adminHandler   *handler.AdminHandler
	authMiddleware *middleware.AuthMiddleware
}

// NewRouter is the constructor for the Router.
// Fx will inject the required handlers here.
func NewRouter(params RouterParams) *router {
	return &router{
		authHandler:    params.AuthHandler,
		sessionHandler: params.SessionHandler,
		adminHandler:   params.AdminHandler,
		authMiddleware: params.AuthMiddleware,
	}
}

// RegisterRoutes sets up all the API routes for the application.
func (r *router) RegisterRoutes(e *echo.Echo) {
	// Health check endpoint
	e.GET("/health", handler.HealthCheck)

	// Public auth routes
	authGroup := e.Group("/auth")
	{
		authGroup.POST("/signup", r.authHandler.Signup)
		authGroup.POST("/verify-email", r.authHandler.VerifyEmail)
		authGroup.POST("/forgot-password", r.authHandler.ForgotPassword)
		authGroup.POST("/reset-password", r.authHandler.ResetPassword)
		authGroup.POST("/login", r.authHandler.Login)
		authGroup.POST("/step-up", r.authHandler.StepUp)
		authGroup.POST("/refresh", r.authHandler.Refresh)
		authGroup.POST("/google", r.authHandler.GoogleSignIn)
	}

	// Account routes that require a valid access token
	accountGroup := e.Group("/account")
	accountGroup.Use(r.authMiddleware.Authenticate)
	{
		accountGroup.GET("/status", r.authHandler.Status)
		accountGroup.POST("/logout", r.authHandler.Logout)
		accountGroup.POST("/logout-all", r.authHandler.LogoutAll)
		accountGroup.PUT("/password", r.authHandler.ChangePassword)
		accountGroup.POST("/totp/enroll", r.authHandler.EnrollTOTP)
		accountGroup.POST("/totp/confirm", r.authHandler.ConfirmTOTP)
	}

	// Per-device session registry
	sessionGroup := e.Group("/sessions")
	sessionGroup.Use(r.authMiddleware.Authenticate)
	{
		sessionGroup.GET("", r.sessionHandler.List)
		sessionGroup.DELETE("/others", r.sessionHandler.RevokeOthers)
		sessionGroup.DELETE("/:id", r.sessionHandler.Revoke)
	}

	// Operator routes, admin role only
	adminGroup := e.Group("/admin")
	adminGroup.Use(r.authMiddleware.Authenticate)
	adminGroup.Use(r.authMiddleware.RequireRole(entity.RoleAdmin.String()))
	{
		adminGroup.GET("/accounts/:id/sessions", r.adminHandler.ListAccountSessions)
		adminGroup.POST("/accounts/:id/force-logout", r.adminHandler.ForceLogoutAccount)
	}
}
