// Package handler contains the HTTP handlers for the application.
package handler

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"gatekeeper/internal/delivery/http/middleware"
	"gatekeeper/internal/delivery/http/response"
	"gatekeeper/internal/domain/entity"
	"gatekeeper/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// AuthHandler holds dependencies for authentication handlers.
type AuthHandler struct {
	uc     usecase.AuthUsecase
	logger *slog.Logger
}

// NewAuthHandler is the constructor for AuthHandler, injected by Fx.
func NewAuthHandler(uc usecase.AuthUsecase, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{uc: uc, logger: logger}
}

// accountResponse is the sanitized account view returned to clients.
// Credential material never leaves the service.
type accountResponse struct {
	ID                uuid.UUID              `json:"id"`
	Email             string                 `json:"email"`
	FirstName         string                 `json:"first_name"`
	LastName          string                 `json:"last_name"`
	Role              entity.Role            `json:"role"`
	Status            entity.AccountStatus   `json:"status"`
	IsEmailVerified   bool                   `json:"is_email_verified"`
	IsProfileComplete bool                   `json:"is_profile_complete"`
	TwoFactorEnabled  bool                   `json:"two_factor_enabled"`
	TwoFactorMethod   entity.TwoFactorMethod `json:"two_factor_method"`
	KYCStatus         entity.KYCStatus       `json:"kyc_status"`
	CreatedAt         time.Time              `json:"created_at"`
}

func toAccountResponse(a *entity.Account) *accountResponse {
	return &accountResponse{
		ID:                a.ID,
		Email:             a.Email,
		FirstName:         a.FirstName,
		LastName:          a.LastName,
		Role:              a.Role,
		Status:            a.Status,
		IsEmailVerified:   a.IsEmailVerified,
		IsProfileComplete: a.IsProfileComplete,
		TwoFactorEnabled:  a.TwoFactorEnabled,
		TwoFactorMethod:   a.TwoFactorMethod,
		KYCStatus:         a.KYCStatus,
		CreatedAt:         a.CreatedAt,
	}
}

type loginResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	SessionID    uuid.UUID        `json:"session_id"`
	Redirect     string           `json:"redirect"`
	Account      *accountResponse `json:"account"`
}

func toLoginResponse(out *usecase.LoginOutput) *loginResponse {
	return &loginResponse{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		SessionID:    out.SessionID,
		Redirect:     out.Redirect,
		Account:      toAccountResponse(out.Account),
	}
}

type statusResponse struct {
	Redirect           string `json:"redirect"`
	KYCRejectionReason string `json:"kyc_rejection_reason,omitempty"`
}

type authenticateResponse struct {
	Requires2FA     bool           `json:"requires_2fa"`
	TwoFactorMethod string         `json:"two_factor_method,omitempty"`
	Login           *loginResponse `json:"login,omitempty"`
}

func toAuthenticateResponse(out *usecase.AuthenticateOutput) *authenticateResponse {
	resp := &authenticateResponse{Requires2FA: out.Requires2FA}
	if out.Requires2FA {
		resp.TwoFactorMethod = string(out.TwoFactorMethod)

		return resp
	}
	resp.Login = toLoginResponse(out.Login)

	return resp
}

type signupRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name"`
	Role      string `json:"role" validate:"required,oneof=student teacher"`
}

// Signup handles new account registration.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid signup input")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	output, err := h.uc.Signup(c.Request().Context(), usecase.SignupInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      entity.Role(req.Role),
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusCreated, toAccountResponse(output.Account), "Account registered, verification code sent")
}

type verifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6"`
}

// VerifyEmail consumes the emailed verification code.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req verifyEmailRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid verification input")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.uc.VerifyEmail(c.Request().Context(), usecase.VerifyEmailInput{
		Email: req.Email,
		Code:  req.Code,
	}); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Email verified")
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ForgotPassword issues a password reset code. The response is the same
// whether or not the email is registered.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid reset request")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.uc.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "If that email is registered, a reset code has been sent")
}

type resetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,len=6"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// ResetPassword installs a new password proved by the emailed reset code.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid reset input")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.uc.ResetPassword(c.Request().Context(), usecase.ResetPasswordInput{
		Email:       req.Email,
		Code:        req.Code,
		NewPassword: req.NewPassword,
	}); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Password reset")
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login handles primary authentication.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid login input")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	output, err := h.uc.PrimaryAuthenticate(c.Request().Context(), usecase.AuthenticateInput{
		Email:      req.Email,
		Password:   req.Password,
		DeviceInfo: c.Request().UserAgent(),
		IPAddress:  c.RealIP(),
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, toAuthenticateResponse(output), "Login successful")
}

type stepUpRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6"`
}

// StepUp completes a pending two-factor login.
func (h *AuthHandler) StepUp(c echo.Context) error {
	var req stepUpRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid step-up input")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	output, err := h.uc.CompleteStepUp(c.Request().Context(), usecase.StepUpInput{
		Email:      req.Email,
		Code:       req.Code,
		DeviceInfo: c.Request().UserAgent(),
		IPAddress:  c.RealIP(),
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, toLoginResponse(output), "Login successful")
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Refresh rotates a refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid refresh input")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	output, err := h.uc.Refresh(c.Request().Context(), usecase.RefreshInput{
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, output, "Token refreshed")
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Logout ends the caller's session.
func (h *AuthHandler) Logout(c echo.Context) error {
	sessionID, ok := middleware.GetSessionID(c)
	if !ok {
		return response.Unauthorized(c, "INVALID_TOKEN", "Session missing from token")
	}

	var req logoutRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid logout input")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.uc.Logout(c.Request().Context(), usecase.LogoutInput{
		RefreshToken: req.RefreshToken,
		SessionID:    sessionID,
	}); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Logged out")
}

// LogoutAll ends every session the account holds.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		return response.Unauthorized(c, "INVALID_TOKEN", "Account missing from token")
	}

	if err := h.uc.LogoutAllDevices(c.Request().Context(), accountID); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "All devices logged out")
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// ChangePassword replaces the caller's password.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		return response.Unauthorized(c, "INVALID_TOKEN", "Account missing from token")
	}

	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid password input")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.uc.ChangePassword(c.Request().Context(), usecase.ChangePasswordInput{
		AccountID:   accountID,
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	}); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Password changed, please sign in again")
}

type googleSignInRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

// GoogleSignIn handles the Google ID token flow.
func (h *AuthHandler) GoogleSignIn(c echo.Context) error {
	var req googleSignInRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid Google sign-in input")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	output, err := h.uc.GoogleSignIn(c.Request().Context(), usecase.GoogleSignInInput{
		IDToken:    req.IDToken,
		DeviceInfo: c.Request().UserAgent(),
		IPAddress:  c.RealIP(),
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, toAuthenticateResponse(output), "Google sign-in successful")
}

type enrollTOTPResponse struct {
	Secret     string `json:"secret"`
	OtpauthURI string `json:"otpauth_uri"`
	QRCodePNG  string `json:"qr_code_png"` // base64-encoded PNG
}

// EnrollTOTP starts authenticator app enrollment.
func (h *AuthHandler) EnrollTOTP(c echo.Context) error {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		return response.Unauthorized(c, "INVALID_TOKEN", "Account missing from token")
	}

	output, err := h.uc.EnrollTOTP(c.Request().Context(), accountID)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, enrollTOTPResponse{
		Secret:     output.Secret,
		OtpauthURI: output.OtpauthURI,
		QRCodePNG:  base64.StdEncoding.EncodeToString(output.QRCodePNG),
	}, "Scan the QR code with an authenticator app, then confirm")
}

type confirmTOTPRequest struct {
	Code string `json:"code" validate:"required,len=6"`
}

// ConfirmTOTP proves enrollment and switches the second factor on.
func (h *AuthHandler) ConfirmTOTP(c echo.Context) error {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		return response.Unauthorized(c, "INVALID_TOKEN", "Account missing from token")
	}

	var req confirmTOTPRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid confirmation input")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.uc.ConfirmTOTP(c.Request().Context(), accountID, req.Code); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Authenticator enabled")
}

// Status returns the routing destination for the caller's account state.
func (h *AuthHandler) Status(c echo.Context) error {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		return response.Unauthorized(c, "INVALID_TOKEN", "Account missing from token")
	}

	out, err := h.uc.CheckStatus(c.Request().Context(), accountID)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, statusResponse{
		Redirect:           out.Redirect,
		KYCRejectionReason: out.KYCRejectionReason,
	}, "Status resolved")
}

// HealthCheck is a simple handler to check if the service is up.
func HealthCheck(c echo.Context) error {
	return response.Success(c, http.StatusOK, map[string]string{"status": "ok"}, "Service is healthy")
}
