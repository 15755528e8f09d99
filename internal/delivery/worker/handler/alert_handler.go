package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"gatekeeper/config"
	deliverycontext "gatekeeper/internal/delivery/context"
	"gatekeeper/internal/domain/constants"
	"gatekeeper/internal/domain/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"google.golang.org/api/idtoken"
)

// PubSubMessage represents the structure of a Pub/Sub push message
type PubSubMessage struct {
	Message struct {
		Data        string            `json:"data"`
		Attributes  map[string]string `json:"attributes,omitempty"`
		MessageID   string            `json:"messageId"`
		PublishTime string            `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// retryableError wraps an error to indicate it should trigger a Pub/Sub retry
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.err)
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// newRetryableError wraps an error as retryable
func newRetryableError(err error) error {
	return &retryableError{err: err}
}

// isRetryableError checks if an error is retryable
func isRetryableError(err error) bool {
	var re *retryableError

	return errors.As(err, &re)
}

// AlertHandler handles Pub/Sub push messages carrying security events
type AlertHandler struct {
	verifyPushAuth  bool
	logger          *slog.Logger
	notificationSvc service.NotificationService
	alertTokens     []string
}

// AlertHandlerParams holds dependencies for the AlertHandler
type AlertHandlerParams struct {
	fx.In

	Config          *config.Config
	Logger          *slog.Logger
	NotificationSvc service.NotificationService `optional:"true"`
}

// NewAlertHandler creates a new Pub/Sub security alert handler
func NewAlertHandler(params AlertHandlerParams) *AlertHandler {
	// Verify push auth in non-develop environments for the Google provider
	verifyPushAuth := params.Config.PubSub != nil &&
		params.Config.PubSub.Provider == constants.PubSubProviderGoogle &&
		params.Config.Env.Env != constants.EnvDevelop

	var alertTokens []string
	if params.Config.Alerts != nil {
		alertTokens = params.Config.Alerts.FCMTokens
	}

	return &AlertHandler{
		verifyPushAuth:  verifyPushAuth,
		logger:          params.Logger,
		notificationSvc: params.NotificationSvc,
		alertTokens:     alertTokens,
	}
}

// HandlePush handles incoming Pub/Sub push messages
func (h *AlertHandler) HandlePush(c echo.Context) error {
	ctx := c.Request().Context()

	// Verify Pub/Sub token in production for Google provider
	if h.verifyPushAuth {
		if err := verifyPubSubToken(c.Request()); err != nil {
			h.logger.Warn("[Worker] Invalid Pub/Sub token", slog.Any("error", err))

			return c.NoContent(http.StatusUnauthorized)
		}
	}

	// Parse Pub/Sub message
	var pushMsg PubSubMessage
	if err := c.Bind(&pushMsg); err != nil {
		h.logger.Error("[Worker] Failed to parse push message", slog.Any("error", err))

		return c.NoContent(http.StatusBadRequest)
	}

	// Decode base64 message data
	data, err := base64.StdEncoding.DecodeString(pushMsg.Message.Data)
	if err != nil {
		h.logger.Error("[Worker] Failed to decode message data", slog.Any("error", err))

		return c.NoContent(http.StatusBadRequest)
	}

	// Parse security event
	var event service.SecurityEvent
	if err := json.Unmarshal(data, &event); err != nil {
		h.logger.Error("[Worker] Failed to parse security event", slog.Any("error", err))

		return c.NoContent(http.StatusBadRequest)
	}

	// Extract request_id for distributed tracing
	// Priority: message attributes > event field > existing context
	requestID := h.extractRequestID(ctx, &pushMsg, &event)

	// Create request-scoped logger with request_id
	reqLogger := h.logger.With(slog.String("request_id", requestID))

	// Update context with request_id and logger
	ctx = deliverycontext.WithRequestID(ctx, requestID)
	ctx = deliverycontext.WithLogger(ctx, reqLogger)

	reqLogger.Warn("[Worker] Security event received",
		slog.String("event_type", event.EventType),
		slog.String("account_id", event.AccountID),
		slog.String("session_id", event.SessionID),
		slog.String("ip_address", event.IPAddress),
		slog.Time("occurred_at", event.OccurredAt),
		slog.String("detail", event.Detail),
	)

	// Dispatch the alert
	if err := h.processEvent(ctx, &event); err != nil {
		reqLogger.Error("[Worker] Failed to process security event",
			slog.String("event_type", event.EventType),
			slog.Any("error", err),
			slog.Bool("retryable", isRetryableError(err)),
		)
		// Return 503 for retryable errors to trigger Pub/Sub retry
		// Return 200 for non-retryable errors to prevent infinite retries
		if isRetryableError(err) {
			return c.NoContent(http.StatusServiceUnavailable)
		}

		return c.NoContent(http.StatusOK)
	}

	return c.NoContent(http.StatusOK)
}

// extractRequestID extracts request_id from message attributes, event, or generates a new one
func (h *AlertHandler) extractRequestID(ctx context.Context, pushMsg *PubSubMessage, event *service.SecurityEvent) string {
	// 1. Try message attributes (from Pub/Sub)
	if requestID, ok := pushMsg.Message.Attributes["request_id"]; ok && requestID != "" {
		return requestID
	}

	// 2. Try event field (from JSON payload)
	if event.RequestID != "" {
		return event.RequestID
	}

	// 3. Try existing context (from RequestIDMiddleware via X-Request-Id header)
	if requestID := deliverycontext.GetRequestIDFromContext(ctx); requestID != "" {
		return requestID
	}

	// 4. Generate new UUID as fallback
	return uuid.New().String()
}

// processEvent fans the security event out to the operator alert channel.
// Events with no configured delivery target are acknowledged after logging.
func (h *AlertHandler) processEvent(ctx context.Context, event *service.SecurityEvent) error {
	if h.notificationSvc == nil || len(h.alertTokens) == 0 {
		return nil
	}

	title, body := alertContent(event)
	data := map[string]string{
		"event_type": event.EventType,
		"account_id": event.AccountID,
	}
	if event.SessionID != "" {
		data["session_id"] = event.SessionID
	}

	successCount, failureCount, invalidTokens, err := h.notificationSvc.SendBatchNotification(ctx, h.alertTokens, title, body, data)
	if err != nil {
		// Transport-level failures are worth retrying; Pub/Sub will redeliver.
		return newRetryableError(errors.Wrap(err, "failed to send alert notification"))
	}

	if len(invalidTokens) > 0 {
		h.logger.Warn("[Worker] Some alert tokens are invalid",
			slog.Int("invalid_count", len(invalidTokens)),
		)
	}

	h.logger.Info("[Worker] Alert dispatched",
		slog.String("event_type", event.EventType),
		slog.Int("success_count", successCount),
		slog.Int("failure_count", failureCount),
	)

	return nil
}

// alertContent builds the human-facing title and body for an alert push.
func alertContent(event *service.SecurityEvent) (string, string) {
	switch event.EventType {
	case service.EventTokenReuse:
		return "Refresh token reuse detected", fmt.Sprintf("Account %s had a revoked refresh token replayed. All sessions were terminated.", event.AccountID)
	case service.EventAccountLocked:
		return "Account locked", fmt.Sprintf("Account %s was locked after repeated failed logins. %s", event.AccountID, event.Detail)
	case service.EventPasswordChanged:
		return "Password changed", fmt.Sprintf("Account %s changed its password. All other sessions were ended.", event.AccountID)
	case service.EventForcedLogout:
		return "Forced logout", fmt.Sprintf("Account %s was logged out of all devices. %s", event.AccountID, event.Detail)
	default:
		return "Security event", fmt.Sprintf("Account %s triggered event %s.", event.AccountID, event.EventType)
	}
}

// verifyPubSubToken verifies the JWT token from Google Pub/Sub push requests
func verifyPubSubToken(req *http.Request) error {
	// Get the Authorization header
	authHeader := req.Header.Get("Authorization")
	if authHeader == "" {
		return errors.New("missing authorization header")
	}

	// Extract Bearer token
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return errors.New("invalid authorization header format")
	}
	token := strings.TrimPrefix(authHeader, bearerPrefix)

	// Construct the expected audience (the push endpoint URL)
	scheme := "https"
	if req.TLS == nil {
		scheme = "http" // For local development
	}
	audience := fmt.Sprintf("%s://%s%s", scheme, req.Host, req.URL.Path)

	// Validate the token using Google's ID token validator
	ctx := req.Context()
	payload, err := idtoken.Validate(ctx, token, audience)
	if err != nil {
		return errors.Wrap(err, "failed to validate token")
	}

	// The issuer should be accounts.google.com
	if payload.Issuer != "accounts.google.com" && payload.Issuer != "https://accounts.google.com" {
		return errors.Errorf("invalid issuer: %s", payload.Issuer)
	}

	// Verify email is verified (if email claim exists)
	if emailVerified, ok := payload.Claims["email_verified"].(bool); ok && !emailVerified {
		return errors.New("email not verified")
	}

	return nil
}
