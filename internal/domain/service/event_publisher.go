package service

import (
	"context"
	"time"
)

// Security event types published for asynchronous alerting.
const (
	EventTokenReuse      = "token_reuse_detected"
	EventAccountLocked   = "account_locked"
	EventPasswordChanged = "password_changed"
	EventForcedLogout    = "forced_logout"
)

// SecurityEvent represents a security-relevant occurrence to be processed
// by the alert worker.
type SecurityEvent struct {
	RequestID  string    `json:"request_id,omitempty"` // For distributed tracing
	EventType  string    `json:"event_type"`
	AccountID  string    `json:"account_id"`
	Email      string    `json:"email,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	DeviceInfo string    `json:"device_info,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Detail     string    `json:"detail,omitempty"`
}

// EventPublisher defines the interface for publishing events to a message queue
type EventPublisher interface {
	// PublishSecurityEvent publishes a security event for async processing
	PublishSecurityEvent(ctx context.Context, event *SecurityEvent) error

	// Close releases any resources held by the publisher
	Close() error
}
