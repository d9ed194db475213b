package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type enumerates the security events the flows emit. Exactly one event per
// operation outcome.
type Type string

const (
	TypeSessionStarted  Type = "SESSION_STARTED"
	TypeOTPIssued       Type = "OTP_ISSUED"
	TypeOTPResent       Type = "OTP_RESENT"
	TypeResendRejected  Type = "RESEND_REJECTED"
	TypeOTPVerified     Type = "OTP_VERIFIED"
	TypeOTPRejected     Type = "OTP_REJECTED"
	TypeSessionLocked   Type = "SESSION_LOCKED"
	TypeSessionExpired  Type = "SESSION_EXPIRED"
	TypeLoginSucceeded  Type = "LOGIN_SUCCEEDED"
	TypeLoginFailed     Type = "LOGIN_FAILED"
	TypeLoginLocked     Type = "LOGIN_LOCKED"
	TypeFederatedStepUp Type = "FEDERATED_STEP_UP"
	TypeDeliveryFailed  Type = "DELIVERY_FAILED"
	TypeTokensIssued    Type = "TOKENS_ISSUED"
)

// SecurityEvent is the audit record for one operation outcome. Destinations
// are stored masked; codes and credentials never appear in any field.
type SecurityEvent struct {
	ID                string            `json:"id"`
	Type              Type              `json:"type"`
	SessionID         string            `json:"session_id,omitempty"`
	SubjectID         string            `json:"subject_id,omitempty"`
	Channel           string            `json:"channel,omitempty"`
	MaskedDestination string            `json:"masked_destination,omitempty"`
	Success           bool              `json:"success"`
	Reason            string            `json:"reason,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	At                time.Time         `json:"at"`
}

// New builds an event with identity and timestamp filled in.
func New(eventType Type) SecurityEvent {
	return SecurityEvent{
		ID:   uuid.New().String(),
		Type: eventType,
		At:   time.Now().UTC(),
	}
}

// Sink receives emitted security events. Sinks must tolerate being called
// from the emitter's background goroutine.
type Sink interface {
	Write(ctx context.Context, event SecurityEvent) error
}

// NoopSink discards events.
type NoopSink struct{}

func (NoopSink) Write(context.Context, SecurityEvent) error { return nil }
