package channel

import (
	"context"
	"errors"
	"net/http"
)

// ErrVerificationFailed indicates a webhook request whose signature or
// shared secret does not match the binding's credentials. The HTTP boundary
// maps it to 403 without detail.
var ErrVerificationFailed = errors.New("channel: webhook verification failed")

// ErrEventIgnored marks a benign non-text event. The gateway acknowledges
// the webhook with 200 and persists nothing.
var ErrEventIgnored = errors.New("channel: event ignored")

// ErrSubscriptionMismatch indicates a GET handshake with a wrong verify token.
var ErrSubscriptionMismatch = errors.New("channel: subscription token mismatch")

// DeliveryError wraps an outbound platform API failure.
type DeliveryError struct {
	Platform Platform
	Reason   string
	Cause    error
}

func (e *DeliveryError) Error() string {
	if e.Cause != nil {
		return string(e.Platform) + " delivery failed: " + e.Reason + ": " + e.Cause.Error()
	}
	return string(e.Platform) + " delivery failed: " + e.Reason
}

func (e *DeliveryError) Unwrap() error {
	return e.Cause
}

// Adapter is the base interface every platform adapter implements.
// Behavior is expressed through the optional capability interfaces below.
type Adapter interface {
	Type() Platform
	Descriptor() Descriptor
}

// Descriptor holds read-only metadata for a registered platform.
type Descriptor struct {
	Type        Platform
	DisplayName string
	// CredentialFields lists the credential names a binding must carry.
	CredentialFields []string
	// SupportsSubscription marks platforms with a GET verification handshake.
	SupportsSubscription bool
}

// WebhookVerifier authenticates an inbound webhook request before parsing.
// body is the raw request body; implementations must compare signatures in
// constant time and return ErrVerificationFailed on any mismatch.
type WebhookVerifier interface {
	VerifyWebhook(r *http.Request, body []byte, creds Credentials) error
}

// EventParser normalizes a platform-native payload into InboundEvents.
// Benign non-text payloads return ErrEventIgnored.
type EventParser interface {
	ParseEvents(body []byte) ([]InboundEvent, error)
}

// Sender delivers a text reply to an external correspondent.
type Sender interface {
	Send(ctx context.Context, creds Credentials, recipient, text string) (DeliveryResult, error)
}

// SubscriptionVerifier handles the GET webhook-subscription handshake used
// by Meta platforms. It returns the challenge to echo iff the provided
// token matches the binding's stored verify token.
type SubscriptionVerifier interface {
	VerifySubscription(creds Credentials, verifyToken, challenge string) (string, error)
}
