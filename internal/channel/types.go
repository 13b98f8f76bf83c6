// Package channel provides a unified abstraction for the external messaging
// platforms the gateway receives webhooks from. It defines the canonical
// inbound model, the adapter capability interfaces, and a registry.
package channel

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies a messaging platform (e.g. "telegram", "whatsapp").
type Platform string

const (
	PlatformTelegram  Platform = "telegram"
	PlatformWhatsApp  Platform = "whatsapp"
	PlatformInstagram Platform = "instagram"
)

// String returns the platform as a plain string.
func (p Platform) String() string {
	return string(p)
}

// ParsePlatform normalizes a raw string into a known Platform.
func ParsePlatform(raw string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(raw))); p {
	case PlatformTelegram, PlatformWhatsApp, PlatformInstagram:
		return p, nil
	default:
		return "", fmt.Errorf("unknown platform: %q", raw)
	}
}

// Credentials is a binding's decrypted credential set. Values are plaintext
// and must never outlive the adapter call they were materialized for.
type Credentials map[string]string

// Get returns the trimmed credential value, or empty string if absent.
func (c Credentials) Get(name string) string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c[name])
}

// Identity represents the external correspondent's identity on a platform.
type Identity struct {
	SubjectID   string
	DisplayName string
	Attributes  map[string]string
}

// InboundEvent is one normalized message received from an external channel.
type InboundEvent struct {
	Platform          Platform
	ExternalUserID    string
	ExternalMessageID string
	Text              string
	Sender            Identity
	ReceivedAt        time.Time
	Metadata          map[string]any
}

// ConversationTitle builds the dashboard-facing thread title for this event.
func (e InboundEvent) ConversationTitle() string {
	name := strings.TrimSpace(e.Sender.DisplayName)
	if name == "" {
		name = strings.TrimSpace(e.ExternalUserID)
	}
	switch e.Platform {
	case PlatformTelegram:
		return "Telegram: " + name
	case PlatformWhatsApp:
		return "WhatsApp: " + name
	case PlatformInstagram:
		return "Instagram: " + name
	default:
		return name
	}
}

// DeliveryResult is the outcome of one outbound platform API call.
type DeliveryResult struct {
	OK                bool
	ProviderMessageID string
	Error             string
}
