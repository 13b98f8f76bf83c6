// Package instagram implements the Instagram Messaging channel adapter.
package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/botlinkhq/botlink/internal/channel"
	"github.com/botlinkhq/botlink/internal/channel/adapters/graph"
)

// Type is the platform kind served by this adapter.
const Type = channel.PlatformInstagram

const (
	credAppSecret   = "app_secret"
	credVerifyToken = "verify_token"
	credAccessToken = "access_token"
	credPageID      = "page_id"
)

// Adapter implements channel.Adapter, channel.WebhookVerifier,
// channel.EventParser, channel.Sender, and channel.SubscriptionVerifier
// for Instagram messaging bindings.
type Adapter struct {
	logger  *slog.Logger
	client  *graph.Client
	baseURL string
}

// NewAdapter creates an Instagram adapter that sends through the given
// Graph API base URL.
func NewAdapter(log *slog.Logger, baseURL string) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger:  log.With(slog.String("adapter", "instagram")),
		client:  graph.NewClient(),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Type returns the Instagram platform kind.
func (a *Adapter) Type() channel.Platform {
	return Type
}

// Descriptor returns the Instagram channel metadata.
func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:                 Type,
		DisplayName:          "Instagram",
		CredentialFields:     []string{credAppSecret, credVerifyToken, credAccessToken, credPageID},
		SupportsSubscription: true,
	}
}

// VerifyWebhook checks the X-Hub-Signature-256 digest against the binding's
// app secret.
func (a *Adapter) VerifyWebhook(r *http.Request, body []byte, creds channel.Credentials) error {
	return graph.VerifySignature(r, body, creds.Get(credAppSecret))
}

// VerifySubscription answers the hub.challenge handshake.
func (a *Adapter) VerifySubscription(creds channel.Credentials, verifyToken, challenge string) (string, error) {
	return graph.VerifySubscription(creds.Get(credVerifyToken), verifyToken, challenge)
}

type webhookPayload struct {
	Entry []struct {
		Time      int64 `json:"time"`
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Timestamp int64 `json:"timestamp"`
			Message   struct {
				MID    string `json:"mid"`
				Text   string `json:"text"`
				IsEcho bool   `json:"is_echo"`
			} `json:"message"`
		} `json:"messaging"`
	} `json:"entry"`
}

// ParseEvents normalizes an Instagram messaging payload. Echoes of our own
// sends and non-text events are benign and reported as ignored.
func (a *Adapter) ParseEvents(body []byte) ([]channel.InboundEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var events []channel.InboundEvent
	for _, entry := range payload.Entry {
		for _, m := range entry.Messaging {
			if m.Message.IsEcho || strings.TrimSpace(m.Message.Text) == "" || m.Sender.ID == "" {
				continue
			}
			receivedAt := time.Now().UTC()
			if m.Timestamp > 0 {
				receivedAt = time.UnixMilli(m.Timestamp).UTC()
			}
			events = append(events, channel.InboundEvent{
				Platform:          Type,
				ExternalUserID:    m.Sender.ID,
				ExternalMessageID: m.Message.MID,
				Text:              m.Message.Text,
				Sender: channel.Identity{
					SubjectID:  m.Sender.ID,
					Attributes: map[string]string{"igsid": m.Sender.ID},
				},
				ReceivedAt: receivedAt,
			})
		}
	}
	if len(events) == 0 {
		return nil, channel.ErrEventIgnored
	}
	return events, nil
}

// Send delivers a text reply through the /{page_id}/messages endpoint.
func (a *Adapter) Send(ctx context.Context, creds channel.Credentials, recipient, text string) (channel.DeliveryResult, error) {
	accessToken := creds.Get(credAccessToken)
	pageID := creds.Get(credPageID)
	if accessToken == "" || pageID == "" {
		return channel.DeliveryResult{}, &channel.DeliveryError{Platform: Type, Reason: "access_token or page_id credential missing"}
	}

	payload := map[string]any{
		"recipient": map[string]string{"id": recipient},
		"message":   map[string]string{"text": text},
	}
	url := fmt.Sprintf("%s/%s/messages", a.baseURL, pageID)
	resp, err := a.client.PostJSON(ctx, url, accessToken, payload)
	if err != nil {
		a.logger.Error("send failed", slog.String("to", recipient), slog.Any("error", err))
		return channel.DeliveryResult{OK: false, Error: err.Error()}, &channel.DeliveryError{Platform: Type, Reason: "messages", Cause: err}
	}
	return channel.DeliveryResult{OK: true, ProviderMessageID: resp.MessageID}, nil
}

// SetHTTPClient swaps the Graph transport, used by tests.
func (a *Adapter) SetHTTPClient(hc *http.Client) {
	a.client.SetHTTPClient(hc)
}
