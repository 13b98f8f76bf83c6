// Package whatsapp implements the WhatsApp Cloud API channel adapter.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/botlinkhq/botlink/internal/channel"
	"github.com/botlinkhq/botlink/internal/channel/adapters/graph"
)

// Type is the platform kind served by this adapter.
const Type = channel.PlatformWhatsApp

const (
	credAppID         = "app_id"
	credAppSecret     = "app_secret"
	credVerifyToken   = "verify_token"
	credAccessToken   = "access_token"
	credPhoneNumberID = "phone_number_id"
)

// Adapter implements channel.Adapter, channel.WebhookVerifier,
// channel.EventParser, channel.Sender, and channel.SubscriptionVerifier
// for WhatsApp Cloud API bindings.
type Adapter struct {
	logger  *slog.Logger
	client  *graph.Client
	baseURL string
}

// NewAdapter creates a WhatsApp adapter that sends through the given Graph
// API base URL, e.g. "https://graph.facebook.com/v18.0".
func NewAdapter(log *slog.Logger, baseURL string) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger:  log.With(slog.String("adapter", "whatsapp")),
		client:  graph.NewClient(),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Type returns the WhatsApp platform kind.
func (a *Adapter) Type() channel.Platform {
	return Type
}

// Descriptor returns the WhatsApp channel metadata.
func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:                 Type,
		DisplayName:          "WhatsApp",
		CredentialFields:     []string{credAppID, credAppSecret, credVerifyToken, credAccessToken, credPhoneNumberID},
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
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseEvents normalizes a Cloud API webhook payload. Status-only payloads
// and non-text message types are benign and reported as ignored.
func (a *Adapter) ParseEvents(body []byte) ([]channel.InboundEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var events []channel.InboundEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || strings.TrimSpace(msg.Text.Body) == "" {
					continue
				}
				events = append(events, channel.InboundEvent{
					Platform:          Type,
					ExternalUserID:    msg.From,
					ExternalMessageID: msg.ID,
					Text:              msg.Text.Body,
					Sender: channel.Identity{
						SubjectID:   msg.From,
						DisplayName: names[msg.From],
						Attributes:  map[string]string{"wa_id": msg.From},
					},
					ReceivedAt: parseTimestamp(msg.Timestamp),
				})
			}
		}
	}
	if len(events) == 0 {
		return nil, channel.ErrEventIgnored
	}
	return events, nil
}

// Send delivers a text reply through the /{phone_number_id}/messages
// endpoint, authenticated with the binding's access token.
func (a *Adapter) Send(ctx context.Context, creds channel.Credentials, recipient, text string) (channel.DeliveryResult, error) {
	accessToken := creds.Get(credAccessToken)
	phoneNumberID := creds.Get(credPhoneNumberID)
	if accessToken == "" || phoneNumberID == "" {
		return channel.DeliveryResult{}, &channel.DeliveryError{Platform: Type, Reason: "access_token or phone_number_id credential missing"}
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                recipient,
		"type":              "text",
		"text":              map[string]string{"body": text},
	}
	url := fmt.Sprintf("%s/%s/messages", a.baseURL, phoneNumberID)
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

func parseTimestamp(s string) time.Time {
	unix, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Now().UTC()
	}
	return time.Unix(unix, 0).UTC()
}
