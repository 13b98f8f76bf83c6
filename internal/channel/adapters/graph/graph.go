// Package graph holds the pieces shared by the Meta Graph API channels:
// webhook signature verification, the subscription handshake, and a thin
// JSON client for the send endpoints.
package graph

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/botlinkhq/botlink/internal/channel"
)

// SignatureHeader carries the HMAC-SHA256 digest of the request body.
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

const requestTimeout = 10 * time.Second

// VerifySignature checks the X-Hub-Signature-256 header against an
// HMAC-SHA256 of the raw body keyed with the app secret.
func VerifySignature(r *http.Request, body []byte, appSecret string) error {
	if appSecret == "" {
		return channel.ErrVerificationFailed
	}
	header := strings.TrimSpace(r.Header.Get(SignatureHeader))
	if !strings.HasPrefix(header, signaturePrefix) {
		return channel.ErrVerificationFailed
	}
	provided, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return channel.ErrVerificationFailed
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return channel.ErrVerificationFailed
	}
	return nil
}

// VerifySubscription implements the hub.challenge handshake: the stored
// verify token must match the one the platform sent, and the challenge is
// echoed back verbatim on success.
func VerifySubscription(storedToken, verifyToken, challenge string) (string, error) {
	if storedToken == "" || !hmac.Equal([]byte(storedToken), []byte(verifyToken)) {
		return "", channel.ErrSubscriptionMismatch
	}
	return challenge, nil
}

// Client posts JSON payloads to Graph API send endpoints.
type Client struct {
	http *http.Client
}

// NewClient creates a Graph client with a bounded request timeout.
func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: requestTimeout}}
}

// SendResponse is the subset of the Graph send response the gateway needs.
type SendResponse struct {
	MessageID string
	Messages  []struct {
		ID string `json:"id"`
	} `json:"messages"`
	RawMessageID string `json:"message_id"`
}

// PostJSON sends a bearer-authenticated JSON request and decodes the
// response. Non-2xx statuses are returned as errors carrying the body.
func (c *Client) PostJSON(ctx context.Context, url, accessToken string, payload any) (*SendResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("graph status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out SendResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.MessageID == "" {
		if len(out.Messages) > 0 {
			out.MessageID = out.Messages[0].ID
		} else if out.RawMessageID != "" {
			out.MessageID = out.RawMessageID
		}
	}
	return &out, nil
}

// SetHTTPClient swaps the underlying HTTP client, used by tests.
func (c *Client) SetHTTPClient(hc *http.Client) {
	if hc != nil {
		c.http = hc
	}
}
