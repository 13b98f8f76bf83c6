// Package telegram implements the Telegram Bot API channel adapter.
package telegram

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/botlinkhq/botlink/internal/channel"
)

// Type is the platform kind served by this adapter.
const Type = channel.PlatformTelegram

// secretTokenHeader carries the shared secret Telegram echoes back on
// webhook deliveries when one was supplied to setWebhook.
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

const (
	credBotToken      = "bot_token"
	credWebhookSecret = "webhook_secret"
)

const apiTimeout = 10 * time.Second

// Adapter implements channel.Adapter, channel.WebhookVerifier,
// channel.EventParser, and channel.Sender for Telegram.
type Adapter struct {
	logger *slog.Logger
	mu     sync.RWMutex
	bots   map[string]*tgbotapi.BotAPI // keyed by bot token
}

// NewAdapter creates a Telegram adapter with the given logger.
func NewAdapter(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger: log.With(slog.String("adapter", "telegram")),
		bots:   make(map[string]*tgbotapi.BotAPI),
	}
}

var newBotForTest func(token string) (*tgbotapi.BotAPI, error)

func (a *Adapter) getOrCreateBot(token string) (*tgbotapi.BotAPI, error) {
	if newBotForTest != nil {
		return newBotForTest(token)
	}
	a.mu.RLock()
	bot, ok := a.bots[token]
	a.mu.RUnlock()
	if ok {
		return bot, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if bot, ok := a.bots[token]; ok {
		return bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: apiTimeout})
	if err != nil {
		a.logger.Error("create bot failed", slog.Any("error", err))
		return nil, err
	}
	a.bots[token] = bot
	return bot, nil
}

// Type returns the Telegram platform kind.
func (a *Adapter) Type() channel.Platform {
	return Type
}

// Descriptor returns the Telegram channel metadata.
func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:             Type,
		DisplayName:      "Telegram",
		CredentialFields: []string{credBotToken, credWebhookSecret},
	}
}

// VerifyWebhook checks the shared-secret header when the binding carries a
// webhook secret. Bindings without one accept unauthenticated deliveries,
// which is the weaker documented mode for bots registered without a secret.
func (a *Adapter) VerifyWebhook(r *http.Request, _ []byte, creds channel.Credentials) error {
	secret := creds.Get(credWebhookSecret)
	if secret == "" {
		return nil
	}
	provided := strings.TrimSpace(r.Header.Get(secretTokenHeader))
	if !hmac.Equal([]byte(provided), []byte(secret)) {
		return channel.ErrVerificationFailed
	}
	return nil
}

// ParseEvents normalizes a Telegram update payload. Updates without a text
// message are benign and reported as ignored.
func (a *Adapter) ParseEvents(body []byte) ([]channel.InboundEvent, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, fmt.Errorf("decode update: %w", err)
	}
	msg := update.Message
	if msg == nil {
		msg = update.EditedMessage
	}
	if msg == nil || msg.Chat == nil {
		return nil, channel.ErrEventIgnored
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	if text == "" {
		return nil, channel.ErrEventIgnored
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	subjectID, displayName, attrs := resolveSender(msg)
	event := channel.InboundEvent{
		Platform:          Type,
		ExternalUserID:    chatID,
		ExternalMessageID: strconv.Itoa(msg.MessageID),
		Text:              text,
		Sender: channel.Identity{
			SubjectID:   subjectID,
			DisplayName: displayName,
			Attributes:  attrs,
		},
		ReceivedAt: time.Unix(int64(msg.Date), 0).UTC(),
	}
	return []channel.InboundEvent{event}, nil
}

// Send delivers a text reply through the Bot API.
func (a *Adapter) Send(ctx context.Context, creds channel.Credentials, recipient, text string) (channel.DeliveryResult, error) {
	token := creds.Get(credBotToken)
	if token == "" {
		return channel.DeliveryResult{}, &channel.DeliveryError{Platform: Type, Reason: "bot_token credential missing"}
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(recipient), 10, 64)
	if err != nil {
		return channel.DeliveryResult{}, &channel.DeliveryError{Platform: Type, Reason: "invalid chat id", Cause: err}
	}
	bot, err := a.getOrCreateBot(token)
	if err != nil {
		return channel.DeliveryResult{}, &channel.DeliveryError{Platform: Type, Reason: "bot init", Cause: err}
	}
	if err := ctx.Err(); err != nil {
		return channel.DeliveryResult{}, &channel.DeliveryError{Platform: Type, Reason: "context done", Cause: err}
	}
	sent, err := bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		a.logger.Error("send failed", slog.String("chat_id", recipient), slog.Any("error", err))
		return channel.DeliveryResult{OK: false, Error: err.Error()}, &channel.DeliveryError{Platform: Type, Reason: "sendMessage", Cause: err}
	}
	return channel.DeliveryResult{
		OK:                true,
		ProviderMessageID: strconv.Itoa(sent.MessageID),
	}, nil
}

// RegisterWebhook points the bot at the gateway's webhook URL, passing the
// binding's webhook secret when present.
func (a *Adapter) RegisterWebhook(ctx context.Context, creds channel.Credentials, webhookURL string) error {
	bot, err := a.getOrCreateBot(creds.Get(credBotToken))
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if secret := creds.Get(credWebhookSecret); secret != "" {
		// WebhookConfig carries no secret_token param, so build the
		// call by hand.
		params := tgbotapi.Params{"url": webhookURL, "secret_token": secret}
		if _, err := bot.MakeRequest("setWebhook", params); err != nil {
			return fmt.Errorf("setWebhook: %w", err)
		}
	} else {
		wh, err := tgbotapi.NewWebhook(webhookURL)
		if err != nil {
			return fmt.Errorf("build webhook config: %w", err)
		}
		if _, err := bot.Request(wh); err != nil {
			return fmt.Errorf("setWebhook: %w", err)
		}
	}
	a.logger.Info("webhook registered", slog.String("url", webhookURL))
	return nil
}

// Probe validates the bot token against the getMe endpoint.
func (a *Adapter) Probe(ctx context.Context, creds channel.Credentials) error {
	bot, err := a.getOrCreateBot(creds.Get(credBotToken))
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := bot.GetMe(); err != nil {
		return fmt.Errorf("getMe: %w", err)
	}
	return nil
}

func resolveSender(msg *tgbotapi.Message) (string, string, map[string]string) {
	attrs := map[string]string{}
	if msg == nil {
		return "", "", attrs
	}
	if msg.Chat != nil {
		attrs["chat_id"] = strconv.FormatInt(msg.Chat.ID, 10)
	}
	if msg.From == nil {
		return attrs["chat_id"], "", attrs
	}
	userID := strconv.FormatInt(msg.From.ID, 10)
	attrs["user_id"] = userID
	if username := strings.TrimSpace(msg.From.UserName); username != "" {
		attrs["username"] = username
	}
	displayName := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	if displayName == "" {
		displayName = strings.TrimSpace(msg.From.UserName)
	}
	return userID, displayName, attrs
}
