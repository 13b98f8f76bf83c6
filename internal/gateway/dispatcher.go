package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/botlinkhq/botlink/internal/channel"
	"github.com/botlinkhq/botlink/internal/message"
	"github.com/botlinkhq/botlink/internal/tenant"
)

// Dispatcher sends assistant messages through the binding's platform and
// records the terminal delivery status.
type Dispatcher struct {
	registry *channel.Registry
	messages message.Store
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher on the given registry and store.
func NewDispatcher(registry *channel.Registry, messages message.Store, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		messages: messages,
		logger:   log.With(slog.String("service", "dispatcher")),
	}
}

// Dispatch delivers the text to the recipient and moves the pending
// message to sent or failed. Both outcomes are terminal.
func (d *Dispatcher) Dispatch(ctx context.Context, binding *tenant.Binding, messageID uuid.UUID, recipient, text string) (channel.DeliveryResult, error) {
	sender, err := d.registry.GetSender(binding.Platform)
	if err != nil {
		d.markFailed(ctx, messageID, err.Error())
		return channel.DeliveryResult{}, err
	}

	result, err := sender.Send(ctx, binding.Credentials, recipient, text)
	if err != nil {
		d.logger.Error("delivery failed",
			slog.String("platform", string(binding.Platform)),
			slog.String("message_id", messageID.String()),
			slog.Any("error", err))
		d.markFailed(ctx, messageID, err.Error())
		return result, err
	}

	if markErr := d.messages.MarkSent(ctx, messageID, result.ProviderMessageID, time.Now().UTC()); markErr != nil {
		d.logger.Error("mark sent failed",
			slog.String("message_id", messageID.String()),
			slog.Any("error", markErr))
	}
	return result, nil
}

func (d *Dispatcher) markFailed(ctx context.Context, messageID uuid.UUID, reason string) {
	if err := d.messages.MarkFailed(ctx, messageID, reason); err != nil {
		d.logger.Error("mark failed failed",
			slog.String("message_id", messageID.String()),
			slog.Any("error", err))
	}
}
