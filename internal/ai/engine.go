package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Engine routes generation requests to the provider named by the tenant's
// config. There is no implicit cross-provider fallback: when the configured
// provider fails, the caller gets the localized fallback text and the
// failure, never a reply from a different provider.
type Engine struct {
	providers map[string]Provider
	logger    *slog.Logger
}

// NewEngine creates an engine over the given providers.
func NewEngine(log *slog.Logger, providers ...Provider) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		providers: make(map[string]Provider, len(providers)),
		logger:    log.With(slog.String("service", "ai")),
	}
	for _, p := range providers {
		e.providers[p.Name()] = p
	}
	return e
}

// Generate produces a reply for the message. The result always carries
// user-presentable text: on failure it is the localized fallback message
// and Success is false.
func (e *Engine) Generate(ctx context.Context, cfg *Config, message, knowledge, language string) Result {
	start := time.Now()
	providerName := ProviderGemini
	model := ""
	apiKey := ""
	if cfg != nil {
		providerName = cfg.Provider
		model = cfg.Model
		apiKey = cfg.APIKey
	}

	res := Result{Provider: providerName}
	p, ok := e.providers[providerName]
	if !ok {
		res.Response = FallbackMessage(language)
		res.Err = fmt.Errorf("%w: %q", ErrUnknownProvider, providerName)
		res.Latency = time.Since(start)
		return res
	}

	text, err := p.Generate(ctx, Request{
		Message:   message,
		Knowledge: knowledge,
		Language:  language,
		Model:     model,
		APIKey:    apiKey,
	})
	res.Latency = time.Since(start)
	if err != nil {
		e.logger.Error("generation failed",
			slog.String("provider", providerName),
			slog.Duration("latency", res.Latency),
			slog.Any("error", err))
		res.Response = FallbackMessage(language)
		res.Err = err
		return res
	}

	res.Response = text
	res.Success = true
	return res
}
