// Package ai generates assistant replies through the configured model
// provider.
package ai

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Provider names accepted in tenant AI configs.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Default models per provider.
const (
	DefaultGeminiModel = "gemini-1.5-flash"
	DefaultOpenAIModel = "gpt-3.5-turbo"
)

// ErrUnknownProvider is returned for configs naming a provider the engine
// has no client for. The engine never substitutes another provider.
var ErrUnknownProvider = errors.New("ai: unknown provider")

// ErrConfigNotFound is returned when a tenant has no AI config.
var ErrConfigNotFound = errors.New("ai config not found")

// Request is one generation call.
type Request struct {
	Message   string
	Knowledge string
	Language  string
	Model     string
	APIKey    string
}

// Result is the outcome of a generation call. When Success is false,
// Response carries the localized fallback text and Err the cause.
type Result struct {
	Response string
	Success  bool
	Provider string
	Latency  time.Duration
	Err      error
}

// Provider is a model backend capable of producing a reply.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Config is a tenant's AI provider selection. The API key is stored
// encrypted and decrypted by the service layer.
type Config struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	APIKey    string    `json:"-"`
	HasAPIKey bool      `json:"has_api_key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AvailableModels lists the models selectable for a provider.
func AvailableModels(provider string) []string {
	switch provider {
	case ProviderGemini:
		return []string{"gemini-1.5-flash", "gemini-1.5-pro", "gemini-pro"}
	case ProviderOpenAI:
		return []string{"gpt-3.5-turbo", "gpt-4", "gpt-4-turbo-preview"}
	default:
		return nil
	}
}
