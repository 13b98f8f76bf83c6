package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const generateTimeout = 30 * time.Second

// GeminiClient calls the Google Generative Language REST API.
type GeminiClient struct {
	baseURL    string
	defaultKey string
	http       *http.Client
}

// NewGeminiClient creates a Gemini provider. defaultKey is the
// server-level API key used when a tenant config carries none.
func NewGeminiClient(baseURL, defaultKey string) *GeminiClient {
	return &GeminiClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		defaultKey: defaultKey,
		http:       &http.Client{Timeout: generateTimeout},
	}
}

func (c *GeminiClient) Name() string { return ProviderGemini }

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends the combined system prompt and user message as a single
// content and returns the first candidate's text.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = c.defaultKey
	}
	if apiKey == "" {
		return "", errors.New("gemini: no api key configured")
	}
	model := req.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	prompt := fmt.Sprintf("%s\n\nFOYDALANUVCHI SAVOLI: %s",
		SystemPrompt(req.Knowledge, req.Language), req.Message)
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("gemini: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(model), url.QueryEscape(apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini: request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("gemini: read response: %w", err)
	}

	var out geminiResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if out.Error != nil {
			msg = out.Error.Message
		}
		return "", fmt.Errorf("gemini: status %d: %s", resp.StatusCode, msg)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini: empty response")
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}
