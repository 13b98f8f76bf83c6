package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiClientGenerate(t *testing.T) {
	t.Parallel()

	var gotPath, gotKey string
	var gotBody geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Javob tayyor."}]}}]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient(srv.URL, "server-key")
	text, err := c.Generate(context.Background(), Request{Message: "narxi?", Language: "uz"})
	require.NoError(t, err)
	assert.Equal(t, "Javob tayyor.", text)
	assert.Equal(t, "/models/gemini-1.5-flash:generateContent", gotPath)
	assert.Equal(t, "server-key", gotKey)
	require.Len(t, gotBody.Contents, 1)
	assert.Contains(t, gotBody.Contents[0].Parts[0].Text, "FOYDALANUVCHI SAVOLI: narxi?")
}

func TestGeminiClientTenantKeyWins(t *testing.T) {
	t.Parallel()

	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient(srv.URL, "server-key")
	_, err := c.Generate(context.Background(), Request{Message: "hi", APIKey: "tenant-key"})
	require.NoError(t, err)
	assert.Equal(t, "tenant-key", gotKey)
}

func TestGeminiClientErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	c := NewGeminiClient(srv.URL, "k")
	_, err := c.Generate(context.Background(), Request{Message: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	// No key anywhere.
	c = NewGeminiClient(srv.URL, "")
	_, err = c.Generate(context.Background(), Request{Message: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no api key")
}

func TestOpenAIClientGenerate(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"The answer."}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL)
	text, err := c.Generate(context.Background(), Request{
		Message: "price?", Language: "en", Model: "gpt-4", APIKey: "sk-test",
	})
	require.NoError(t, err)
	assert.Equal(t, "The answer.", text)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4", gotBody.Model)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
	assert.Equal(t, "price?", gotBody.Messages[1].Content)
	assert.Equal(t, 1500, gotBody.MaxTokens)
}

func TestOpenAIClientRequiresKey(t *testing.T) {
	t.Parallel()

	c := NewOpenAIClient("https://api.openai.com/v1")
	_, err := c.Generate(context.Background(), Request{Message: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no api key")
}

func TestOpenAIClientErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL)
	_, err := c.Generate(context.Background(), Request{Message: "hi", APIKey: "sk-bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}
