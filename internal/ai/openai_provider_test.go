package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amishk599/autoapply/internal/model"
)

func makeTestServer(t *testing.T, statusCode int, body any) (*httptest.Server, *http.Client) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if statusCode == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "3")
		}
		w.WriteHeader(statusCode)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, srv.Client()
}

func okResponse(content string) chatResponse {
	return chatResponse{
		Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: content}}},
		Usage:   chatUsage{PromptTokens: 120, CompletionTokens: 45},
	}
}

func testRequest() Request {
	return Request{
		TemplateID: "jd_analysis.md",
		System:     systemPrompt,
		Prompt:     "analyze this",
		SchemaName: "jd_analysis",
		Schema:     taskSpecs[model.TaskJDAnalysis].schema,
		MaxTokens:  512,
	}
}

func TestInvoke_Success(t *testing.T) {
	srv, client := makeTestServer(t, http.StatusOK, okResponse(`{"seniority":"mid"}`))

	provider := NewOpenAIProvider(srv.URL, "test-key", "test-model", client)
	got, err := provider.Invoke(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Content != `{"seniority":"mid"}` {
		t.Errorf("content = %q, want json string", got.Content)
	}
	if got.PromptTokens != 120 || got.CompletionTokens != 45 {
		t.Errorf("usage = %d/%d, want 120/45", got.PromptTokens, got.CompletionTokens)
	}
}

func TestInvoke_HTTPError(t *testing.T) {
	srv, client := makeTestServer(t, http.StatusInternalServerError, map[string]string{"error": "server error"})

	provider := NewOpenAIProvider(srv.URL, "test-key", "test-model", client)
	_, err := provider.Invoke(context.Background(), testRequest())
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected HTTPError 500, got %v", err)
	}
}

func TestInvoke_RateLimited(t *testing.T) {
	srv, client := makeTestServer(t, http.StatusTooManyRequests, map[string]string{"error": "rate limited"})

	provider := NewOpenAIProvider(srv.URL, "test-key", "test-model", client)
	_, err := provider.Invoke(context.Background(), testRequest())
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", httpErr.StatusCode)
	}
	if httpErr.RetryAfter != 3*time.Second {
		t.Errorf("RetryAfter = %v, want 3s", httpErr.RetryAfter)
	}
}

func TestInvoke_EmptyChoices(t *testing.T) {
	srv, client := makeTestServer(t, http.StatusOK, chatResponse{})

	provider := NewOpenAIProvider(srv.URL, "test-key", "test-model", client)
	if _, err := provider.Invoke(context.Background(), testRequest()); err == nil {
		t.Fatal("expected error when LLM returns no choices")
	}
}

func TestInvoke_SetsAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(okResponse("ok"))
	}))
	defer srv.Close()

	provider := NewOpenAIProvider(srv.URL, "my-secret-key", "test-model", srv.Client())
	_, _ = provider.Invoke(context.Background(), testRequest())

	if gotAuth != "Bearer my-secret-key" {
		t.Errorf("Authorization header = %q, want %q", gotAuth, "Bearer my-secret-key")
	}
}

func TestInvoke_SendsStructuredOutputFormat(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(okResponse("{}"))
	}))
	defer srv.Close()

	provider := NewOpenAIProvider(srv.URL, "key", "gpt-4o-mini", srv.Client())
	_, _ = provider.Invoke(context.Background(), testRequest())

	if gotReq.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want gpt-4o-mini", gotReq.Model)
	}
	if gotReq.ResponseFormat.Type != "json_schema" {
		t.Errorf("response_format.type = %q, want json_schema", gotReq.ResponseFormat.Type)
	}
	if gotReq.ResponseFormat.JSONSchema.Name != "jd_analysis" {
		t.Errorf("response_format.json_schema.name = %q, want jd_analysis", gotReq.ResponseFormat.JSONSchema.Name)
	}
	if gotReq.Temperature != 0 {
		t.Errorf("temperature = %d, want 0", gotReq.Temperature)
	}
	if gotReq.MaxTokens != 512 {
		t.Errorf("max_tokens = %d, want 512", gotReq.MaxTokens)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Content != "analyze this" {
		t.Errorf("unexpected messages: %+v", gotReq.Messages)
	}
}
