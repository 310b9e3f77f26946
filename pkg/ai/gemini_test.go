package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGeminiGenerateText(t *testing.T) {
	var gotReq generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{{"text": `{"storyTitle":"x"}`}}}},
			},
		})
	}))
	defer srv.Close()

	client, err := NewGeminiClient("test-key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	text, err := client.WithBaseURL(srv.URL).GenerateText(context.Background(), "tell a story")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != `{"storyTitle":"x"}` {
		t.Fatalf("unexpected text: %q", text)
	}
	if gotReq.GenerationConfig == nil || gotReq.GenerationConfig.ResponseMimeType != "application/json" {
		t.Fatalf("expected JSON response mime type, got %+v", gotReq.GenerationConfig)
	}
	if len(gotReq.Contents) != 1 || gotReq.Contents[0].Parts[0].Text != "tell a story" {
		t.Fatalf("unexpected contents: %+v", gotReq.Contents)
	}
}

func TestGeminiGenerateTextAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "API key not valid"}})
	}))
	defer srv.Close()

	client, err := NewGeminiClient("bad-key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.WithBaseURL(srv.URL).GenerateText(context.Background(), "p"); err == nil {
		t.Fatalf("expected api error")
	}
}

func TestGeminiGenerateTextEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer srv.Close()

	client, err := NewGeminiClient("test-key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.WithBaseURL(srv.URL).GenerateText(context.Background(), "p"); err == nil {
		t.Fatalf("expected error for empty candidates")
	}
}
