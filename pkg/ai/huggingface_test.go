package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateImageSuccess(t *testing.T) {
	var gotModel string
	var gotReq inferenceRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotModel = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	client, err := NewInferenceClient("hf_test")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	data, err := client.WithBaseURL(srv.URL).GenerateImage(context.Background(), "stabilityai/sd-turbo", "a brave fox")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("unexpected image data: %q", data)
	}
	if gotModel != "/stabilityai/sd-turbo" {
		t.Fatalf("unexpected model path: %s", gotModel)
	}
	if gotReq.Inputs != "a brave fox" || !gotReq.Options.WaitForModel {
		t.Fatalf("unexpected request payload: %+v", gotReq)
	}
}

func TestGenerateImageModelLoading(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{"error": "Model is currently loading", "estimated_time": 20})
	}))
	defer srv.Close()

	client, err := NewInferenceClient("hf_test")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.WithBaseURL(srv.URL).GenerateImage(context.Background(), "m", "p")
	if !errors.Is(err, ErrModelLoading) {
		t.Fatalf("expected ErrModelLoading, got %v", err)
	}
}

func TestGenerateImageFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	client, err := NewInferenceClient("hf_test")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.WithBaseURL(srv.URL).GenerateImage(context.Background(), "m", "p")
	if err == nil {
		t.Fatalf("expected error on 429")
	}
	if errors.Is(err, ErrModelLoading) {
		t.Fatalf("429 must not map to ErrModelLoading")
	}
}

func TestGenerateImageEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewInferenceClient("hf_test")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.WithBaseURL(srv.URL).GenerateImage(context.Background(), "m", "p"); err == nil {
		t.Fatalf("expected error on empty image body")
	}
}

func TestNewInferenceClientRequiresKey(t *testing.T) {
	if _, err := NewInferenceClient("  "); err == nil {
		t.Fatalf("expected error for blank api key")
	}
}
