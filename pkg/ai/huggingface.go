package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultInferenceBaseURL = "https://api-inference.huggingface.co/models"

// ErrModelLoading indicates the inference backend returned 503 because the
// requested model is still cold-starting. The caller decides whether to wait
// and retry or move on to another model.
var ErrModelLoading = errors.New("model loading")

// InferenceClient calls the Hugging Face serverless inference API for
// text-to-image generation.
type InferenceClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewInferenceClient constructs a client with the provided API key.
func NewInferenceClient(apiKey string) (*InferenceClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("hugging face api key required")
	}
	return &InferenceClient{
		apiKey:     apiKey,
		baseURL:    defaultInferenceBaseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// WithBaseURL overrides the API endpoint, mainly for tests.
func (c *InferenceClient) WithBaseURL(baseURL string) *InferenceClient {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// GenerateImage renders a prompt with the given model and returns raw image
// bytes. A 503 with a "loading" error body maps to ErrModelLoading.
func (c *InferenceClient) GenerateImage(ctx context.Context, model, prompt string) ([]byte, error) {
	reqBody := inferenceRequest{
		Inputs:  prompt,
		Options: inferenceOptions{WaitForModel: true},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+model, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		var errResp inferenceError
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if strings.Contains(strings.ToLower(errResp.Error), "loading") {
			return nil, fmt.Errorf("%w: %s", ErrModelLoading, model)
		}
		return nil, fmt.Errorf("inference api error: %s unavailable", model)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("inference api error: %s returned %d: %s", model, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("inference api error: %s returned empty image", model)
	}
	return data, nil
}

type inferenceRequest struct {
	Inputs  string           `json:"inputs"`
	Options inferenceOptions `json:"options"`
}

type inferenceOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

type inferenceError struct {
	Error string `json:"error"`
}
