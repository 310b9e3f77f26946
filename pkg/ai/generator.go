package ai

import "context"

// TextGenerator produces free-form text from a prompt. The Gemini client
// implements this; tests substitute fakes.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// ImageGenerator renders a prompt to binary image data with a specific model.
// Implementations return ErrModelLoading when the backend reports a cold
// start so callers can apply their own warm-up policy.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, model, prompt string) ([]byte, error)
}
