package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"storybloom/internal/util"
	"storybloom/pkg/ai"
)

const imageObjectPrefix = "generated_images/"

// Fixed fallback URLs substituted when every backend fails for a prompt.
// Chapters rotate through the set so consecutive placeholders stay
// visually distinct.
var (
	placeholderCoverURL = "https://images.unsplash.com/photo-1532012197267-da84d127e765?w=800&h=600&fit=crop"

	placeholderChapterURLs = []string{
		"https://images.unsplash.com/photo-1516979187457-637abb4f9353?w=800&h=600&fit=crop",
		"https://images.unsplash.com/photo-1503751071777-d2918b21bbd9?w=800&h=600&fit=crop",
		"https://images.unsplash.com/photo-1481627834876-b7833e8f5570?w=800&h=600&fit=crop",
		"https://images.unsplash.com/photo-1456513080510-7bf3a84b82f8?w=800&h=600&fit=crop",
		"https://images.unsplash.com/photo-1507003211169-0a1dd7228f2d?w=800&h=600&fit=crop",
	}
)

type fallbackOutcome int

const (
	// outcomeAttempt means call the model at the current index.
	outcomeAttempt fallbackOutcome = iota
	// outcomeWarmUp means wait out a cold start, then retry the same model.
	outcomeWarmUp
	// outcomeExhausted means every model has been tried.
	outcomeExhausted
)

// fallbackPlan tracks progress through the ordered model list. Each model
// gets at most one warm-up retry; once the plan advances past a model it
// never returns to it.
type fallbackPlan struct {
	models []string
	index  int
	warmed bool
}

func newFallbackPlan(models []string) *fallbackPlan {
	return &fallbackPlan{models: models}
}

func (p *fallbackPlan) state() fallbackOutcome {
	if p.index >= len(p.models) {
		return outcomeExhausted
	}
	return outcomeAttempt
}

func (p *fallbackPlan) model() string {
	return p.models[p.index]
}

// observe folds an attempt result into the plan and returns the next step.
// A loading error grants one warm-up retry on the same model; any other
// failure, or a second loading error after warming up, moves on.
func (p *fallbackPlan) observe(err error) fallbackOutcome {
	if errors.Is(err, ai.ErrModelLoading) && !p.warmed {
		p.warmed = true
		return outcomeWarmUp
	}
	p.index++
	p.warmed = false
	if p.index >= len(p.models) {
		return outcomeExhausted
	}
	return outcomeAttempt
}

// synthesizeImage renders one prompt, walking the model fallback order, and
// uploads the result. It returns "" when every model failed; the caller
// substitutes a placeholder, so a degraded image never fails the story.
func (a *App) synthesizeImage(ctx context.Context, gen ai.ImageGenerator, prompt string) (string, error) {
	logger := util.LoggerFromContext(ctx)
	plan := newFallbackPlan(a.imageModels)

	for plan.state() != outcomeExhausted {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		model := plan.model()
		data, err := gen.GenerateImage(ctx, model, prompt)
		if err == nil {
			url, uploadErr := a.uploadImage(ctx, data)
			if uploadErr == nil {
				return url, nil
			}
			logger.Warn("image upload failed", "model", model, "error", uploadErr)
			err = uploadErr
		}

		switch plan.observe(err) {
		case outcomeWarmUp:
			logger.Info("image model warming up", "model", model)
			if sleepErr := a.sleep(ctx, a.warmupInterval); sleepErr != nil {
				return "", sleepErr
			}
		case outcomeAttempt:
			logger.Warn("image model failed, trying next", "model", model, "error", err)
		case outcomeExhausted:
			logger.Warn("image generation degraded, all models exhausted", "last_model", model, "error", err)
		}
	}
	return "", nil
}

func (a *App) uploadImage(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image data")
	}
	key := imageObjectPrefix + "ai-" + uuid.NewString() + ".png"
	if err := a.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "image/png"); err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return a.objects.PublicURL(key), nil
}

// chapterPlaceholderURL returns the placeholder for the zero-based chapter
// index, rotating through the fixed set.
func chapterPlaceholderURL(index int) string {
	return placeholderChapterURLs[index%len(placeholderChapterURLs)]
}
