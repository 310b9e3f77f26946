package app

import (
	"context"
	"errors"
	"testing"

	"storybloom/pkg/ai"
)

func TestFallbackPlanAdvancesInOrder(t *testing.T) {
	plan := newFallbackPlan([]string{"m1", "m2", "m3"})
	if plan.state() != outcomeAttempt || plan.model() != "m1" {
		t.Fatalf("expected to start at m1")
	}
	if got := plan.observe(errors.New("boom")); got != outcomeAttempt {
		t.Fatalf("expected advance to next model, got %v", got)
	}
	if plan.model() != "m2" {
		t.Fatalf("expected m2, got %q", plan.model())
	}
	if got := plan.observe(errors.New("boom")); got != outcomeAttempt {
		t.Fatalf("expected advance to m3, got %v", got)
	}
	if got := plan.observe(errors.New("boom")); got != outcomeExhausted {
		t.Fatalf("expected exhaustion, got %v", got)
	}
	if plan.state() != outcomeExhausted {
		t.Fatalf("expected exhausted state")
	}
}

func TestFallbackPlanWarmsUpOncePerModel(t *testing.T) {
	plan := newFallbackPlan([]string{"m1", "m2"})
	if got := plan.observe(ai.ErrModelLoading); got != outcomeWarmUp {
		t.Fatalf("first loading error should warm up, got %v", got)
	}
	if plan.model() != "m1" {
		t.Fatalf("warm-up must retry the same model, got %q", plan.model())
	}
	if got := plan.observe(ai.ErrModelLoading); got != outcomeAttempt {
		t.Fatalf("second loading error should advance, got %v", got)
	}
	if plan.model() != "m2" {
		t.Fatalf("expected m2 after warm-up failure, got %q", plan.model())
	}
	// The warm-up allowance resets per model.
	if got := plan.observe(ai.ErrModelLoading); got != outcomeWarmUp {
		t.Fatalf("next model gets its own warm-up, got %v", got)
	}
}

func TestSynthesizeImageTriesModelsInDeclaredOrder(t *testing.T) {
	env := newTestEnv(t)
	env.imageGen.respond = func(_, _ string) ([]byte, error) {
		return nil, errors.New("model error")
	}

	url, err := env.app.synthesizeImage(context.Background(), env.imageGen, "a fox")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if url != "" {
		t.Fatalf("expected empty URL on exhaustion, got %q", url)
	}
	if len(env.imageGen.calls) != len(defaultImageModels) {
		t.Fatalf("expected %d attempts, got %d", len(defaultImageModels), len(env.imageGen.calls))
	}
	for i, call := range env.imageGen.calls {
		if call.model != defaultImageModels[i] {
			t.Fatalf("attempt %d used %q, want %q", i, call.model, defaultImageModels[i])
		}
	}
}

func TestSynthesizeImageWarmupRetriesSameModelOnce(t *testing.T) {
	env := newTestEnv(t)
	attempts := 0
	env.imageGen.respond = func(model, _ string) ([]byte, error) {
		attempts++
		if model == defaultImageModels[0] {
			return nil, ai.ErrModelLoading
		}
		return []byte("png-bytes"), nil
	}

	url, err := env.app.synthesizeImage(context.Background(), env.imageGen, "a fox")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if url == "" {
		t.Fatalf("expected a URL from the second model")
	}
	// First model attempted twice (initial + one warm-up retry), then the
	// second model succeeded. No later attempt revisits an earlier model.
	want := []string{defaultImageModels[0], defaultImageModels[0], defaultImageModels[1]}
	if len(env.imageGen.calls) != len(want) {
		t.Fatalf("expected %d attempts, got %d", len(want), len(env.imageGen.calls))
	}
	for i, call := range env.imageGen.calls {
		if call.model != want[i] {
			t.Fatalf("attempt %d used %q, want %q", i, call.model, want[i])
		}
	}
	if env.warmups != 1 {
		t.Fatalf("expected exactly one warm-up wait, got %d", env.warmups)
	}
}

func TestSynthesizeImageStopsOnFirstSuccess(t *testing.T) {
	env := newTestEnv(t)

	url, err := env.app.synthesizeImage(context.Background(), env.imageGen, "a fox")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if url == "" {
		t.Fatalf("expected uploaded URL")
	}
	if len(env.imageGen.calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(env.imageGen.calls))
	}
	if len(env.objects.keys) != 1 {
		t.Fatalf("expected one uploaded object, got %d", len(env.objects.keys))
	}
}

func TestChapterPlaceholderRotates(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < len(placeholderChapterURLs); i++ {
		seen[chapterPlaceholderURL(i)] = true
	}
	if len(seen) != len(placeholderChapterURLs) {
		t.Fatalf("expected %d distinct placeholders, got %d", len(placeholderChapterURLs), len(seen))
	}
	if chapterPlaceholderURL(len(placeholderChapterURLs)) != chapterPlaceholderURL(0) {
		t.Fatalf("expected placeholder rotation to wrap")
	}
}
