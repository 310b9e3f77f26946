package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"storybloom/pkg/domain"
)

// generateContent runs the text backend and returns the parsed story
// document together with the cleaned JSON that gets persisted verbatim.
func (a *App) generateContent(ctx context.Context, creds generationCredentials, req domain.StoryRequest) (domain.StoryContent, string, error) {
	gen, err := a.newTextGenerator(creds.textKey)
	if err != nil {
		return domain.StoryContent{}, "", fmt.Errorf("%w: %v", ErrContentGeneration, err)
	}
	raw, err := gen.GenerateText(ctx, buildStoryPrompt(req))
	if err != nil {
		return domain.StoryContent{}, "", fmt.Errorf("%w: %v", ErrContentGeneration, err)
	}
	cleaned := stripCodeFences(raw)
	content, err := parseStoryContent(cleaned)
	if err != nil {
		return domain.StoryContent{}, "", err
	}
	return content, cleaned, nil
}

// stripCodeFences removes a surrounding ```json / ``` markdown fence that
// some models wrap around their output.
func stripCodeFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(cleaned, "```json"):
		cleaned = strings.TrimPrefix(cleaned, "```json")
	case strings.HasPrefix(cleaned, "```"):
		cleaned = strings.TrimPrefix(cleaned, "```")
	default:
		return cleaned
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}

// parseStoryContent decodes and validates the model output. Anything the
// pipeline cannot build a full image set from is rejected here, before a
// single row is written.
func parseStoryContent(cleaned string) (domain.StoryContent, error) {
	var content domain.StoryContent
	if err := json.Unmarshal([]byte(cleaned), &content); err != nil {
		return domain.StoryContent{}, fmt.Errorf("%w: %v", ErrContentParse, err)
	}
	if strings.TrimSpace(content.StoryTitle) == "" {
		return domain.StoryContent{}, fmt.Errorf("%w: story title missing", ErrContentParse)
	}
	if strings.TrimSpace(content.StoryCover.ImagePrompt) == "" {
		return domain.StoryContent{}, fmt.Errorf("%w: cover image prompt missing", ErrContentParse)
	}
	if len(content.Chapters) == 0 {
		return domain.StoryContent{}, fmt.Errorf("%w: no chapters", ErrContentParse)
	}
	for i, chapter := range content.Chapters {
		if strings.TrimSpace(chapter.TextContent) == "" {
			return domain.StoryContent{}, fmt.Errorf("%w: chapter %d has no text", ErrContentParse, i+1)
		}
		if strings.TrimSpace(chapter.ImagePrompt) == "" {
			return domain.StoryContent{}, fmt.Errorf("%w: chapter %d has no image prompt", ErrContentParse, i+1)
		}
	}
	return content, nil
}
