package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storybloom/internal/util"
	"storybloom/pkg/domain"
)

// CreateStory runs the full generation pipeline: credential and quota
// selection, text generation, per-image synthesis with model fallback, and
// persistence. Image failures degrade to placeholders; everything before
// persistence aborts without writing a row, and the free-tier counter is
// charged only after every row is written.
func (a *App) CreateStory(ctx context.Context, user domain.User, req domain.StoryRequest) (domain.Story, error) {
	ctx, cancel := context.WithTimeout(ctx, a.storyDeadline)
	defer cancel()
	logger := util.LoggerFromContext(ctx)

	if err := validateRequest(req); err != nil {
		return domain.Story{}, err
	}

	creds, err := a.resolveCredentials(ctx, user)
	if err != nil {
		return domain.Story{}, err
	}

	content, contentJSON, err := a.generateContent(ctx, creds, req)
	if err != nil {
		return domain.Story{}, err
	}

	imageGen, err := a.newImageGenerator(creds.imageKey)
	if err != nil {
		return domain.Story{}, fmt.Errorf("init image client: %w", err)
	}

	// Cover first, then chapters in order. Sequential on purpose: the
	// image backends are rate-limited and fallback bookkeeping is per
	// prompt.
	coverPrompt := buildCoverPrompt(content.StoryTitle, content.StoryCover.ImagePrompt)
	coverURL, err := a.synthesizeImage(ctx, imageGen, coverPrompt)
	if err != nil {
		return domain.Story{}, fmt.Errorf("synthesize cover: %w", err)
	}
	if coverURL == "" {
		logger.Warn("cover image degraded to placeholder", "user_id", user.ID)
		coverURL = placeholderCoverURL
	}

	chapterPrompts := make([]string, len(content.Chapters))
	chapterURLs := make([]string, len(content.Chapters))
	for i, chapter := range content.Chapters {
		chapterPrompts[i] = chapter.ImagePrompt
		url, err := a.synthesizeImage(ctx, imageGen, chapter.ImagePrompt)
		if err != nil {
			return domain.Story{}, fmt.Errorf("synthesize chapter %d image: %w", i+1, err)
		}
		if url == "" {
			logger.Warn("chapter image degraded to placeholder", "user_id", user.ID, "chapter", i+1)
			url = chapterPlaceholderURL(i)
		}
		chapterURLs[i] = url
	}

	now := time.Now().UTC()
	story := domain.Story{
		ID:         util.NewID(),
		OwnerID:    user.ID,
		Subject:    req.Subject,
		StoryType:  req.StoryType,
		AgeGroup:   req.AgeGroup,
		ImageStyle: req.ImageStyle,
		Title:      content.StoryTitle,
		Content:    contentJSON,
		IsPublic:   req.IsPublic,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := a.store.CreateStory(story); err != nil {
		return domain.Story{}, fmt.Errorf("save story: %w", err)
	}

	images := make([]domain.Image, 0, len(chapterURLs)+1)
	cover := domain.Image{
		ID:        util.NewID(),
		StoryID:   story.ID,
		Prompt:    coverPrompt,
		URL:       coverURL,
		IsCover:   true,
		CreatedAt: now,
	}
	if err := a.store.CreateImage(cover); err != nil {
		return domain.Story{}, fmt.Errorf("save cover image: %w", err)
	}
	images = append(images, cover)
	// Image listing sorts on created_at, so chapter rows carry strictly
	// increasing timestamps to keep chapter order stable.
	for i, url := range chapterURLs {
		img := domain.Image{
			ID:        util.NewID(),
			StoryID:   story.ID,
			Prompt:    chapterPrompts[i],
			URL:       url,
			IsCover:   false,
			CreatedAt: now.Add(time.Duration(i+1) * time.Millisecond),
		}
		if err := a.store.CreateImage(img); err != nil {
			return domain.Story{}, fmt.Errorf("save chapter %d image: %w", i+1, err)
		}
		images = append(images, img)
	}

	// Charged last so a mid-pipeline failure never consumes quota without
	// producing a story.
	if creds.metered {
		if err := a.store.IncrementFreeStoriesUsed(user.ID); err != nil {
			return domain.Story{}, fmt.Errorf("update usage counter: %w", err)
		}
	}

	story.Images = images
	logger.Info("story created",
		"story_id", story.ID,
		"user_id", user.ID,
		"chapters", len(content.Chapters),
		"metered", creds.metered,
	)
	return story, nil
}

func validateRequest(req domain.StoryRequest) error {
	if strings.TrimSpace(req.Subject) == "" {
		return fmt.Errorf("story subject required")
	}
	if req.StoryType == "" || req.AgeGroup == "" || req.ImageStyle == "" {
		return fmt.Errorf("story type, age group, and image style required")
	}
	return nil
}
