package app

import (
	"fmt"
	"strings"
	"time"

	"storybloom/internal/util"
	"storybloom/pkg/domain"
)

const maxListLimit = 100

// GetStory returns a story with its images. Private stories are only
// visible to their owner.
func (a *App) GetStory(requesterID, storyID string) (domain.Story, error) {
	story, ok, err := a.store.GetStory(storyID)
	if err != nil {
		return domain.Story{}, err
	}
	if !ok {
		return domain.Story{}, ErrStoryNotFound
	}
	if !story.IsPublic && story.OwnerID != requesterID {
		return domain.Story{}, ErrPermissionDenied
	}
	images, err := a.store.ListImages(storyID)
	if err != nil {
		return domain.Story{}, fmt.Errorf("list images: %w", err)
	}
	story.Images = images
	return story, nil
}

// ListMyStories returns the requester's own stories, newest first.
func (a *App) ListMyStories(userID string, limit, offset int) ([]domain.Story, error) {
	filter := domain.StoryFilter{
		OwnerID: userID,
		Sort:    domain.SortRecent,
		Limit:   clampLimit(limit),
		Offset:  maxInt(offset, 0),
	}
	return a.store.ListStories(filter)
}

// ExploreStories lists public stories with optional search, type filters,
// and sort order.
func (a *App) ExploreStories(filter domain.StoryFilter) ([]domain.Story, error) {
	filter.OwnerID = ""
	filter.PublicOnly = true
	filter.Limit = clampLimit(filter.Limit)
	filter.Offset = maxInt(filter.Offset, 0)
	if filter.Sort == "" {
		filter.Sort = domain.SortRecent
	}
	return a.store.ListStories(filter)
}

// UpdateStory replaces the story document. Only the owner may update; the
// title is re-extracted from the new content so search stays consistent.
func (a *App) UpdateStory(requesterID, storyID, contentJSON string) (domain.Story, error) {
	story, err := a.ownedStory(requesterID, storyID)
	if err != nil {
		return domain.Story{}, err
	}
	cleaned := stripCodeFences(contentJSON)
	content, err := parseStoryContent(cleaned)
	if err != nil {
		return domain.Story{}, err
	}
	story.Title = content.StoryTitle
	story.Content = cleaned
	story.UpdatedAt = time.Now().UTC()
	if err := a.store.UpdateStory(story); err != nil {
		return domain.Story{}, fmt.Errorf("update story: %w", err)
	}
	return story, nil
}

// SetStoryPrivacy toggles public visibility. Owner only.
func (a *App) SetStoryPrivacy(requesterID, storyID string, isPublic bool) error {
	if _, err := a.ownedStory(requesterID, storyID); err != nil {
		return err
	}
	return a.store.SetStoryVisibility(storyID, isPublic)
}

// DeleteStory removes a story together with its images, likes, and
// comments. Owner only.
func (a *App) DeleteStory(requesterID, storyID string) error {
	if _, err := a.ownedStory(requesterID, storyID); err != nil {
		return err
	}
	return a.store.DeleteStory(storyID)
}

// RecordView bumps the view counter and returns the new count. Views on
// private stories are only counted for the owner.
func (a *App) RecordView(requesterID, storyID string) (int, error) {
	story, ok, err := a.store.GetStory(storyID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrStoryNotFound
	}
	if !story.IsPublic && story.OwnerID != requesterID {
		return 0, ErrPermissionDenied
	}
	return a.store.IncrementViewCount(storyID)
}

// ToggleLike flips the requester's like on a public story and returns the
// new state and count.
func (a *App) ToggleLike(requesterID, storyID string) (bool, int, error) {
	story, ok, err := a.store.GetStory(storyID)
	if err != nil {
		return false, 0, err
	}
	if !ok {
		return false, 0, ErrStoryNotFound
	}
	if !story.IsPublic && story.OwnerID != requesterID {
		return false, 0, ErrPermissionDenied
	}
	return a.store.ToggleLike(storyID, requesterID)
}

// AddComment attaches a comment, optionally with a 1-5 rating that folds
// into the story's average.
func (a *App) AddComment(requesterID, storyID, content string, rating int) (domain.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Comment{}, fmt.Errorf("comment content required")
	}
	if rating != 0 && (rating < 1 || rating > 5) {
		return domain.Comment{}, fmt.Errorf("rating must be between 1 and 5")
	}
	story, ok, err := a.store.GetStory(storyID)
	if err != nil {
		return domain.Comment{}, err
	}
	if !ok {
		return domain.Comment{}, ErrStoryNotFound
	}
	if !story.IsPublic && story.OwnerID != requesterID {
		return domain.Comment{}, ErrPermissionDenied
	}
	comment := domain.Comment{
		ID:        util.NewID(),
		StoryID:   storyID,
		UserID:    requesterID,
		Content:   strings.TrimSpace(content),
		Rating:    rating,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.AddComment(comment); err != nil {
		return domain.Comment{}, fmt.Errorf("add comment: %w", err)
	}
	return comment, nil
}

// ListComments returns a story's comments, newest first.
func (a *App) ListComments(requesterID, storyID string) ([]domain.Comment, error) {
	story, ok, err := a.store.GetStory(storyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStoryNotFound
	}
	if !story.IsPublic && story.OwnerID != requesterID {
		return nil, ErrPermissionDenied
	}
	return a.store.ListComments(storyID)
}

func (a *App) ownedStory(requesterID, storyID string) (domain.Story, error) {
	story, ok, err := a.store.GetStory(storyID)
	if err != nil {
		return domain.Story{}, err
	}
	if !ok {
		return domain.Story{}, ErrStoryNotFound
	}
	if story.OwnerID != requesterID {
		return domain.Story{}, ErrPermissionDenied
	}
	return story, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return 30
	}
	return limit
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
