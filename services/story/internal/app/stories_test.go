package app

import (
	"context"
	"errors"
	"testing"

	"storybloom/pkg/domain"
)

func createTestStory(t *testing.T, env *testEnv, user domain.User, public bool) domain.Story {
	t.Helper()
	req := storyRequest()
	req.IsPublic = public
	story, err := env.app.CreateStory(context.Background(), user, req)
	if err != nil {
		t.Fatalf("create story: %v", err)
	}
	return story
}

func secondUser(t *testing.T, env *testEnv) domain.User {
	t.Helper()
	user, err := env.app.EnsureUser("provider-2", "owl@example.com", "owl", "", "", "")
	if err != nil {
		t.Fatalf("ensure second user: %v", err)
	}
	return user
}

func TestGetStoryPrivateDeniedToOthers(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t)
	story := createTestStory(t, env, owner, false)

	if _, err := env.app.GetStory(owner.ID, story.ID); err != nil {
		t.Fatalf("owner read failed: %v", err)
	}
	if _, err := env.app.GetStory("stranger", story.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if _, err := env.app.GetStory(owner.ID, "missing"); !errors.Is(err, ErrStoryNotFound) {
		t.Fatalf("expected ErrStoryNotFound, got %v", err)
	}
}

func TestExploreListsOnlyPublicStories(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t)
	createTestStory(t, env, owner, false)
	public := createTestStory(t, env, owner, true)

	stories, err := env.app.ExploreStories(domain.StoryFilter{})
	if err != nil {
		t.Fatalf("explore: %v", err)
	}
	if len(stories) != 1 || stories[0].ID != public.ID {
		t.Fatalf("expected only the public story, got %d", len(stories))
	}
}

func TestUpdateStoryOwnerOnlyAndReextractsTitle(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t)
	other := secondUser(t, env)
	story := createTestStory(t, env, owner, false)

	updatedJSON := `{"storyTitle":"The Braver Fox","storyCover":{"imagePrompt":"fox, bolder"},"chapters":[{"chapterNumber":1,"chapterTitle":"One","textContent":"The fox went on.","imagePrompt":"fox again"}]}`
	if _, err := env.app.UpdateStory(other.ID, story.ID, updatedJSON); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for non-owner, got %v", err)
	}

	updated, err := env.app.UpdateStory(owner.ID, story.ID, updatedJSON)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "The Braver Fox" {
		t.Fatalf("title not re-extracted, got %q", updated.Title)
	}

	if _, err := env.app.UpdateStory(owner.ID, story.ID, "not json"); !errors.Is(err, ErrContentParse) {
		t.Fatalf("expected ErrContentParse for invalid content, got %v", err)
	}
}

func TestDeleteStoryRemovesEverything(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t)
	other := secondUser(t, env)
	story := createTestStory(t, env, owner, true)

	if _, _, err := env.app.ToggleLike(other.ID, story.ID); err != nil {
		t.Fatalf("like: %v", err)
	}
	if _, err := env.app.AddComment(other.ID, story.ID, "lovely", 5); err != nil {
		t.Fatalf("comment: %v", err)
	}

	if err := env.app.DeleteStory(other.ID, story.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for non-owner delete, got %v", err)
	}
	if err := env.app.DeleteStory(owner.ID, story.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.app.GetStory(owner.ID, story.ID); !errors.Is(err, ErrStoryNotFound) {
		t.Fatalf("expected story gone, got %v", err)
	}
	images, err := env.store.ListImages(story.ID)
	if err != nil {
		t.Fatalf("list images: %v", err)
	}
	if len(images) != 0 {
		t.Fatalf("expected image rows removed, got %d", len(images))
	}
	comments, _ := env.store.ListComments(story.ID)
	if len(comments) != 0 {
		t.Fatalf("expected comment rows removed, got %d", len(comments))
	}
}

func TestSetStoryPrivacy(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t)
	story := createTestStory(t, env, owner, false)

	if err := env.app.SetStoryPrivacy(owner.ID, story.ID, true); err != nil {
		t.Fatalf("set privacy: %v", err)
	}
	got, err := env.app.GetStory("stranger", story.ID)
	if err != nil {
		t.Fatalf("public read: %v", err)
	}
	if !got.IsPublic {
		t.Fatalf("expected public story")
	}
}

func TestRecordViewIncrements(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t)
	story := createTestStory(t, env, owner, true)

	if count, err := env.app.RecordView("viewer", story.ID); err != nil || count != 1 {
		t.Fatalf("first view: count=%d err=%v", count, err)
	}
	if count, err := env.app.RecordView("viewer", story.ID); err != nil || count != 2 {
		t.Fatalf("second view: count=%d err=%v", count, err)
	}
}

func TestToggleLikeFlips(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t)
	other := secondUser(t, env)
	story := createTestStory(t, env, owner, true)

	liked, count, err := env.app.ToggleLike(other.ID, story.ID)
	if err != nil || !liked || count != 1 {
		t.Fatalf("first toggle: liked=%v count=%d err=%v", liked, count, err)
	}
	liked, count, err = env.app.ToggleLike(other.ID, story.ID)
	if err != nil || liked || count != 0 {
		t.Fatalf("second toggle: liked=%v count=%d err=%v", liked, count, err)
	}
}

func TestAddCommentWithRatingFoldsAverage(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t)
	other := secondUser(t, env)
	story := createTestStory(t, env, owner, true)

	if _, err := env.app.AddComment(other.ID, story.ID, "great", 5); err != nil {
		t.Fatalf("comment 1: %v", err)
	}
	if _, err := env.app.AddComment(owner.ID, story.ID, "good", 3); err != nil {
		t.Fatalf("comment 2: %v", err)
	}
	got, _, err := env.store.GetStory(story.ID)
	if err != nil {
		t.Fatalf("reload story: %v", err)
	}
	if got.RatingCount != 2 {
		t.Fatalf("expected 2 ratings, got %d", got.RatingCount)
	}
	if got.Rating < 3.99 || got.Rating > 4.01 {
		t.Fatalf("expected average rating 4, got %v", got.Rating)
	}

	if _, err := env.app.AddComment(other.ID, story.ID, "bad rating", 9); err == nil {
		t.Fatalf("expected out-of-range rating to fail")
	}
	if _, err := env.app.AddComment(other.ID, story.ID, "  ", 0); err == nil {
		t.Fatalf("expected blank comment to fail")
	}

	comments, err := env.app.ListComments(other.ID, story.ID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(comments))
	}
}
