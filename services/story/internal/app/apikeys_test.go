package app

import (
	"context"
	"testing"

	"storybloom/pkg/secrets"
)

func TestSaveAPIKeysEncryptsAtRest(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t)

	status, err := env.app.SaveAPIKeys(user.ID, "plain-text-key", "plain-image-key")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !status.HasTextGenKey || !status.HasImageGenKey || !status.Active {
		t.Fatalf("unexpected status %+v", status)
	}

	stored, ok, err := env.store.GetAPIKeys(user.ID)
	if err != nil || !ok {
		t.Fatalf("load stored keys: ok=%v err=%v", ok, err)
	}
	if stored.TextGenKey == "plain-text-key" || stored.ImageGenKey == "plain-image-key" {
		t.Fatalf("keys stored in plaintext")
	}
	if !secrets.IsEncrypted(stored.TextGenKey) || !secrets.IsEncrypted(stored.ImageGenKey) {
		t.Fatalf("stored keys not in ciphertext format")
	}
}

func TestSaveAPIKeysKeepsOtherKeyOnPartialUpdate(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t)

	if _, err := env.app.SaveAPIKeys(user.ID, "text-one", "image-one"); err != nil {
		t.Fatalf("initial save: %v", err)
	}
	if _, err := env.app.SaveAPIKeys(user.ID, "text-two", ""); err != nil {
		t.Fatalf("partial save: %v", err)
	}

	creds, err := env.app.resolveCredentials(context.Background(), user)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if creds.textKey != "text-two" {
		t.Fatalf("expected replaced text key, got %q", creds.textKey)
	}
	if creds.imageKey != "image-one" {
		t.Fatalf("expected retained image key, got %q", creds.imageKey)
	}
}

func TestSaveAPIKeysRequiresAtLeastOne(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t)
	if _, err := env.app.SaveAPIKeys(user.ID, "", "  "); err == nil {
		t.Fatalf("expected empty save to fail")
	}
}

func TestDeleteAPIKeysRestoresMetering(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t)
	if _, err := env.app.SaveAPIKeys(user.ID, "text-one", "image-one"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := env.app.DeleteAPIKeys(user.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	status, err := env.app.APIKeyStatus(user.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.HasTextGenKey || status.HasImageGenKey || status.Active {
		t.Fatalf("expected empty status after delete, got %+v", status)
	}

	creds, err := env.app.resolveCredentials(context.Background(), user)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !creds.metered {
		t.Fatalf("expected metering after key deletion")
	}
}

func TestUsageSummary(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t)

	usage, err := env.app.Usage(user)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.FreeStoryLimit != 3 || usage.RemainingFreeStories != 3 || !usage.CanCreateStory {
		t.Fatalf("unexpected fresh usage %+v", usage)
	}

	if _, err := env.app.CreateStory(context.Background(), user, storyRequest()); err != nil {
		t.Fatalf("create: %v", err)
	}
	user, _, _ = env.store.GetUserByID(user.ID)
	usage, err = env.app.Usage(user)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.FreeStoriesUsed != 1 || usage.RemainingFreeStories != 2 || usage.TotalStories != 1 {
		t.Fatalf("unexpected usage after creation %+v", usage)
	}

	for i := 0; i < 2; i++ {
		_ = env.store.IncrementFreeStoriesUsed(user.ID)
	}
	user, _, _ = env.store.GetUserByID(user.ID)
	usage, _ = env.app.Usage(user)
	if !usage.ReachedLimit || usage.CanCreateStory {
		t.Fatalf("expected exhausted usage %+v", usage)
	}

	if _, err := env.app.SaveAPIKeys(user.ID, "text", "image"); err != nil {
		t.Fatalf("save keys: %v", err)
	}
	usage, _ = env.app.Usage(user)
	if !usage.HasCustomKeys || !usage.CanCreateStory || usage.ReachedLimit {
		t.Fatalf("custom keys should unlock creation %+v", usage)
	}
}
