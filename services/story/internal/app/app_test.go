package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"storybloom/pkg/ai"
	"storybloom/pkg/domain"
	"storybloom/pkg/store"
)

type fakeTextGen struct {
	output string
	err    error
	calls  int
}

func (f *fakeTextGen) GenerateText(_ context.Context, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

type imageCall struct {
	model  string
	prompt string
}

type fakeImageGen struct {
	mu      sync.Mutex
	respond func(model, prompt string) ([]byte, error)
	calls   []imageCall
}

func (f *fakeImageGen) GenerateImage(_ context.Context, model, prompt string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, imageCall{model: model, prompt: prompt})
	f.mu.Unlock()
	return f.respond(model, prompt)
}

type fakeObjectStore struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeObjectStore) Put(_ context.Context, key string, _ io.Reader, _ int64, _ string) error {
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	return nil
}

func (f *fakeObjectStore) PublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func (f *fakeObjectStore) Delete(_ context.Context, _ string) error { return nil }

type testEnv struct {
	app      *App
	store    *store.MemoryStore
	textGen  *fakeTextGen
	imageGen *fakeImageGen
	objects  *fakeObjectStore

	mu           sync.Mutex
	textGenKeys  []string
	imageGenKeys []string
	warmups      int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    store.NewMemoryStore(),
		textGen:  &fakeTextGen{output: storyJSON(5)},
		imageGen: &fakeImageGen{respond: func(_, _ string) ([]byte, error) { return []byte("png-bytes"), nil }},
		objects:  &fakeObjectStore{},
	}
	a, err := New(Config{
		Store:                env.store,
		Objects:              env.objects,
		GeminiAPIKey:         "system-text-key",
		HuggingFaceAPIKey:    "system-image-key",
		EncryptionPassphrase: "test-passphrase",
		EncryptionSalt:       "test-salt",
		FreeStoryLimit:       3,
		WarmupInterval:       time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	a.newTextGenerator = func(apiKey string) (ai.TextGenerator, error) {
		env.mu.Lock()
		env.textGenKeys = append(env.textGenKeys, apiKey)
		env.mu.Unlock()
		return env.textGen, nil
	}
	a.newImageGenerator = func(apiKey string) (ai.ImageGenerator, error) {
		env.mu.Lock()
		env.imageGenKeys = append(env.imageGenKeys, apiKey)
		env.mu.Unlock()
		return env.imageGen, nil
	}
	a.sleep = func(_ context.Context, _ time.Duration) error {
		env.mu.Lock()
		env.warmups++
		env.mu.Unlock()
		return nil
	}
	env.app = a
	return env
}

func (e *testEnv) user(t *testing.T) domain.User {
	t.Helper()
	user, err := e.app.EnsureUser("provider-1", "fox@example.com", "fox", "", "", "")
	if err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	return user
}

func storyJSON(chapters int) string {
	content := domain.StoryContent{
		StoryTitle: "The Brave Fox",
		StoryCover: domain.StoryCover{ImagePrompt: "a fox on a hill, watercolor"},
	}
	for i := 1; i <= chapters; i++ {
		content.Chapters = append(content.Chapters, domain.Chapter{
			ChapterNumber: i,
			ChapterTitle:  fmt.Sprintf("Chapter %d", i),
			TextContent:   fmt.Sprintf("In chapter %d the fox kept going through the quiet woods.", i),
			ImagePrompt:   fmt.Sprintf("fox scene %d, watercolor", i),
		})
	}
	raw, _ := json.Marshal(content)
	return string(raw)
}

func storyRequest() domain.StoryRequest {
	return domain.StoryRequest{
		Subject:    "a brave fox",
		StoryType:  domain.TypeBedStory,
		AgeGroup:   domain.Age3To5,
		ImageStyle: domain.StyleWaterCol,
	}
}
