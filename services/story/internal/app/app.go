package app

import (
	"context"
	"fmt"
	"time"

	"storybloom/pkg/ai"
	"storybloom/pkg/secrets"
	"storybloom/pkg/storage"
	"storybloom/pkg/store"
)

const (
	defaultFreeStoryLimit = 3
	defaultWarmupInterval = 25 * time.Second
	defaultStoryDeadline  = 15 * time.Minute
)

// defaultImageModels is the ordered fallback list for image synthesis, most
// capable first. A later model is only tried after the earlier one failed.
var defaultImageModels = []string{
	"black-forest-labs/FLUX.1-schnell",
	"stabilityai/sd-turbo",
	"stabilityai/stable-diffusion-2-1",
	"runwayml/stable-diffusion-v1-5",
	"stable-diffusion-v1-5/stable-diffusion-v1-5",
}

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store

	MinioEndpoint      string
	MinioAccessKey     string
	MinioSecretKey     string
	MinioBucket        string
	MinioPublicBaseURL string
	MinioUseSSL        bool
	Objects            storage.ObjectStore

	// System credentials, used for metered requests.
	GeminiAPIKey      string
	HuggingFaceAPIKey string

	EncryptionPassphrase string
	EncryptionSalt       string

	FreeStoryLimit int
	WarmupInterval time.Duration
	StoryDeadline  time.Duration
	ImageModels    []string

	// Optional client factories. Defaults build Gemini and Hugging Face
	// clients keyed per request.
	TextGeneratorFactory  func(apiKey string) (ai.TextGenerator, error)
	ImageGeneratorFactory func(apiKey string) (ai.ImageGenerator, error)
}

// App is the core application service wiring together storage, object
// storage, and the story-generation pipeline.
type App struct {
	store   store.Store
	objects storage.ObjectStore
	codec   *secrets.Codec

	systemTextKey  string
	systemImageKey string

	freeStoryLimit int
	warmupInterval time.Duration
	storyDeadline  time.Duration
	imageModels    []string

	// Generation clients are built per request with whichever key
	// credential selection produced. Tests swap these for fakes.
	newTextGenerator  func(apiKey string) (ai.TextGenerator, error)
	newImageGenerator func(apiKey string) (ai.ImageGenerator, error)
	sleep             func(ctx context.Context, d time.Duration) error
}

// New constructs the application with database-backed metadata storage and
// MinIO-backed image storage.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioPublicBaseURL, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init object store: %w", err)
		}
	}

	codec, err := secrets.NewCodec(cfg.EncryptionPassphrase, cfg.EncryptionSalt)
	if err != nil {
		return nil, fmt.Errorf("init secrets codec: %w", err)
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini API key required")
	}
	if cfg.HuggingFaceAPIKey == "" {
		return nil, fmt.Errorf("hugging face API key required")
	}

	freeStoryLimit := cfg.FreeStoryLimit
	if freeStoryLimit <= 0 {
		freeStoryLimit = defaultFreeStoryLimit
	}
	warmupInterval := cfg.WarmupInterval
	if warmupInterval <= 0 {
		warmupInterval = defaultWarmupInterval
	}
	storyDeadline := cfg.StoryDeadline
	if storyDeadline <= 0 {
		storyDeadline = defaultStoryDeadline
	}
	imageModels := cfg.ImageModels
	if len(imageModels) == 0 {
		imageModels = defaultImageModels
	}

	newTextGenerator := cfg.TextGeneratorFactory
	if newTextGenerator == nil {
		newTextGenerator = func(apiKey string) (ai.TextGenerator, error) {
			return ai.NewGeminiClient(apiKey)
		}
	}
	newImageGenerator := cfg.ImageGeneratorFactory
	if newImageGenerator == nil {
		newImageGenerator = func(apiKey string) (ai.ImageGenerator, error) {
			return ai.NewInferenceClient(apiKey)
		}
	}

	return &App{
		store:             dataStore,
		objects:           objects,
		codec:             codec,
		systemTextKey:     cfg.GeminiAPIKey,
		systemImageKey:    cfg.HuggingFaceAPIKey,
		freeStoryLimit:    freeStoryLimit,
		warmupInterval:    warmupInterval,
		storyDeadline:     storyDeadline,
		imageModels:       imageModels,
		newTextGenerator:  newTextGenerator,
		newImageGenerator: newImageGenerator,
		sleep:             sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
