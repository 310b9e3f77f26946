package store

import "storybloom/pkg/domain"

// Store defines persistence operations for users, stories, images, and
// engagement records.
type Store interface {
	// users
	UpsertUser(domain.User) (domain.User, error)
	GetUserByProviderID(providerID string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	CountStoriesByOwner(ownerID string) (int, error)
	// IncrementFreeStoriesUsed applies an atomic read-modify-write at the
	// storage layer; concurrent requests from the same user never lose an
	// increment.
	IncrementFreeStoriesUsed(userID string) error

	// api keys
	SaveAPIKeys(domain.APIKeys) error
	GetAPIKeys(userID string) (domain.APIKeys, bool, error)
	DeleteAPIKeys(userID string) error

	// stories
	CreateStory(domain.Story) error
	CreateImage(domain.Image) error
	GetStory(id string) (domain.Story, bool, error)
	ListImages(storyID string) ([]domain.Image, error)
	ListStories(filter domain.StoryFilter) ([]domain.Story, error)
	UpdateStory(domain.Story) error
	SetStoryVisibility(id string, isPublic bool) error
	// DeleteStory removes the story together with its images, likes, and
	// comments in one transaction; image rows do not cascade on their own.
	DeleteStory(id string) error
	IncrementViewCount(id string) (int, error)

	// engagement
	ToggleLike(storyID, userID string) (liked bool, likeCount int, err error)
	AddComment(domain.Comment) error
	ListComments(storyID string) ([]domain.Comment, error)
}
