package app

import (
	"fmt"
	"strings"
	"time"

	"storybloom/pkg/domain"
)

// EnsureUser upserts the authenticated identity into the local user table
// and returns the stored record. Called on every authenticated request so
// profile changes at the identity provider propagate lazily.
func (a *App) EnsureUser(providerID, email, username, firstName, lastName, profileImage string) (domain.User, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return domain.User{}, fmt.Errorf("provider id required")
	}
	now := time.Now().UTC()
	return a.store.UpsertUser(domain.User{
		ProviderID:     providerID,
		Email:          strings.TrimSpace(email),
		Username:       strings.TrimSpace(username),
		FirstName:      strings.TrimSpace(firstName),
		LastName:       strings.TrimSpace(lastName),
		ProfileImage:   strings.TrimSpace(profileImage),
		FreeStoryLimit: a.freeStoryLimit,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

// UserByProviderID resolves the local user for an authenticated subject.
func (a *App) UserByProviderID(providerID string) (domain.User, error) {
	user, ok, err := a.store.GetUserByProviderID(providerID)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

// Usage summarizes the user's free-tier consumption and total output.
func (a *App) Usage(user domain.User) (domain.Usage, error) {
	total, err := a.store.CountStoriesByOwner(user.ID)
	if err != nil {
		return domain.Usage{}, fmt.Errorf("count stories: %w", err)
	}
	keys, ok, err := a.store.GetAPIKeys(user.ID)
	if err != nil {
		return domain.Usage{}, err
	}
	hasKeys := ok && hasCustomKeys(keys)
	limit := a.limitFor(user)
	remaining := limit - user.FreeStoriesUsed
	if remaining < 0 {
		remaining = 0
	}
	return domain.Usage{
		FreeStoriesUsed:      user.FreeStoriesUsed,
		FreeStoryLimit:       limit,
		RemainingFreeStories: remaining,
		TotalStories:         total,
		HasCustomKeys:        hasKeys,
		CanCreateStory:       hasKeys || remaining > 0,
		ReachedLimit:         !hasKeys && remaining == 0,
	}, nil
}
