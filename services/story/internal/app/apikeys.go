package app

import (
	"fmt"
	"strings"
	"time"

	"storybloom/pkg/domain"
)

// KeyStatus is what clients see about stored credentials. Key material
// itself never leaves the service.
type KeyStatus struct {
	HasTextGenKey  bool      `json:"hasTextGenKey"`
	HasImageGenKey bool      `json:"hasImageGenKey"`
	Active         bool      `json:"active"`
	LastValidated  time.Time `json:"lastValidated,omitempty"`
}

// SaveAPIKeys encrypts and stores the user's generation keys. Either key
// may be omitted to keep using the system credential for that backend.
func (a *App) SaveAPIKeys(userID, textGenKey, imageGenKey string) (KeyStatus, error) {
	textGenKey = strings.TrimSpace(textGenKey)
	imageGenKey = strings.TrimSpace(imageGenKey)
	if textGenKey == "" && imageGenKey == "" {
		return KeyStatus{}, fmt.Errorf("at least one API key required")
	}

	keys := domain.APIKeys{
		UserID:        userID,
		Active:        true,
		LastValidated: time.Now().UTC(),
	}
	var err error
	if textGenKey != "" {
		if keys.TextGenKey, err = a.codec.Encrypt(textGenKey); err != nil {
			return KeyStatus{}, fmt.Errorf("encrypt text key: %w", err)
		}
	}
	if imageGenKey != "" {
		if keys.ImageGenKey, err = a.codec.Encrypt(imageGenKey); err != nil {
			return KeyStatus{}, fmt.Errorf("encrypt image key: %w", err)
		}
	}
	if err := a.store.SaveAPIKeys(keys); err != nil {
		return KeyStatus{}, fmt.Errorf("save api keys: %w", err)
	}
	return a.APIKeyStatus(userID)
}

// APIKeyStatus reports which keys are stored without exposing them.
func (a *App) APIKeyStatus(userID string) (KeyStatus, error) {
	keys, ok, err := a.store.GetAPIKeys(userID)
	if err != nil {
		return KeyStatus{}, err
	}
	if !ok {
		return KeyStatus{}, nil
	}
	return KeyStatus{
		HasTextGenKey:  keys.TextGenKey != "",
		HasImageGenKey: keys.ImageGenKey != "",
		Active:         keys.Active,
		LastValidated:  keys.LastValidated,
	}, nil
}

// DeleteAPIKeys removes stored credentials; the user returns to the
// metered system keys.
func (a *App) DeleteAPIKeys(userID string) error {
	return a.store.DeleteAPIKeys(userID)
}
