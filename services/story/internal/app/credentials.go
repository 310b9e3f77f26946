package app

import (
	"context"
	"strings"

	"storybloom/internal/util"
	"storybloom/pkg/domain"
)

// generationCredentials carries the already-decrypted keys chosen for one
// story run. Metered runs charge the free-tier counter on success; runs on
// the user's own keys never do.
type generationCredentials struct {
	textKey  string
	imageKey string
	metered  bool
}

// selectCredential picks the custom key when present, otherwise the system
// key. Inputs are already decrypted; a custom key that failed decryption
// arrives here as empty and degrades to the system key.
func selectCredential(custom, system string) string {
	if strings.TrimSpace(custom) != "" {
		return custom
	}
	return system
}

// hasCustomKeys reports whether the stored record unlocks custom mode.
// Both keys must be present and the record active; a single stored key
// still leans on a system credential, so that user stays metered.
func hasCustomKeys(keys domain.APIKeys) bool {
	return keys.Active && keys.TextGenKey != "" && keys.ImageGenKey != ""
}

// resolveCredentials decides whether this run uses the caller's stored keys
// or the shared system keys. Users with both custom keys active are never
// metered; everyone else is checked against the free allowance before any
// generation call is made.
func (a *App) resolveCredentials(ctx context.Context, user domain.User) (generationCredentials, error) {
	logger := util.LoggerFromContext(ctx)

	keys, ok, err := a.store.GetAPIKeys(user.ID)
	if err != nil {
		return generationCredentials{}, err
	}
	if ok && hasCustomKeys(keys) {
		textKey := a.decryptKey(keys.TextGenKey)
		imageKey := a.decryptKey(keys.ImageGenKey)
		if keys.TextGenKey != "" && textKey == "" {
			logger.Warn("custom text key unreadable, falling back to system key", "user_id", user.ID)
		}
		if keys.ImageGenKey != "" && imageKey == "" {
			logger.Warn("custom image key unreadable, falling back to system key", "user_id", user.ID)
		}
		return generationCredentials{
			textKey:  selectCredential(textKey, a.systemTextKey),
			imageKey: selectCredential(imageKey, a.systemImageKey),
			metered:  false,
		}, nil
	}

	if user.FreeStoriesUsed >= a.limitFor(user) {
		return generationCredentials{}, ErrQuotaExceeded
	}
	return generationCredentials{
		textKey:  a.systemTextKey,
		imageKey: a.systemImageKey,
		metered:  true,
	}, nil
}

// decryptKey returns the plaintext key or "" when the stored value is
// missing or cannot be decrypted. Decryption failure of one key must never
// abort the whole request.
func (a *App) decryptKey(stored string) string {
	if strings.TrimSpace(stored) == "" {
		return ""
	}
	plain, err := a.codec.Decrypt(stored)
	if err != nil {
		return ""
	}
	return plain
}

func (a *App) limitFor(user domain.User) int {
	if user.FreeStoryLimit > 0 {
		return user.FreeStoryLimit
	}
	return a.freeStoryLimit
}
