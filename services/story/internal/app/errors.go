package app

import "errors"

var (
	// ErrQuotaExceeded indicates the requester has no custom keys and has
	// used up the free story allowance. Raised before any generation call.
	ErrQuotaExceeded = errors.New("free story quota exceeded")
	// ErrContentGeneration indicates the text backend call itself failed.
	ErrContentGeneration = errors.New("content generation failed")
	// ErrContentParse indicates the text backend returned output that is
	// not a valid story document.
	ErrContentParse     = errors.New("content parse failed")
	ErrStoryNotFound    = errors.New("story not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrPermissionDenied = errors.New("permission denied")
)
