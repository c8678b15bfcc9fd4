package campaigns

import "errors"

var (
	ErrNotFound     = errors.New("campaign not found")
	ErrInvalidGoal  = errors.New("goal amount must be positive")
	ErrNotOwner     = errors.New("not the campaign owner")
	ErrMissingTitle = errors.New("title is required")
)
