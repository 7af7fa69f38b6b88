package admin

import "errors"

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUnknownPlan      = errors.New("unknown plan")
	ErrInvalidStatus    = errors.New("invalid subscription status")
	ErrNoUsers          = errors.New("user_ids is empty")
	ErrTooManyUsers     = errors.New("too many users in one bulk request")
	ErrNegativeSetValue = errors.New("set_credits must not be negative")
)
