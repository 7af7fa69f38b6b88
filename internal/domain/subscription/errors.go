package subscription

import "errors"

var (
	ErrPlanNotFound          = errors.New("plan not found")
	ErrUserNotFound          = errors.New("user not found")
	ErrNoActiveSubscription  = errors.New("no active subscription")
	ErrCannotCancelFree      = errors.New("cannot cancel free subscription")
	ErrActivationKeyRequired = errors.New("activation key is required")
	ErrPaymentRequired       = errors.New("payment required for this plan")
)
