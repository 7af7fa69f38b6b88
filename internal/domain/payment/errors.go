package payment

import "errors"

var (
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrUnknownItem         = errors.New("unknown item")
	ErrFreePlan            = errors.New("free plan does not need a payment")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)
