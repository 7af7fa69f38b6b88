package generation

import "errors"

var (
	ErrGenerationNotFound      = errors.New("generation not found")
	ErrInsufficientCredits     = errors.New("insufficient credits")
	ErrUnknownStyle            = errors.New("unknown style")
	ErrGenerationFailed        = errors.New("generation failed, your credit was refunded")
	ErrGenerationAlreadyFailed = errors.New("generation already failed, use a new request_id")
	ErrGenerationInProgress    = errors.New("generation already in progress")
	// ErrNotClaimed means another attempt owns the generation or it already moved on
	ErrNotClaimed = errors.New("generation is not claimed by this attempt")
	// ErrRefundFailed means the user was charged and the refund did not go through
	ErrRefundFailed = errors.New("generation failed and the credit could not be refunded, contact support")

	errDuplicate = errors.New("generation already exists")
)
