package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type adjustRequest struct {
	Action string `json:"action" validate:"required,ledger_kind"`
	Amount int64  `json:"amount" validate:"gte=0"`
	Email  string `json:"email" validate:"omitempty,email"`
}

func TestValidateUsesJSONNames(t *testing.T) {
	errs := Validate(adjustRequest{Action: "multiply", Amount: -1, Email: "nope"})
	require.Len(t, errs, 3)
	require.Contains(t, errs["action"], "add, subtract, or set")
	require.Contains(t, errs["amount"], "at least 0")
	require.Equal(t, "Invalid email format", errs["email"])

	require.Nil(t, Validate(adjustRequest{Action: "Set", Amount: 0}))
}
