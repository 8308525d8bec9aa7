package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrorsUnwrapToSentinels(t *testing.T) {
	tests := map[string]struct {
		err      error
		sentinel error
	}{
		"limit":      {err: &LimitExceededError{Limit: 6, Requested: 7, TechnicianID: "t1"}, sentinel: ErrLimitExceeded},
		"missing":    {err: &MissingRequiredItemError{ItemIDs: []string{"i1"}}, sentinel: ErrMissingRequiredItem},
		"validation": {err: Invalid("event_type", "is required"), sentinel: ErrValidation},
		"not found":  {err: NotFound("kit", "k1"), sentinel: ErrNotFound},
		"channel":    {err: &ChannelError{Channel: "sms", Err: errors.New("gateway down")}, sentinel: ErrNotificationChannel},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			wrapped := fmt.Errorf("op: %w", tc.err)
			assert.ErrorIs(t, wrapped, tc.sentinel)
		})
	}
}

func TestLimitExceededMessageNamesLimit(t *testing.T) {
	err := &LimitExceededError{Limit: 6, Requested: 7, TechnicianID: "tech-1"}
	assert.Contains(t, err.Error(), "daily limit of 6")
	assert.Contains(t, err.Error(), "tech-1")
}

func TestChannelErrorKeepsCause(t *testing.T) {
	cause := errors.New("gateway down")
	err := &ChannelError{Channel: "sms", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "channel sms: gateway down", err.Error())
}
