package withdrawal_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elimuhub/elimu/core/withdrawal"
)

func TestStatus_Valid(t *testing.T) {
	for _, s := range withdrawal.AllStatuses {
		assert.True(t, s.Valid(), "%v should be valid", s)
	}
	assert.False(t, withdrawal.Status("stalled").Valid())
	assert.False(t, withdrawal.Status("").Valid())
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to withdrawal.Status
		want     bool
	}{
		{withdrawal.StatusPending, withdrawal.StatusApproved, true},
		{withdrawal.StatusPending, withdrawal.StatusDeclined, true},
		{withdrawal.StatusApproved, withdrawal.StatusProcessed, true},
		{withdrawal.StatusPending, withdrawal.StatusProcessed, false},
		{withdrawal.StatusApproved, withdrawal.StatusDeclined, false},
		{withdrawal.StatusDeclined, withdrawal.StatusProcessed, false},
		{withdrawal.StatusProcessed, withdrawal.StatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%v -> %v", tt.from, tt.to)
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, withdrawal.StatusPending.Terminal())
	assert.False(t, withdrawal.StatusApproved.Terminal())
	assert.True(t, withdrawal.StatusDeclined.Terminal())
	assert.True(t, withdrawal.StatusProcessed.Terminal())
}
