package course_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elimuhub/elimu/core/course"
)

func TestStatus_Valid(t *testing.T) {
	for _, s := range course.AllStatuses {
		assert.True(t, s.Valid(), "%v should be valid", s)
	}
	assert.False(t, course.Status("archived").Valid())
	assert.False(t, course.Status("").Valid())
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to course.Status
		want     bool
	}{
		{course.StatusDraft, course.StatusPending, true},
		{course.StatusPending, course.StatusPublished, true},
		{course.StatusPending, course.StatusRejected, true},
		{course.StatusRejected, course.StatusPending, true},
		{course.StatusDraft, course.StatusPublished, false},
		{course.StatusDraft, course.StatusRejected, false},
		{course.StatusPublished, course.StatusPending, false},
		{course.StatusPublished, course.StatusRejected, false},
		{course.StatusRejected, course.StatusPublished, false},
		{course.StatusPending, course.StatusDraft, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%v -> %v", tt.from, tt.to)
	}
}
