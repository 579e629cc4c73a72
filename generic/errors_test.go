package generic_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/workforce-engine/generic"
)

// =============================================================================
// ERROR KINDS
// =============================================================================

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want generic.ErrorKind
	}{
		{nil, ""},
		{generic.Invalid("hoursPerDay", "must be between 1 and 24"), generic.KindValidation},
		{&generic.InvalidStateError{Record: "timesheet", ID: "ts-1", Current: "draft", Operation: "approve"}, generic.KindInvalidState},
		{&generic.NotFoundError{Record: "assignment", ID: "a-1"}, generic.KindNotFound},
		{&generic.ConflictError{}, generic.KindConflict},
		{fmt.Errorf("save: %w", &generic.NotFoundError{Record: "worker", ID: "w"}), generic.KindNotFound},
		{errors.New("disk full"), generic.KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, generic.KindOf(tt.err), "%v", tt.err)
	}

	assert.True(t, generic.IsClientError(generic.Invalid("x", "bad")))
	assert.False(t, generic.IsClientError(errors.New("disk full")))
}

func TestInvalidStateError_Message(t *testing.T) {
	err := &generic.InvalidStateError{Record: "timesheet", ID: "ts-1", Current: "draft", Operation: "approve"}
	assert.Equal(t, "cannot approve timesheet ts-1: status is draft", err.Error())
}
