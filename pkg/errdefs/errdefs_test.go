package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pred func(error) bool
		want bool
	}{
		{"conflict matches", Conflict("duplicate alert"), IsConflict, true},
		{"conflict is not transient", Conflict("duplicate alert"), IsTransient, false},
		{"not found matches", NotFound("alert %s", "a1"), IsNotFound, true},
		{"quota matches", QuotaExceeded("store full"), IsQuotaExceeded, true},
		{"plain error matches nothing", errors.New("boom"), IsTransient, false},
		{"nil matches nothing", nil, IsNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pred(tt.err))
		})
	}
}

func TestWrappedErrorsKeepCode(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeTransient, cause, "push alert")

	wrapped := fmt.Errorf("replayer: %w", err)

	assert.True(t, IsTransient(wrapped))
	assert.True(t, errors.Is(wrapped, cause))
	assert.Equal(t, CodeTransient, CodeOf(wrapped))
}

func TestCodeOfUncategorized(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(errors.New("boom")))
}
