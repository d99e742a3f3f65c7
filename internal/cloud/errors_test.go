package cloud

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	wrapped := fmt.Errorf("failed to create function: %w", Retryable("CreateFunction", "InvalidParameterValueException", "role not assumable"))

	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.Equal(t, "InvalidParameterValueException", CodeOf(wrapped))
	assert.Equal(t, KindFatal, KindOf(errors.New("boom")))
	assert.False(t, IsRetryable(nil))
}

func TestError_Message(t *testing.T) {
	err := Fatal("PutRule", "AccessDenied", "not authorized")
	assert.Equal(t, "PutRule: AccessDenied: not authorized", err.Error())

	inner := errors.New("socket closed")
	err = &Error{Op: "GetFunction", Err: inner}
	assert.Equal(t, "GetFunction: socket closed", err.Error())
	assert.ErrorIs(t, err, inner)
}
