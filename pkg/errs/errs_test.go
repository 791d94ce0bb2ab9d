package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassPredicates(t *testing.T) {
	configErr := Configf("bad token")
	transientErr := Transientf("connection reset")
	resourceErr := WrapResource(errors.New("permission denied"), "cannot create dir")

	assert.True(t, IsConfig(configErr))
	assert.False(t, IsTransient(configErr))
	assert.True(t, IsTransient(transientErr))
	assert.True(t, IsResource(resourceErr))
	assert.False(t, IsConfig(transientErr))
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	inner := Configf("invalid credentials")
	wrapped := fmt.Errorf("fetching page 3: %w", inner)

	assert.True(t, IsConfig(wrapped))
	assert.False(t, IsTransient(wrapped))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("EOF")
	err := WrapTransient(cause, "download of %s interrupted", "a.zip")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "a.zip")
	assert.Contains(t, err.Error(), "EOF")
}
