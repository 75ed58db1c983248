package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestWrapf(t *testing.T) {
	wrapped := Wrapf(New("original"), "subsidiary %q", "MOHAVE HEALTHCARE")
	assert.Equal(t, `subsidiary "MOHAVE HEALTHCARE": original`, wrapped.Error())
}

func TestWithHint(t *testing.T) {
	withHint := WithHint(ErrNoDataset, "import an ownership extract first")

	hints := GetAllHints(withHint)
	require.Len(t, hints, 1)
	assert.Equal(t, "import an ownership extract first", hints[0])
	assert.True(t, Is(withHint, ErrNoDataset))
}

func TestStackTrace(t *testing.T) {
	err := New("with stack")

	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "errors_test.go")
}

func TestSentinelHelpers(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		err := NewNotFoundError("subsidiary %s", "ACME")
		assert.True(t, IsNotFoundError(err))
		assert.Contains(t, err.Error(), "subsidiary ACME")
		assert.False(t, IsNotFoundError(nil))
	})

	t.Run("invalid request", func(t *testing.T) {
		err := NewInvalidRequestError("care type %q", "")
		assert.True(t, IsInvalidRequestError(err))
		assert.False(t, IsInvalidRequestError(New("other")))
	})

	t.Run("setup error survives wrapping", func(t *testing.T) {
		err := Wrap(Wrap(ErrNoDataset, "latest dataset"), "start run")
		assert.True(t, IsSetupError(err))
		assert.False(t, IsSetupError(ErrNotFound))
		assert.False(t, IsSetupError(nil))
	})
}
