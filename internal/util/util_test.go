package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortedUnique(t *testing.T) {
	assert.Equal(t, []string{"AZ", "CA", "NV"}, SortedUnique([]string{"NV", "AZ", "", "CA", "AZ"}))
	assert.NotNil(t, SortedUnique(nil))
	assert.Empty(t, SortedUnique(nil))
}
