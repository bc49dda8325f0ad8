package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldLogError(t *testing.T) {
	assert.True(t, shouldLogError(1))
	assert.True(t, shouldLogError(2))
	assert.True(t, shouldLogError(3))
	assert.False(t, shouldLogError(4))
	assert.False(t, shouldLogError(59))
	assert.True(t, shouldLogError(60))
	assert.False(t, shouldLogError(61))
	assert.True(t, shouldLogError(120))
}
