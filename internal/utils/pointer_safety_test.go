package utils_test

import (
	"testing"

	"github.com/jrsteele09/go-session-claims/internal/utils"
	"github.com/stretchr/testify/assert"
)

func TestPointerSafety(t *testing.T) {
	assert.Equal(t, "", utils.Value[string](nil))
	assert.Equal(t, 3, utils.Value(utils.Ptr(3)))

	assert.Nil(t, utils.NonZeroPtr(""))
	assert.Equal(t, "x", *utils.NonZeroPtr("x"))

	assert.True(t, utils.Equal[string](nil, nil))
	assert.True(t, utils.Equal(utils.Ptr("a"), utils.Ptr("a")))
	assert.False(t, utils.Equal(utils.Ptr("a"), nil))
	assert.False(t, utils.Equal(utils.Ptr("a"), utils.Ptr("b")))
}
