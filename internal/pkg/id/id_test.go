package id

import (
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IsValidULID(t *testing.T) {
	_, err := ulid.ParseStrict(New())
	require.NoError(t, err)
}

func TestNewTemp_Prefixed(t *testing.T) {
	a, b := NewTemp(), NewTemp()
	assert.True(t, IsTemp(a))
	assert.NotEqual(t, a, b)
	assert.False(t, IsTemp(New()))
}
