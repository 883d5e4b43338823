package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyVerifier(t *testing.T) {
	key := newTestKey(t)

	v, err := KeyVerifier(key)
	require.NoError(t, err)
	assert.Len(t, v, 32)

	assert.True(t, CheckKeyVerifier(key, v))
	assert.False(t, CheckKeyVerifier(newTestKey(t), v))
	assert.False(t, CheckKeyVerifier(nil, v))

	_, err = KeyVerifier(nil)
	assert.Error(t, err)
}
