package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeAndParseTokenSecret(t *testing.T) {
	secret, err := MakeTokenSecret("u", 42)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(secret, "cgh_u42_"))

	marker, id, err := ParseTokenSecret(secret)
	require.NoError(t, err)
	assert.Equal(t, "u", marker)
	assert.Equal(t, int64(42), id)
}

func TestMakeTokenSecretIsUnique(t *testing.T) {
	a, err := MakeTokenSecret("g", 1)
	require.NoError(t, err)
	b, err := MakeTokenSecret("g", 1)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestParseTokenSecretRejectsMalformed(t *testing.T) {
	valid, err := MakeTokenSecret("g", 7)
	require.NoError(t, err)

	tests := []string{
		"",
		"cgh",
		"cgh_u42",
		"xyz_u42_" + strings.Repeat("a", 64),
		"cgh_x42_" + strings.Repeat("a", 64),
		"cgh_u_" + strings.Repeat("a", 64),
		"cgh_uNaN_" + strings.Repeat("a", 64),
		"cgh_u42_tooshort",
		valid + "_extra",
	}

	for _, secret := range tests {
		_, _, err := ParseTokenSecret(secret)
		assert.Error(t, err, "secret %q must be rejected", secret)
	}
}

func TestKindMarker(t *testing.T) {
	m, err := KindMarker("user")
	require.NoError(t, err)
	assert.Equal(t, "u", m)

	m, err = KindMarker("global")
	require.NoError(t, err)
	assert.Equal(t, "g", m)

	_, err = KindMarker("session")
	assert.Error(t, err)
}

func TestVerifyTokenSecret(t *testing.T) {
	secret, err := MakeTokenSecret("u", 1)
	require.NoError(t, err)

	salt, err := NewSalt()
	require.NoError(t, err)
	hash := HashTokenSecret(secret, salt)

	assert.True(t, VerifyTokenSecret(secret, salt, hash))
	assert.False(t, VerifyTokenSecret(secret+"x", salt, hash))

	otherSalt, err := NewSalt()
	require.NoError(t, err)
	assert.False(t, VerifyTokenSecret(secret, otherSalt, hash), "hash is bound to its salt")
}

func TestHashTokenSecretDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")
	a := HashTokenSecret("cgh_u1_secret", salt)
	b := HashTokenSecret("cgh_u1_secret", salt)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}
