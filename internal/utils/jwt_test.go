package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	id := uuid.New()
	token, err := GenerateToken("secret", id, "admin", time.Hour)
	require.NoError(t, err)

	gotID, role, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	assert.Equal(t, "admin", role)

	_, _, err = ParseToken("other", token)
	assert.Error(t, err)

	expired, err := GenerateToken("secret", id, "staff", -time.Minute)
	require.NoError(t, err)
	_, _, err = ParseToken("secret", expired)
	assert.Error(t, err)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "s3cret-pass"))
	assert.False(t, CheckPassword(hash, "wrong"))
}

func TestPasswordPolicy(t *testing.T) {
	assert.ErrorIs(t, ValidatePassword("abc"), ErrPasswordTooShort)
	assert.ErrorIs(t, ValidatePassword(strings.Repeat("x", 73)), ErrPasswordTooLong)
	assert.NoError(t, ValidatePassword("abcdef"))

	_, err := HashPassword("abc")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}
