package credstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerMinter_MintAndVerify(t *testing.T) {
	m := NewBearerMinter("signing-secret")
	bearer, err := m.Mint("user-1", "ws-1")
	require.NoError(t, err)
	assert.NotEmpty(t, bearer.Token)
	assert.WithinDuration(t, time.Now().Add(DefaultBearerTTL), bearer.ExpiresAt, 2*time.Second)

	userID, workspaceID, err := m.Verify(bearer.Token, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, "ws-1", workspaceID)
}

func TestBearerMinter_RejectsWorkspaceMismatch(t *testing.T) {
	m := NewBearerMinter("signing-secret")
	bearer, err := m.Mint("user-1", "ws-1")
	require.NoError(t, err)

	_, _, err = m.Verify(bearer.Token, "ws-2")
	assert.Error(t, err)
}

func TestBearerMinter_RejectsExpiredToken(t *testing.T) {
	m := NewBearerMinter("signing-secret").WithTTL(time.Millisecond)
	bearer, err := m.Mint("user-1", "ws-1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, _, err = m.Verify(bearer.Token, "ws-1")
	assert.Error(t, err)
}

func TestBearerMinter_RejectsWrongSigningSecret(t *testing.T) {
	m1 := NewBearerMinter("secret-one")
	m2 := NewBearerMinter("secret-two")

	bearer, err := m1.Mint("user-1", "ws-1")
	require.NoError(t, err)

	_, _, err = m2.Verify(bearer.Token, "ws-1")
	assert.Error(t, err)
}
