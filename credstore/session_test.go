package credstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_CreateAndVerifyState(t *testing.T) {
	s := NewSessionStore()
	sess, err := s.Create("user-1")
	require.NoError(t, err)
	assert.Len(t, sess.ID, 22) // 16 bytes, unpadded base64url
	assert.NotEmpty(t, sess.State)

	require.NoError(t, s.VerifyState(sess.ID, sess.State))
	assert.Error(t, s.VerifyState(sess.ID, "wrong-state"))
}

func TestSessionStore_SweepsExpiredSessions(t *testing.T) {
	s := NewSessionStore()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	sess, err := s.Create("user-1")
	require.NoError(t, err)

	s.now = func() time.Time { return fixed.Add(SessionTTL + time.Minute) }
	_, ok := s.Get(sess.ID)
	assert.False(t, ok, "a session past its TTL must be swept on read")
}

func TestSessionStore_UnknownIDNotFound(t *testing.T) {
	s := NewSessionStore()
	_, ok := s.Get("does-not-exist")
	assert.False(t, ok)
}

func TestSessionStore_Complete_MakesResultVisibleOnGet(t *testing.T) {
	s := NewSessionStore()
	sess, err := s.Create("user-1")
	require.NoError(t, err)

	require.NoError(t, s.Complete(sess.ID, map[string]any{"workspace_id": "ws-1"}))

	got, ok := s.Get(sess.ID)
	require.True(t, ok)
	assert.Equal(t, "ws-1", got.AuthResult["workspace_id"])
}

func TestSessionStore_Complete_UnknownSessionErrors(t *testing.T) {
	s := NewSessionStore()
	assert.Error(t, s.Complete("does-not-exist", map[string]any{}))
}
