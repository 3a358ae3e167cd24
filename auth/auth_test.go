package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyoez/codesync-go/store"
	"github.com/moyoez/codesync-go/types"
)

func newTestAuth() *Auth {
	return New(store.NewMemory(), types.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour})
}

func TestRegisterAndLogin(t *testing.T) {
	a := newTestAuth()
	ctx := context.Background()

	u, err := a.Register(ctx, types.AuthRequest{Username: " alice ", Password: "pw", Email: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = a.Register(ctx, types.AuthRequest{Username: "alice", Password: "other"})
	assert.ErrorIs(t, err, types.ErrConflict)

	_, err = a.Register(ctx, types.AuthRequest{Username: "bob"})
	assert.ErrorIs(t, err, types.ErrBadRequest)

	resp, err := a.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), resp.ExpiresAt, time.Minute)

	claims, err := a.Validate(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice", claims.Subject)
}

func TestLoginFailures(t *testing.T) {
	a := newTestAuth()
	ctx := context.Background()
	_, err := a.Register(ctx, types.AuthRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)

	_, err = a.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, types.ErrUnauthorized)
	_, err = a.Login(ctx, "nobody", "pw")
	assert.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestValidateRejects(t *testing.T) {
	a := newTestAuth()

	_, err := a.Validate("")
	assert.ErrorIs(t, err, types.ErrUnauthorized)
	_, err = a.Validate("not.a.token")
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	expired, _, err := a.issue("alice", time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = a.Validate(expired)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	other := New(store.NewMemory(), types.AuthConfig{JWTSecret: "another-secret"})
	foreign, _, err := other.issue("alice", time.Now())
	require.NoError(t, err)
	_, err = a.Validate(foreign)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestRevoke(t *testing.T) {
	a := newTestAuth()
	token, _, err := a.issue("alice", time.Now())
	require.NoError(t, err)
	_, err = a.Validate(token)
	require.NoError(t, err)

	a.Revoke(token)
	_, err = a.Validate(token)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestExtractToken(t *testing.T) {
	assert.Equal(t, "abc", ExtractToken("Bearer abc"))
	assert.Equal(t, "abc", ExtractToken("bearer  abc "))
	assert.Empty(t, ExtractToken("Basic abc"))
	assert.Empty(t, ExtractToken("Bearer"))
	assert.Empty(t, ExtractToken(""))
}
