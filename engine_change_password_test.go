package goTasks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangePasswordRevokesEverySession(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	first, err := engine.Signup(ctx, "grace@example.com", "old-password")
	require.NoError(t, err)
	second, err := engine.Login(ctx, "grace@example.com", "old-password")
	require.NoError(t, err)

	require.NoError(t, engine.ChangePassword(ctx, first.User.ID, "old-password", "new-password"))

	for _, tok := range []string{first.RefreshToken, second.RefreshToken} {
		_, err := engine.ValidateSession(ctx, tok)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	}

	_, err = engine.Login(ctx, "grace@example.com", "old-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = engine.Login(ctx, "grace@example.com", "new-password")
	assert.NoError(t, err)

	snap := engine.MetricsSnapshot()
	assert.Equal(t, uint64(1), snap.Counters[MetricPasswordChange])
	assert.Equal(t, uint64(2), snap.Counters[MetricSessionRevoked])
}

func TestChangePasswordRejectsWrongCurrent(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	res, err := engine.Signup(ctx, "heidi@example.com", "old-password")
	require.NoError(t, err)

	err = engine.ChangePassword(ctx, res.User.ID, "not-the-password", "new-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = engine.ValidateSession(ctx, res.RefreshToken)
	assert.NoError(t, err, "failed change must keep sessions")
}

func TestChangePasswordValidation(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	res, err := engine.Signup(ctx, "ivan@example.com", "old-password")
	require.NoError(t, err)

	err = engine.ChangePassword(ctx, res.User.ID, "", "short")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "currentPassword")
	assert.Contains(t, verr.Fields, "newPassword")

	err = engine.ChangePassword(ctx, "ghost", "old-password", "new-password")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
