//go:build integration

package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/testutil"
)

func newTestBinding(userID, fingerprintHash string) *model.DeviceBinding {
	return &model.DeviceBinding{
		ID:              testutil.UniqueID("bind"),
		UserID:          userID,
		FingerprintHash: fingerprintHash,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestIntegrationDevice_BindAndGet(t *testing.T) {
	ctx, repo := newTestEnv(t)

	require.NoError(t, repo.BindDevice(ctx, newTestBinding("42", "hash-a")))

	byUser, err := repo.GetDeviceBinding(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "hash-a", byUser.FingerprintHash)

	byHash, err := repo.GetDeviceBindingByFingerprint(ctx, "hash-a")
	require.NoError(t, err)
	assert.Equal(t, "42", byHash.UserID)
}

func TestIntegrationDevice_BijectiveConstraint(t *testing.T) {
	ctx, repo := newTestEnv(t)

	require.NoError(t, repo.BindDevice(ctx, newTestBinding("42", "hash-a")))

	err := repo.BindDevice(ctx, newTestBinding("42", "hash-b"))
	assert.ErrorIs(t, err, ErrBindingConflict, "user already bound")

	err = repo.BindDevice(ctx, newTestBinding("43", "hash-a"))
	assert.ErrorIs(t, err, ErrBindingConflict, "fingerprint already bound")
}

func TestIntegrationDevice_Delete(t *testing.T) {
	ctx, repo := newTestEnv(t)

	require.NoError(t, repo.BindDevice(ctx, newTestBinding("42", "hash-a")))
	require.NoError(t, repo.DeleteDeviceBinding(ctx, "42"))

	_, err := repo.GetDeviceBinding(ctx, "42")
	assert.ErrorIs(t, err, ErrBindingNotFound)

	assert.ErrorIs(t, repo.DeleteDeviceBinding(ctx, "42"), ErrBindingNotFound)
}

func TestIntegrationUser_CreateAndExists(t *testing.T) {
	ctx, repo := newTestEnv(t)

	exists, err := repo.UserExists(ctx, "42")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, repo.CreateUser(ctx, testutil.NewTestUser(t, "42")))

	exists, err = repo.UserExists(ctx, "42")
	require.NoError(t, err)
	assert.True(t, exists)

	user, err := repo.GetUserByID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "user-42", user.Username)

	assert.ErrorIs(t, repo.CreateUser(ctx, testutil.NewTestUser(t, "42")), ErrUserExists)

	_, err = repo.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
