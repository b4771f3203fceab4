package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret-test-secret-test-secret", time.Hour)
	courierID := uuid.New()

	token, err := tm.GenerateAccess(courierID, RoleCourier)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.ExpiresAt, 5*time.Second)

	subject, role, err := tm.ParseAccess(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, courierID, subject)
	assert.Equal(t, RoleCourier, role)
}

func TestTokenManager_RejectsForeignSecret(t *testing.T) {
	issuer := NewTokenManager("secret-one-secret-one-secret-one", time.Hour)
	verifier := NewTokenManager("secret-two-secret-two-secret-two", time.Hour)

	token, err := issuer.GenerateAccess(uuid.New(), RoleCourier)
	require.NoError(t, err)

	_, _, err = verifier.ParseAccess(token.AccessToken)
	assert.Error(t, err)
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	tm := NewTokenManager("test-secret-test-secret-test-secret", -time.Minute)
	token, err := tm.GenerateAccess(uuid.New(), RoleCourier)
	require.NoError(t, err)

	_, _, err = tm.ParseAccess(token.AccessToken)
	assert.Error(t, err)
}
