package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsToDefaultPasswordWhenNoFileOrEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".admin_password")
	a, err := Load(path)
	require.NoError(t, err)

	assert.True(t, a.VerifyPassword(DefaultPassword))
	assert.True(t, a.IsDefaultPassword())
	assert.False(t, a.VerifyPassword("wrong"))
}

func TestLoad_PrefersEnvVarOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".admin_password")
	require.NoError(t, os.WriteFile(path, []byte("somesalt$"+hashPassword("filepass", "somesalt")), 0o600))

	t.Setenv("ADMIN_PASSWORD", "envpass")
	a, err := Load(path)
	require.NoError(t, err)

	assert.True(t, a.VerifyPassword("envpass"))
	assert.False(t, a.VerifyPassword("filepass"))
}

func TestSetPassword_PersistsAndIsVerifiable(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".admin_password")
	a, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, a.SetPassword("new-password"))
	assert.True(t, a.VerifyPassword("new-password"))
	assert.False(t, a.IsDefaultPassword())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, reloaded.VerifyPassword("new-password"))
}

func TestTokenIssuer_IssueAndVerifyRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	issuer := NewTokenIssuer()

	token, err := issuer.Issue()
	require.NoError(t, err)
	assert.True(t, issuer.Verify(token))

	otherIssuer := NewTokenIssuer()
	assert.True(t, otherIssuer.Verify(token), "same env secret should verify tokens from a different instance")
}

func TestTokenIssuer_RejectsTokenFromDifferentSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret-one")
	issuerOne := NewTokenIssuer()
	token, err := issuerOne.Issue()
	require.NoError(t, err)

	t.Setenv("JWT_SECRET", "secret-two")
	issuerTwo := NewTokenIssuer()
	assert.False(t, issuerTwo.Verify(token))
}

func TestTokenIssuer_RejectsGarbage(t *testing.T) {
	issuer := NewTokenIssuer()
	assert.False(t, issuer.Verify("not-a-jwt"))
}
