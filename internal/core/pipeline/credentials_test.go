package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Minute)

	token, err := issuer.Issue("doc-42")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	doc, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "doc-42", doc)
}

func TestTokenIssuerRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer("secret-a", time.Minute)
	other := NewTokenIssuer("secret-b", time.Minute)

	token, err := issuer.Issue("doc-1")
	require.NoError(t, err)

	_, err = other.Verify(token)
	require.Error(t, err)
}

func TestTokenIssuerRejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer("secret", -time.Minute)

	token, err := issuer.Issue("doc-1")
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	require.Error(t, err)
}

func TestTokenIssuerRejectsGarbage(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute)
	_, err := issuer.Verify("not.a.token")
	require.Error(t, err)
}

func TestTokenIssuerDefaultTTL(t *testing.T) {
	issuer := NewTokenIssuer("secret", 0)
	token, err := issuer.Issue("doc-1")
	require.NoError(t, err)
	_, err = issuer.Verify(token)
	require.NoError(t, err)
}
