package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(&Payload{
		ExternalID: "ext-123",
		Username:   "Alice",
	}, "secret", time.Hour)
	require.NoError(t, err)

	payload, err := ParseToken(token, "secret")
	require.NoError(t, err)
	require.Equal(t, "ext-123", payload.ExternalID)
	require.Equal(t, "Alice", payload.Username)
	require.Equal(t, TokenIssuer, payload.Issuer)
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken(&Payload{ExternalID: "ext-123"}, "secret", time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, "other-secret")
	require.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	token, err := GenerateToken(&Payload{ExternalID: "ext-123"}, "secret", -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, "secret")
	require.Error(t, err)
}
