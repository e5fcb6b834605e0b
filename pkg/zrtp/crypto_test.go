package zrtp

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiffieHellmanAgreement(t *testing.T) {
	a, err := generateKeyPair()
	require.NoError(t, err)
	b, err := generateKeyPair()
	require.NoError(t, err)

	secretA, err := a.sharedSecret(b.public)
	require.NoError(t, err)
	secretB, err := b.sharedSecret(a.public)
	require.NoError(t, err)

	require.Equal(t, secretA, secretB)
}

func TestHashChainLinking(t *testing.T) {
	c, err := newHashChain()
	require.NoError(t, err)

	require.NotEqual(t, c.H0, c.H1)
	require.NotEqual(t, c.H1, c.H2)
	require.NotEqual(t, c.H2, c.H3)

	require.Equal(t, sha256.Sum256(c.H0[:]), c.H1)
	require.Equal(t, sha256.Sum256(c.H1[:]), c.H2)
	require.Equal(t, sha256.Sum256(c.H2[:]), c.H3)
}

func TestDeriveSessionKeysDeterministic(t *testing.T) {
	s0 := []byte("shared-secret-material-of-some-length")
	zidA := []byte("aaaaaaaaaaaa")
	zidB := []byte("bbbbbbbbbbbb")

	k1, err := deriveSessionKeys(s0, zidA, zidB)
	require.NoError(t, err)
	k2, err := deriveSessionKeys(s0, zidA, zidB)
	require.NoError(t, err)

	require.Equal(t, k1.InitiatorSRTPKey, k2.InitiatorSRTPKey)
	require.NotEqual(t, k1.InitiatorSRTPKey, k1.ResponderSRTPKey)
}

func TestConfirmMACVerification(t *testing.T) {
	s0 := []byte("some-shared-secret")
	var h0 [hashSize]byte
	h0[0] = 1

	mac := confirmMAC(s0, h0)
	require.True(t, verifyConfirmMAC(s0, h0, mac))

	mac[0] ^= 0xFF
	require.False(t, verifyConfirmMAC(s0, h0, mac))
}
