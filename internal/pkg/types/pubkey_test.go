package types

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubkey_Base58(t *testing.T) {
	p := PubkeyFromBase58("11111111111111111111111111111111")
	assert.True(t, p.IsZero())

	p, err := TryPubkeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	require.NoError(t, err)
	assert.Equal(t, "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", p.String())

	_, err = TryPubkeyFromBase58("abc")
	assert.Error(t, err)
	_, err = TryPubkeyFromBase58("0OIl")
	assert.Error(t, err)

	assert.Panics(t, func() { PubkeyFromBase58("not-base58!") })
}

func TestPubkey_TextRoundTrip(t *testing.T) {
	want := PubkeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	text, err := want.MarshalText()
	require.NoError(t, err)

	var got Pubkey
	require.NoError(t, got.UnmarshalText(text))
	assert.Equal(t, want, got)
}

func TestPubkey_IsOnCurve(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	p, err := PubkeyFromBytes(pub)
	require.NoError(t, err)
	assert.True(t, p.IsOnCurve())

	_, err = PubkeyFromBytes(pub[:31])
	assert.Error(t, err)
}

func TestSignature_Base58(t *testing.T) {
	var s Signature
	for i := range s {
		s[i] = byte(i)
	}
	parsed, err := SignatureFromBase58(s.String())
	require.NoError(t, err)
	assert.Equal(t, s, parsed)
	assert.Equal(t, s, SignatureFromSolana(s.ToSolana()))
}
