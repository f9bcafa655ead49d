package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ciphersock/internal/crypto"
)

func TestWrapUnwrap_RoundTrip(t *testing.T) {
	pub, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	assert.Contains(t, string(pub), "BEGIN PUBLIC KEY")

	sk := newKey(t)
	wrapped, err := crypto.WrapKey(pub, sk)
	require.NoError(t, err)
	assert.NotContains(t, string(wrapped), string(sk))

	got, err := crypto.UnwrapKey(priv, wrapped)
	require.NoError(t, err)
	assert.Equal(t, sk, got)
}

func TestGenerateKeyPair_Fresh(t *testing.T) {
	a, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	b, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, crypto.Fingerprint(a), crypto.Fingerprint(b))
}

func TestWrapKey_InvalidPublicKey(t *testing.T) {
	for _, garbage := range [][]byte{
		nil,
		[]byte("not a pem"),
		[]byte("-----BEGIN PUBLIC KEY-----\nAAAA\n-----END PUBLIC KEY-----\n"),
	} {
		_, err := crypto.WrapKey(garbage, newKey(t))
		assert.ErrorIs(t, err, crypto.ErrInvalidPublicKey)
	}
}

func TestUnwrapKey_WrongPrivateKey(t *testing.T) {
	pub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, otherPriv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	wrapped, err := crypto.WrapKey(pub, newKey(t))
	require.NoError(t, err)

	_, err = crypto.UnwrapKey(otherPriv, wrapped)
	assert.ErrorIs(t, err, crypto.ErrUnwrapFailed)

	_, err = crypto.UnwrapKey(otherPriv, []byte("garbage"))
	assert.ErrorIs(t, err, crypto.ErrUnwrapFailed)
}

func TestDeriveKEK(t *testing.T) {
	salt := make([]byte, crypto.SaltBytes)
	a, err := crypto.DeriveKEK("pass", salt)
	require.NoError(t, err)
	b, err := crypto.DeriveKEK("pass", salt)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, crypto.KeyBytes)

	_, err = crypto.DeriveKEK("pass", []byte("short"))
	assert.ErrorIs(t, err, crypto.ErrInvalidSalt)
}
