package crypto_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ciphersock/internal/crypto"
)

func newKey(t *testing.T) []byte {
	t.Helper()
	key, err := crypto.NewSessionKey()
	require.NoError(t, err)
	require.Len(t, key, crypto.SessionKeyBytes)
	return key
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := newKey(t)
	for _, msg := range [][]byte{
		{},
		[]byte("hello"),
		bytes.Repeat([]byte{0xAB}, 64*1024),
	} {
		blob, err := crypto.Seal(key, msg)
		require.NoError(t, err)

		got, err := crypto.Open(key, blob)
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	}
}

func TestOpen_TamperedTagOrCiphertext(t *testing.T) {
	key := newKey(t)
	blob, err := crypto.Seal(key, []byte("attack at dawn"))
	require.NoError(t, err)

	env, err := crypto.ParseEnvelope(blob)
	require.NoError(t, err)
	start := len(blob) - len(env.Tag) - len(env.Ciphertext)

	for i := start; i < len(blob); i++ {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), blob...)
			mutated[i] ^= 1 << bit
			pt, err := crypto.Open(key, mutated)
			require.ErrorIs(t, err, crypto.ErrAuthenticationFailed, "byte %d bit %d", i, bit)
			require.Nil(t, pt)
		}
	}
}

func TestOpen_WrongKey(t *testing.T) {
	blob, err := crypto.Seal(newKey(t), []byte("secret"))
	require.NoError(t, err)

	_, err = crypto.Open(newKey(t), blob)
	assert.ErrorIs(t, err, crypto.ErrAuthenticationFailed)
}

func TestSeal_FreshNoncePerCall(t *testing.T) {
	key := newKey(t)
	msg := []byte("same plaintext")

	a, err := crypto.Seal(key, msg)
	require.NoError(t, err)
	b, err := crypto.Seal(key, msg)
	require.NoError(t, err)

	ea, err := crypto.ParseEnvelope(a)
	require.NoError(t, err)
	eb, err := crypto.ParseEnvelope(b)
	require.NoError(t, err)

	assert.NotEqual(t, ea.Nonce, eb.Nonce)
	assert.NotEqual(t, ea.Ciphertext, eb.Ciphertext)
}

func TestOpen_Malformed(t *testing.T) {
	key := newKey(t)
	cases := map[string][]byte{
		"empty":     nil,
		"short":     {1, 12},
		"version":   {9, 12, 16},
		"sizes":     {1, 4, 4, 0, 0, 0, 0, 0, 0, 0, 0},
		"truncated": append([]byte{1, 12, 16}, make([]byte, 20)...),
	}
	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := crypto.Open(key, blob)
			assert.ErrorIs(t, err, crypto.ErrMalformedEnvelope)
		})
	}
}

func TestSeal_InvalidKey(t *testing.T) {
	_, err := crypto.Seal(make([]byte, 16), []byte("x"))
	assert.ErrorIs(t, err, crypto.ErrInvalidKey)
}
