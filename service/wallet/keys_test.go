package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_ProducesDistinctKeypairs(t *testing.T) {
	a := Generate()
	b := Generate()

	assert.NotEqual(t, a.PublicKey(), b.PublicKey())
	assert.NotEqual(t, a.String(), b.String())
}

func TestFromBase58_RoundTrip(t *testing.T) {
	kp := Generate()

	decoded, err := FromBase58(kp.String())
	require.NoError(t, err)

	assert.Equal(t, kp.PublicKey(), decoded.PublicKey())
	assert.Equal(t, kp.String(), decoded.String())
}

func TestFromBase58_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not base58", "not-valid-base58-0OIl!!"},
		{"valid base58 but wrong length", "3yZe7d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromBase58(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidKeyEncoding)
		})
	}
}

func TestSignMessage_VerifyRoundTrip(t *testing.T) {
	kp := Generate()
	message := []byte("hello, solana")

	sig := kp.SignMessage(message)

	assert.True(t, Verify(kp.PublicKey(), sig, message))
}

func TestSignMessage_EmptyMessage(t *testing.T) {
	kp := Generate()

	// The empty payload is signable like any other
	sig := kp.SignMessage(nil)

	assert.True(t, Verify(kp.PublicKey(), sig, nil))
}

func TestVerify_WrongKeyIsFalseNotError(t *testing.T) {
	signer := Generate()
	other := Generate()
	message := []byte("payload")

	sig := signer.SignMessage(message)

	assert.False(t, Verify(other.PublicKey(), sig, message))
}

func TestVerify_TamperedMessage(t *testing.T) {
	kp := Generate()

	sig := kp.SignMessage([]byte("original"))

	assert.False(t, Verify(kp.PublicKey(), sig, []byte("tampered")))
}

func TestVerify_DeterministicSignature(t *testing.T) {
	// ed25519 signatures are deterministic: same key and message, same bytes.
	kp := Generate()
	message := []byte("stable input")

	sig1 := kp.SignMessage(message)
	sig2 := kp.SignMessage(message)

	assert.Equal(t, sig1, sig2)
}

func TestPublicKeyFromBase58_Malformed(t *testing.T) {
	_, err := PublicKeyFromBase58("!!not-an-address!!")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAddressEncoding)
}

func TestPublicKeyFromBase58_Valid(t *testing.T) {
	kp := Generate()

	pub, err := PublicKeyFromBase58(kp.PublicKey().String())
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), pub)
}

func TestSignatureFromBase58_Malformed(t *testing.T) {
	_, err := SignatureFromBase58("too-short")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSignatureEncoding)
}

func TestSignatureFromBase58_RoundTrip(t *testing.T) {
	kp := Generate()
	sig := kp.SignMessage([]byte("round trip"))

	parsed, err := SignatureFromBase58(sig.String())
	require.NoError(t, err)
	assert.Equal(t, sig, parsed)
}
