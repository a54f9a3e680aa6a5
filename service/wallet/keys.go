package wallet

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Encoding errors for externally supplied key material. Handlers map these to
// the InvalidKeyEncoding / InvalidAddressEncoding / InvalidSignatureEncoding
// response codes, which are distinct from a verification mismatch (a plain
// false return).
var (
	ErrInvalidKeyEncoding       = errors.New("invalid key encoding")
	ErrInvalidAddressEncoding   = errors.New("invalid address encoding")
	ErrInvalidSignatureEncoding = errors.New("invalid signature encoding")
)

// Keypair is an ed25519 signing identity. The secret component lives only in
// memory for the duration of the request that created or supplied it; the
// service never persists it.
type Keypair struct {
	priv solana.PrivateKey
}

// Generate creates a fresh keypair from the system entropy source.
// Entropy failure is fatal at the process level, not a recoverable error.
func Generate() Keypair {
	priv, err := solana.NewRandomPrivateKey()
	if err != nil {
		panic(fmt.Sprintf("failed to generate keypair: %v", err))
	}
	return Keypair{priv: priv}
}

// FromBase58 decodes a base58-encoded 64-byte secret key.
func FromBase58(text string) (Keypair, error) {
	priv, err := solana.PrivateKeyFromBase58(text)
	if err != nil {
		return Keypair{}, fmt.Errorf("%w: %v", ErrInvalidKeyEncoding, err)
	}
	if len(priv) != ed25519.PrivateKeySize {
		return Keypair{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeyEncoding, ed25519.PrivateKeySize, len(priv))
	}
	return Keypair{priv: priv}, nil
}

// PublicKey returns the keypair's public address.
func (k Keypair) PublicKey() solana.PublicKey {
	return k.priv.PublicKey()
}

// String returns the reversible base58 encoding of the full secret key,
// suitable for transport in a JSON field. It round-trips through FromBase58.
func (k Keypair) String() string {
	return k.priv.String()
}

// PrivateKey exposes the underlying solana-go private key for transaction
// signing. Callers must not persist it.
func (k Keypair) PrivateKey() solana.PrivateKey {
	return k.priv
}

// SignMessage signs an arbitrary byte payload, including the empty payload.
func (k Keypair) SignMessage(message []byte) solana.Signature {
	sig, err := k.priv.Sign(message)
	if err != nil {
		// ed25519 signing over in-memory material cannot fail with a
		// well-formed 64-byte key, which FromBase58 and Generate guarantee.
		panic(fmt.Sprintf("failed to sign message: %v", err))
	}
	return sig
}

// Verify reports whether sig is a valid signature over message by the holder
// of pub. A mismatch is a normal false return, not an error.
func Verify(pub solana.PublicKey, sig solana.Signature, message []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pub.Bytes()), message, sig[:])
}

// PublicKeyFromBase58 parses a base58-encoded 32-byte address.
func PublicKeyFromBase58(text string) (solana.PublicKey, error) {
	pub, err := solana.PublicKeyFromBase58(text)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidAddressEncoding, err)
	}
	return pub, nil
}

// SignatureFromBase58 parses a base58-encoded 64-byte signature.
func SignatureFromBase58(text string) (solana.Signature, error) {
	sig, err := solana.SignatureFromBase58(text)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ErrInvalidSignatureEncoding, err)
	}
	return sig, nil
}
