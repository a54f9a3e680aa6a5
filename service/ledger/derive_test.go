package ledger

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintrelay/mintrelay/service/wallet"
)

func TestDeriveTokenAccount_Deterministic(t *testing.T) {
	owner := wallet.Generate().PublicKey()
	mint := wallet.Generate().PublicKey()

	first, err := DeriveTokenAccount(owner, mint)
	require.NoError(t, err)
	second, err := DeriveTokenAccount(owner, mint)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDeriveTokenAccount_DistinctPerOwner(t *testing.T) {
	mint := wallet.Generate().PublicKey()
	ownerA := wallet.Generate().PublicKey()
	ownerB := wallet.Generate().PublicKey()

	addrA, err := DeriveTokenAccount(ownerA, mint)
	require.NoError(t, err)
	addrB, err := DeriveTokenAccount(ownerB, mint)
	require.NoError(t, err)

	assert.NotEqual(t, addrA, addrB)
}

func TestDeriveTokenAccount_DistinctPerMint(t *testing.T) {
	owner := wallet.Generate().PublicKey()
	mintA := wallet.Generate().PublicKey()
	mintB := wallet.Generate().PublicKey()

	addrA, err := DeriveTokenAccount(owner, mintA)
	require.NoError(t, err)
	addrB, err := DeriveTokenAccount(owner, mintB)
	require.NoError(t, err)

	assert.NotEqual(t, addrA, addrB)
}

func TestDeriveTokenAccount_NotAnInputKey(t *testing.T) {
	owner := wallet.Generate().PublicKey()
	mint := wallet.Generate().PublicKey()

	derived, err := DeriveTokenAccount(owner, mint)
	require.NoError(t, err)

	assert.NotEqual(t, owner, derived)
	assert.NotEqual(t, mint, derived)
	assert.NotEqual(t, solana.PublicKey{}, derived)
}

func TestDeriveTokenAccount_KnownVector(t *testing.T) {
	// USDC associated token account for a well-known wallet, checked against
	// the canonical derivation.
	owner := solana.MustPublicKeyFromBase58("9wFFyRfZBsuAha4YcuxcXLKwMxJR43S7fPfQLusDBzvT")
	mint := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	derived, err := DeriveTokenAccount(owner, mint)
	require.NoError(t, err)

	expected, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	assert.Equal(t, expected, derived)
}
