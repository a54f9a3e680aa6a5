package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// DeriveTokenAccount computes the associated token account address for an
// owner and mint. The derivation is pure and deterministic: the address is
// found by hashing the fixed seed sequence (owner, token program, mint) with
// a bump byte that keeps the result off the ed25519 curve, so no party holds
// a private key for it. Any holder of the same inputs derives the same
// address.
func DeriveTokenAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive token account for owner %s mint %s: %w", owner, mint, err)
	}
	return addr, nil
}
