package ledger

import (
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"

	"github.com/mintrelay/mintrelay/service/wallet"
)

// The transaction lifecycle is Built -> Signed -> Submitted. Each stage is a
// distinct type so an unsigned transaction cannot be submitted: Assemble
// returns an UnsignedTransaction, Sign consumes it into a SignedTransaction,
// and Submit only accepts the latter.

// UnsignedTransaction is an assembled transaction in the Built state. It
// carries the recent blockhash fetched at assembly time; the blockhash
// expires after a network-defined window, so a transaction that times out
// must be reassembled, not reused.
type UnsignedTransaction struct {
	tx       *solana.Transaction
	feePayer solana.PublicKey
	required []solana.PublicKey
}

// FeePayer returns the designated fee payer address.
func (u *UnsignedTransaction) FeePayer() solana.PublicKey {
	return u.feePayer
}

// RequiredSigners returns the union of every account marked signer across all
// instructions plus the fee payer, in deterministic order.
func (u *UnsignedTransaction) RequiredSigners() []solana.PublicKey {
	out := make([]solana.PublicKey, len(u.required))
	copy(out, u.required)
	return out
}

// SignedTransaction is a fully signed transaction in the Signed state,
// carrying exactly one signature per required signer.
type SignedTransaction struct {
	tx       *solana.Transaction
	feePayer solana.PublicKey
}

// Signature returns the transaction identifier: the fee payer's signature
// over the serialized message.
func (s *SignedTransaction) Signature() solana.Signature {
	if len(s.tx.Signatures) == 0 {
		return solana.Signature{}
	}
	return s.tx.Signatures[0]
}

// newUnsignedTransaction assembles instructions into a transaction bound to
// the given blockhash and computes its required signer set.
func newUnsignedTransaction(instructions []solana.Instruction, feePayer solana.PublicKey, blockhash solana.Hash) (*UnsignedTransaction, error) {
	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(feePayer))
	if err != nil {
		return nil, fmt.Errorf("failed to assemble transaction: %w", err)
	}

	seen := map[solana.PublicKey]struct{}{feePayer: {}}
	required := []solana.PublicKey{feePayer}
	for _, ix := range instructions {
		for _, meta := range ix.Accounts() {
			if !meta.IsSigner {
				continue
			}
			if _, ok := seen[meta.PublicKey]; ok {
				continue
			}
			seen[meta.PublicKey] = struct{}{}
			required = append(required, meta.PublicKey)
		}
	}
	// Deterministic order past the fee payer keeps error messages stable.
	sort.Slice(required[1:], func(i, j int) bool {
		return required[i+1].String() < required[j+1].String()
	})

	return &UnsignedTransaction{
		tx:       tx,
		feePayer: feePayer,
		required: required,
	}, nil
}

// signTransaction transitions Built -> Signed. The supplied keypairs must
// cover the required signer set exactly: an uncovered required signer is
// ErrMissingSigner, an irrelevant extra keypair is ErrSignerMismatch.
func signTransaction(utx *UnsignedTransaction, signers []wallet.Keypair) (*SignedTransaction, error) {
	provided := make(map[solana.PublicKey]wallet.Keypair, len(signers))
	for _, kp := range signers {
		provided[kp.PublicKey()] = kp
	}

	requiredSet := make(map[solana.PublicKey]struct{}, len(utx.required))
	for _, pub := range utx.required {
		requiredSet[pub] = struct{}{}
		if _, ok := provided[pub]; !ok {
			return nil, fmt.Errorf("%w: no keypair for required signer %s", ErrMissingSigner, pub)
		}
	}
	for pub := range provided {
		if _, ok := requiredSet[pub]; !ok {
			return nil, fmt.Errorf("%w: keypair %s is not a required signer", ErrSignerMismatch, pub)
		}
	}

	if _, err := utx.tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if kp, ok := provided[key]; ok {
			priv := kp.PrivateKey()
			return &priv
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	return &SignedTransaction{tx: utx.tx, feePayer: utx.feePayer}, nil
}
