package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetMinimumBalanceForRentExemption(
		ctx context.Context,
		dataSize uint64,
		commitment rpc.CommitmentType,
	) (uint64, error)

	GetLatestBlockhash(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (*rpc.GetLatestBlockhashResult, error)

	SendTransactionWithOpts(
		ctx context.Context,
		tx *solana.Transaction,
		opts rpc.TransactionOpts,
	) (solana.Signature, error)

	GetSignatureStatuses(
		ctx context.Context,
		searchTransactionHistory bool,
		signatures ...solana.Signature,
	) (*rpc.GetSignatureStatusesResult, error)
}

// classifyRPCError distinguishes a node that answered with an error from a
// node that could not be reached. A JSON-RPC error means the request made it
// to the node and was definitively rejected; anything else is transport-level.
func classifyRPCError(err error) error {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%w: %s", ErrLedgerRejected, rpcErr.Message)
	}
	return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
}

// commitmentFromString maps a configured commitment level onto the RPC type.
// Unknown values fall back to finalized, the strictest level.
func commitmentFromString(commitment string) rpc.CommitmentType {
	switch commitment {
	case "processed":
		return rpc.CommitmentProcessed
	case "confirmed":
		return rpc.CommitmentConfirmed
	default:
		return rpc.CommitmentFinalized
	}
}

// commitmentReached reports whether an observed confirmation status satisfies
// the target commitment level. Finalized satisfies confirmed, and so on down.
func commitmentReached(status rpc.ConfirmationStatusType, target rpc.CommitmentType) bool {
	rank := func(s rpc.ConfirmationStatusType) int {
		switch s {
		case rpc.ConfirmationStatusProcessed:
			return 1
		case rpc.ConfirmationStatusConfirmed:
			return 2
		case rpc.ConfirmationStatusFinalized:
			return 3
		}
		return 0
	}
	targetRank := 3
	switch target {
	case rpc.CommitmentProcessed:
		targetRank = 1
	case rpc.CommitmentConfirmed:
		targetRank = 2
	}
	return rank(status) >= targetRank
}
