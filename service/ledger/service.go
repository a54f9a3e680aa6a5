package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/mintrelay/mintrelay/service/metrics"
	"github.com/mintrelay/mintrelay/service/wallet"
)

// Service assembles, signs, and submits transactions against a Solana node.
// It wraps the RPC client with domain-specific operations and owns the
// confirmation wait. The RPC handle is safe for concurrent use and shared
// across requests; every transaction is exclusively owned by the request that
// assembled it, so no transaction-level locking exists here.
type Service struct {
	rpc            RPCClient
	commitment     rpc.CommitmentType
	confirmTimeout time.Duration
	pollInterval   time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
	endpoint       string // RPC endpoint identifier for metrics (e.g., rpc host)
}

// Options bounds the confirmation wait. Zero values fall back to defaults.
type Options struct {
	Commitment          string // "processed", "confirmed", or "finalized"
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration
}

// Receipt reports the outcome of a submitted transaction. On a confirmation
// timeout the Signature is still populated so callers can re-query the true
// outcome before considering a retry.
type Receipt struct {
	Signature solana.Signature
	Slot      uint64
}

// NewService creates a new ledger service.
// The endpoint parameter is used for metrics labeling (e.g., the RPC hostname).
// If m is nil, no metrics will be recorded.
func NewService(rpcClient RPCClient, endpoint string, opts Options, m *metrics.Metrics, logger *slog.Logger) *Service {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 60 * time.Second
	}
	if opts.ConfirmPollInterval <= 0 {
		opts.ConfirmPollInterval = 2 * time.Second
	}
	return &Service{
		rpc:            rpcClient,
		commitment:     commitmentFromString(opts.Commitment),
		confirmTimeout: opts.ConfirmTimeout,
		pollInterval:   opts.ConfirmPollInterval,
		logger:         logger,
		metrics:        m,
		endpoint:       endpoint,
	}
}

// MinimumRentExemption returns the minimum lamport balance that makes an
// account of the given size rent-exempt.
func (s *Service) MinimumRentExemption(ctx context.Context, space uint64) (uint64, error) {
	start := time.Now()
	lamports, err := s.rpc.GetMinimumBalanceForRentExemption(ctx, space, s.commitment)
	s.recordRPCCall("GetMinimumBalanceForRentExemption", start, err)
	if err != nil {
		return 0, classifyRPCError(err)
	}
	return lamports, nil
}

// Assemble combines one or more instructions into a transaction in the Built
// state, fetching a recent blockhash from the node. The blockhash binds the
// transaction to a freshness window; an expired transaction must be
// reassembled rather than reused.
func (s *Service) Assemble(ctx context.Context, instructions []solana.Instruction, feePayer solana.PublicKey) (*UnsignedTransaction, error) {
	if len(instructions) == 0 {
		return nil, fmt.Errorf("%w: transaction requires at least one instruction", ErrInvalidParameter)
	}

	start := time.Now()
	result, err := s.rpc.GetLatestBlockhash(ctx, s.commitment)
	s.recordRPCCall("GetLatestBlockhash", start, err)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to fetch recent blockhash", "error", err)
		return nil, classifyRPCError(err)
	}

	utx, err := newUnsignedTransaction(instructions, feePayer, result.Value.Blockhash)
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "assembled transaction",
		"fee_payer", feePayer.String(),
		"instructions", len(instructions),
		"required_signers", len(utx.required),
		"blockhash", result.Value.Blockhash.String(),
	)
	return utx, nil
}

// Sign transitions a transaction from Built to Signed. The signer set must
// cover every signer-tagged account plus the fee payer, with no extras.
func (s *Service) Sign(utx *UnsignedTransaction, signers ...wallet.Keypair) (*SignedTransaction, error) {
	return signTransaction(utx, signers)
}

// Submit sends a signed transaction to the node and blocks until the network
// reports it at the configured commitment level or the wait bound elapses.
// A definitive node rejection is terminal (ErrLedgerRejected) and is never
// retried here: resubmitting the same bytes with a stale blockhash is invalid,
// and resubmitting with a fresh one changes the transaction identity.
//
// The send itself runs on a context detached from the caller so an aborted
// request cannot leave ledger state ambiguous; the result is simply not
// delivered if the caller has gone away.
func (s *Service) Submit(ctx context.Context, stx *SignedTransaction) (*Receipt, error) {
	sendCtx := context.WithoutCancel(ctx)

	start := time.Now()
	sig, err := s.rpc.SendTransactionWithOpts(sendCtx, stx.tx, rpc.TransactionOpts{
		PreflightCommitment: s.commitment,
	})
	s.recordRPCCall("SendTransaction", start, err)
	if err != nil {
		s.logger.ErrorContext(ctx, "transaction submission failed",
			"fee_payer", stx.feePayer.String(),
			"error", err,
		)
		return nil, classifyRPCError(err)
	}

	s.logger.InfoContext(ctx, "transaction submitted",
		"signature", sig.String(),
		"fee_payer", stx.feePayer.String(),
	)

	receipt, err := s.awaitConfirmation(sendCtx, sig)
	if err != nil {
		return receipt, err
	}

	s.logger.InfoContext(ctx, "transaction confirmed",
		"signature", sig.String(),
		"slot", receipt.Slot,
	)
	return receipt, nil
}

// awaitConfirmation polls signature status until the configured commitment is
// reached, the node reports a failure, or the wait bound elapses. On timeout
// the returned receipt carries the signature so the caller can re-query.
func (s *Service) awaitConfirmation(ctx context.Context, sig solana.Signature) (*Receipt, error) {
	deadline := time.Now().Add(s.confirmTimeout)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		start := time.Now()
		result, err := s.rpc.GetSignatureStatuses(ctx, true, sig)
		s.recordRPCCall("GetSignatureStatuses", start, err)
		if err != nil {
			// A flaky status query does not change the transaction's fate;
			// keep polling until the deadline rather than failing early.
			s.logger.WarnContext(ctx, "signature status query failed",
				"signature", sig.String(),
				"error", err,
			)
		} else if len(result.Value) > 0 && result.Value[0] != nil {
			status := result.Value[0]
			if status.Err != nil {
				s.logger.ErrorContext(ctx, "transaction failed on ledger",
					"signature", sig.String(),
					"ledger_error", fmt.Sprintf("%v", status.Err),
				)
				return &Receipt{Signature: sig, Slot: status.Slot},
					fmt.Errorf("%w: %v", ErrLedgerRejected, status.Err)
			}
			if commitmentReached(status.ConfirmationStatus, s.commitment) {
				return &Receipt{Signature: sig, Slot: status.Slot}, nil
			}
		}

		if time.Now().After(deadline) {
			s.logger.WarnContext(ctx, "confirmation wait elapsed, outcome unknown",
				"signature", sig.String(),
				"timeout", s.confirmTimeout.String(),
			)
			return &Receipt{Signature: sig},
				fmt.Errorf("%w: no confirmation for %s within %s; re-query by signature before retrying", ErrLedgerTimeout, sig, s.confirmTimeout)
		}

		select {
		case <-ctx.Done():
			return &Receipt{Signature: sig}, fmt.Errorf("%w: %v", ErrLedgerTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// CreateAndInitializeMint creates a new fungible token mint: a CreateAccount
// and an InitializeMint instruction in one atomic transaction, so either the
// mint account exists fully initialized or not at all. Parameters are
// validated before any network call. Returns the mint address and a receipt.
func (s *Service) CreateAndInitializeMint(
	ctx context.Context,
	payer, mint wallet.Keypair,
	mintAuthority solana.PublicKey,
	freezeAuthority *solana.PublicKey,
	decimals int,
) (solana.PublicKey, *Receipt, error) {
	mintAddr := mint.PublicKey()

	// Fail fast on bad parameters before touching the network.
	initIx, err := BuildInitializeMint(mintAddr, mintAuthority, freezeAuthority, decimals)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}

	lamports, err := s.MinimumRentExemption(ctx, MintAccountSize)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}

	createIx := BuildCreateAccount(payer.PublicKey(), mintAddr, lamports, MintAccountSize, solana.TokenProgramID)

	utx, err := s.Assemble(ctx, []solana.Instruction{createIx, initIx}, payer.PublicKey())
	if err != nil {
		return solana.PublicKey{}, nil, err
	}

	// The new mint account signs its own creation; the payer signs as fee
	// payer and funder. The mint authority appears only in instruction data.
	stx, err := s.Sign(utx, payer, mint)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}

	waitStart := time.Now()
	receipt, err := s.Submit(ctx, stx)
	s.recordSubmission("create_mint", waitStart, err)
	if err != nil {
		return solana.PublicKey{}, receipt, err
	}

	s.logger.InfoContext(ctx, "mint created",
		"mint", mintAddr.String(),
		"authority", mintAuthority.String(),
		"decimals", decimals,
		"signature", receipt.Signature.String(),
	)
	return mintAddr, receipt, nil
}

// TransferTokens moves amount base units of mint from the owner's associated
// token account to the destination owner's. Both token accounts must already
// exist; a missing account surfaces as a node rejection. The owner authorizes
// the transfer and pays the fee.
func (s *Service) TransferTokens(
	ctx context.Context,
	owner wallet.Keypair,
	destinationOwner solana.PublicKey,
	mint solana.PublicKey,
	amount uint64,
) (*Receipt, error) {
	source, err := DeriveTokenAccount(owner.PublicKey(), mint)
	if err != nil {
		return nil, err
	}
	destination, err := DeriveTokenAccount(destinationOwner, mint)
	if err != nil {
		return nil, err
	}

	ix := BuildTransfer(source, destination, owner.PublicKey(), amount)

	utx, err := s.Assemble(ctx, []solana.Instruction{ix}, owner.PublicKey())
	if err != nil {
		return nil, err
	}

	stx, err := s.Sign(utx, owner)
	if err != nil {
		return nil, err
	}

	waitStart := time.Now()
	receipt, err := s.Submit(ctx, stx)
	s.recordSubmission("transfer", waitStart, err)
	if err != nil {
		return receipt, err
	}

	s.logger.InfoContext(ctx, "tokens transferred",
		"source", source.String(),
		"destination", destination.String(),
		"mint", mint.String(),
		"amount", amount,
		"signature", receipt.Signature.String(),
	)
	return receipt, nil
}

func (s *Service) recordRPCCall(method string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordRPCCall(method, status, s.endpoint, time.Since(start).Seconds())
}

func (s *Service) recordSubmission(kind string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordSubmission(kind, submissionOutcome(err))
	s.metrics.RecordConfirmationWait(kind, time.Since(start).Seconds())
}

func submissionOutcome(err error) string {
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, ErrLedgerRejected):
		return "rejected"
	case errors.Is(err, ErrLedgerTimeout):
		return "timeout"
	case errors.Is(err, ErrLedgerUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
