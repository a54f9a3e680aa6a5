package ledger

import "errors"

// Error taxonomy for the transaction core. Input errors are always detected
// before any network call; the three ledger errors classify how a network
// exchange failed and are surfaced to the caller verbatim, never retried.
var (
	// ErrInvalidParameter indicates a structurally valid but out-of-range
	// argument, e.g. mint decimals outside 0..255.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrMissingSigner indicates the supplied keypairs do not cover every
	// account marked as a signer (fee payer included).
	ErrMissingSigner = errors.New("missing signer")

	// ErrSignerMismatch indicates a supplied keypair is not among the
	// required signers. Extra signers are rejected rather than ignored so
	// configuration mistakes surface immediately.
	ErrSignerMismatch = errors.New("signer mismatch")

	// ErrLedgerUnavailable indicates the node could not be reached at all.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrLedgerRejected indicates the node returned a definitive rejection
	// (stale blockhash, insufficient balance, program error). Terminal.
	ErrLedgerRejected = errors.New("ledger rejected transaction")

	// ErrLedgerTimeout indicates confirmation did not arrive within the
	// bounded wait. The transaction's true outcome is unknown; callers must
	// re-query by signature before considering a retry, never resubmit the
	// same signed bytes.
	ErrLedgerTimeout = errors.New("ledger confirmation timeout")
)
