package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintrelay/mintrelay/service/wallet"
)

// mockRPCClient implements RPCClient for testing. Behavior is configured per
// method; every call is counted so tests can assert nothing hit the network.
type mockRPCClient struct {
	mu    sync.Mutex
	calls map[string]int

	rentLamports uint64
	rentErr      error

	blockhash    solana.Hash
	blockhashErr error

	sendSig solana.Signature
	sendErr error

	status    *rpc.SignatureStatusesResult
	statusErr error
}

func (m *mockRPCClient) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
}

func (m *mockRPCClient) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

func (m *mockRPCClient) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error) {
	m.record("GetMinimumBalanceForRentExemption")
	if m.rentErr != nil {
		return 0, m.rentErr
	}
	return m.rentLamports, nil
}

func (m *mockRPCClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	m.record("GetLatestBlockhash")
	if m.blockhashErr != nil {
		return nil, m.blockhashErr
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash:            m.blockhash,
			LastValidBlockHeight: 1000,
		},
	}, nil
}

func (m *mockRPCClient) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	m.record("SendTransaction")
	if m.sendErr != nil {
		return solana.Signature{}, m.sendErr
	}
	return m.sendSig, nil
}

func (m *mockRPCClient) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	m.record("GetSignatureStatuses")
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return &rpc.GetSignatureStatusesResult{
		Value: []*rpc.SignatureStatusesResult{m.status},
	}, nil
}

func newTestService(mock *mockRPCClient, opts Options) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(mock, "test", opts, nil, logger)
}

func testSignature(t *testing.T) solana.Signature {
	t.Helper()
	return wallet.Generate().SignMessage([]byte("test transaction"))
}

func confirmedMock(t *testing.T) *mockRPCClient {
	t.Helper()
	return &mockRPCClient{
		rentLamports: 1461600,
		blockhash:    solana.Hash(wallet.Generate().PublicKey()),
		sendSig:      testSignature(t),
		status: &rpc.SignatureStatusesResult{
			Slot:               12345,
			ConfirmationStatus: rpc.ConfirmationStatusFinalized,
		},
	}
}

func TestAssemble_EmptyInstructionList(t *testing.T) {
	mock := &mockRPCClient{}
	svc := newTestService(mock, Options{})

	_, err := svc.Assemble(context.Background(), nil, wallet.Generate().PublicKey())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Equal(t, 0, mock.totalCalls(), "no RPC call for an invalid request")
}

func TestAssemble_RequiredSigners(t *testing.T) {
	mock := confirmedMock(t)
	svc := newTestService(mock, Options{})

	owner := wallet.Generate()
	payer := wallet.Generate()
	source := wallet.Generate().PublicKey()
	destination := wallet.Generate().PublicKey()

	ix := BuildTransfer(source, destination, owner.PublicKey(), 100)

	utx, err := svc.Assemble(context.Background(), []solana.Instruction{ix}, payer.PublicKey())
	require.NoError(t, err)

	signers := utx.RequiredSigners()
	require.Len(t, signers, 2)
	assert.Equal(t, payer.PublicKey(), signers[0], "fee payer comes first")
	assert.Contains(t, signers, owner.PublicKey())
	assert.Equal(t, payer.PublicKey(), utx.FeePayer())
}

func TestAssemble_NodeUnreachable(t *testing.T) {
	mock := &mockRPCClient{blockhashErr: errors.New("connection refused")}
	svc := newTestService(mock, Options{})

	ix := BuildTransfer(
		wallet.Generate().PublicKey(),
		wallet.Generate().PublicKey(),
		wallet.Generate().PublicKey(),
		1,
	)

	_, err := svc.Assemble(context.Background(), []solana.Instruction{ix}, wallet.Generate().PublicKey())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
}

func TestSign_MissingSigner(t *testing.T) {
	mock := confirmedMock(t)
	svc := newTestService(mock, Options{})

	owner := wallet.Generate()
	payer := wallet.Generate()
	ix := BuildTransfer(
		wallet.Generate().PublicKey(),
		wallet.Generate().PublicKey(),
		owner.PublicKey(),
		100,
	)

	utx, err := svc.Assemble(context.Background(), []solana.Instruction{ix}, payer.PublicKey())
	require.NoError(t, err)

	// Only the payer signs; the owner's signature is missing
	_, err = svc.Sign(utx, payer)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingSigner)
}

func TestSign_ExtraSignerIsMismatch(t *testing.T) {
	mock := confirmedMock(t)
	svc := newTestService(mock, Options{})

	owner := wallet.Generate()
	stranger := wallet.Generate()
	ix := BuildTransfer(
		wallet.Generate().PublicKey(),
		wallet.Generate().PublicKey(),
		owner.PublicKey(),
		100,
	)

	utx, err := svc.Assemble(context.Background(), []solana.Instruction{ix}, owner.PublicKey())
	require.NoError(t, err)

	_, err = svc.Sign(utx, owner, stranger)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSignerMismatch)
}

func TestSign_ExactCoverage(t *testing.T) {
	mock := confirmedMock(t)
	svc := newTestService(mock, Options{})

	owner := wallet.Generate()
	ix := BuildTransfer(
		wallet.Generate().PublicKey(),
		wallet.Generate().PublicKey(),
		owner.PublicKey(),
		100,
	)

	utx, err := svc.Assemble(context.Background(), []solana.Instruction{ix}, owner.PublicKey())
	require.NoError(t, err)

	stx, err := svc.Sign(utx, owner)
	require.NoError(t, err)

	assert.Equal(t, owner.PublicKey(), stx.feePayer)
	assert.NotEqual(t, solana.Signature{}, stx.Signature())
}

func TestSubmit_Confirmed(t *testing.T) {
	mock := confirmedMock(t)
	svc := newTestService(mock, Options{ConfirmPollInterval: time.Millisecond})

	owner := wallet.Generate()
	stx := signedTransfer(t, svc, owner)

	receipt, err := svc.Submit(context.Background(), stx)

	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, mock.sendSig, receipt.Signature)
	assert.Equal(t, uint64(12345), receipt.Slot)
}

func TestSubmit_NodeRejection(t *testing.T) {
	mock := confirmedMock(t)
	mock.sendErr = &jsonrpc.RPCError{Code: -32002, Message: "Transaction simulation failed"}
	svc := newTestService(mock, Options{})

	owner := wallet.Generate()
	stx := signedTransfer(t, svc, owner)

	_, err := svc.Submit(context.Background(), stx)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLedgerRejected)
	assert.Contains(t, err.Error(), "simulation failed")
}

func TestSubmit_TransportFailure(t *testing.T) {
	mock := confirmedMock(t)
	mock.sendErr = errors.New("dial tcp: connection refused")
	svc := newTestService(mock, Options{})

	owner := wallet.Generate()
	stx := signedTransfer(t, svc, owner)

	_, err := svc.Submit(context.Background(), stx)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
}

func TestSubmit_FailedOnLedger(t *testing.T) {
	mock := confirmedMock(t)
	mock.status = &rpc.SignatureStatusesResult{
		Slot: 999,
		Err:  map[string]any{"InstructionError": []any{float64(0), "InsufficientFunds"}},
	}
	svc := newTestService(mock, Options{ConfirmPollInterval: time.Millisecond})

	owner := wallet.Generate()
	stx := signedTransfer(t, svc, owner)

	receipt, err := svc.Submit(context.Background(), stx)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLedgerRejected)
	// The receipt still identifies the failed transaction
	require.NotNil(t, receipt)
	assert.Equal(t, mock.sendSig, receipt.Signature)
}

func TestSubmit_ConfirmationTimeout(t *testing.T) {
	mock := confirmedMock(t)
	mock.status = nil // signature never observed
	svc := newTestService(mock, Options{
		ConfirmTimeout:      20 * time.Millisecond,
		ConfirmPollInterval: 5 * time.Millisecond,
	})

	owner := wallet.Generate()
	stx := signedTransfer(t, svc, owner)

	receipt, err := svc.Submit(context.Background(), stx)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLedgerTimeout)
	// On timeout the outcome is unknown, not failed; the caller gets the
	// signature to re-query before considering a retry.
	require.NotNil(t, receipt)
	assert.Equal(t, mock.sendSig, receipt.Signature)
	assert.Contains(t, err.Error(), "re-query")
}

func TestSubmit_KeepsPollingThroughFlakyStatusQueries(t *testing.T) {
	mock := confirmedMock(t)
	mock.statusErr = errors.New("transient status failure")
	svc := newTestService(mock, Options{
		ConfirmTimeout:      20 * time.Millisecond,
		ConfirmPollInterval: 5 * time.Millisecond,
	})

	owner := wallet.Generate()
	stx := signedTransfer(t, svc, owner)

	// Status queries fail every time; this must surface as a timeout with
	// the signature, not an early hard failure.
	receipt, err := svc.Submit(context.Background(), stx)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLedgerTimeout)
	require.NotNil(t, receipt)
	assert.Equal(t, mock.sendSig, receipt.Signature)
}

func TestCreateAndInitializeMint_Confirmed(t *testing.T) {
	mock := confirmedMock(t)
	svc := newTestService(mock, Options{ConfirmPollInterval: time.Millisecond})

	payer := wallet.Generate()
	mint := wallet.Generate()
	authority := wallet.Generate().PublicKey()

	mintAddr, receipt, err := svc.CreateAndInitializeMint(context.Background(), payer, mint, authority, nil, 6)

	require.NoError(t, err)
	assert.Equal(t, mint.PublicKey(), mintAddr)
	require.NotNil(t, receipt)
	assert.Equal(t, mock.sendSig, receipt.Signature)

	// One rent query, one blockhash fetch, one send, then confirmation polls
	assert.Equal(t, 1, mock.calls["GetMinimumBalanceForRentExemption"])
	assert.Equal(t, 1, mock.calls["GetLatestBlockhash"])
	assert.Equal(t, 1, mock.calls["SendTransaction"])
}

func TestCreateAndInitializeMint_InvalidDecimalsSkipsNetwork(t *testing.T) {
	mock := confirmedMock(t)
	svc := newTestService(mock, Options{})

	payer := wallet.Generate()
	mint := wallet.Generate()
	authority := wallet.Generate().PublicKey()

	_, _, err := svc.CreateAndInitializeMint(context.Background(), payer, mint, authority, nil, 300)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Equal(t, 0, mock.totalCalls(), "parameter validation precedes all RPC calls")
}

func TestCreateAndInitializeMint_RentQueryFailure(t *testing.T) {
	mock := confirmedMock(t)
	mock.rentErr = errors.New("connection reset")
	svc := newTestService(mock, Options{})

	payer := wallet.Generate()
	mint := wallet.Generate()
	authority := wallet.Generate().PublicKey()

	_, _, err := svc.CreateAndInitializeMint(context.Background(), payer, mint, authority, nil, 6)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
	assert.Equal(t, 0, mock.calls["SendTransaction"], "nothing submitted after a failed rent query")
}

func TestTransferTokens_Confirmed(t *testing.T) {
	mock := confirmedMock(t)
	svc := newTestService(mock, Options{ConfirmPollInterval: time.Millisecond})

	owner := wallet.Generate()
	destinationOwner := wallet.Generate().PublicKey()
	mint := wallet.Generate().PublicKey()

	receipt, err := svc.TransferTokens(context.Background(), owner, destinationOwner, mint, 1_000_000)

	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, mock.sendSig, receipt.Signature)
	assert.Equal(t, 1, mock.calls["SendTransaction"])
}

func TestTransferTokens_RejectedAtSend(t *testing.T) {
	mock := confirmedMock(t)
	mock.sendErr = &jsonrpc.RPCError{Code: -32002, Message: "invalid account data"}
	svc := newTestService(mock, Options{})

	owner := wallet.Generate()
	receipt, err := svc.TransferTokens(context.Background(), owner, wallet.Generate().PublicKey(), wallet.Generate().PublicKey(), 5)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLedgerRejected)
	assert.Nil(t, receipt)
	// A definitive rejection is never retried
	assert.Equal(t, 1, mock.calls["SendTransaction"])
}

func TestMinimumRentExemption(t *testing.T) {
	mock := confirmedMock(t)
	svc := newTestService(mock, Options{})

	lamports, err := svc.MinimumRentExemption(context.Background(), MintAccountSize)

	require.NoError(t, err)
	assert.Equal(t, uint64(1461600), lamports)
}

func TestCommitmentReached(t *testing.T) {
	tests := []struct {
		name    string
		status  rpc.ConfirmationStatusType
		target  rpc.CommitmentType
		reached bool
	}{
		{"finalized satisfies finalized", rpc.ConfirmationStatusFinalized, rpc.CommitmentFinalized, true},
		{"finalized satisfies confirmed", rpc.ConfirmationStatusFinalized, rpc.CommitmentConfirmed, true},
		{"confirmed does not satisfy finalized", rpc.ConfirmationStatusConfirmed, rpc.CommitmentFinalized, false},
		{"confirmed satisfies confirmed", rpc.ConfirmationStatusConfirmed, rpc.CommitmentConfirmed, true},
		{"processed satisfies processed", rpc.ConfirmationStatusProcessed, rpc.CommitmentProcessed, true},
		{"processed does not satisfy confirmed", rpc.ConfirmationStatusProcessed, rpc.CommitmentConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.reached, commitmentReached(tt.status, tt.target))
		})
	}
}

func TestCommitmentFromString_UnknownFallsBackToFinalized(t *testing.T) {
	assert.Equal(t, rpc.CommitmentFinalized, commitmentFromString("bogus"))
	assert.Equal(t, rpc.CommitmentProcessed, commitmentFromString("processed"))
	assert.Equal(t, rpc.CommitmentConfirmed, commitmentFromString("confirmed"))
	assert.Equal(t, rpc.CommitmentFinalized, commitmentFromString("finalized"))
}

// signedTransfer assembles and signs a single-instruction transfer where the
// owner is also the fee payer.
func signedTransfer(t *testing.T, svc *Service, owner wallet.Keypair) *SignedTransaction {
	t.Helper()

	ix := BuildTransfer(
		wallet.Generate().PublicKey(),
		wallet.Generate().PublicKey(),
		owner.PublicKey(),
		100,
	)

	utx, err := svc.Assemble(context.Background(), []solana.Instruction{ix}, owner.PublicKey())
	require.NoError(t, err)

	stx, err := svc.Sign(utx, owner)
	require.NoError(t, err)
	return stx
}
