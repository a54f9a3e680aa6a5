package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/mintrelay/mintrelay/service/db"
	"github.com/mintrelay/mintrelay/service/ledger"
	"github.com/mintrelay/mintrelay/service/nats"
	"github.com/mintrelay/mintrelay/service/wallet"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for any signing request
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
	maxMessageLength   = 1 << 16 // signable message payloads
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// Error codes surfaced in the "error" field of failure responses.
const (
	codeInvalidKeyEncoding       = "InvalidKeyEncoding"
	codeInvalidAddressEncoding   = "InvalidAddressEncoding"
	codeInvalidSignatureEncoding = "InvalidSignatureEncoding"
	codeInvalidParameter         = "InvalidParameter"
	codeMissingSigner            = "MissingSigner"
	codeSignerMismatch           = "SignerMismatch"
	codeLedgerUnavailable        = "LedgerUnavailable"
	codeLedgerRejected           = "LedgerRejected"
	codeLedgerTimeout            = "LedgerTimeout"
	codeInternal                 = "InternalError"
)

// handleGenerateKeypair returns a handler that generates a fresh keypair.
// POST /keypair
func handleGenerateKeypair(logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kp := wallet.Generate()

		logger.Debug("keypair generated", "pubkey", kp.PublicKey().String())

		writeSuccess(w, map[string]any{
			"pubkey": kp.PublicKey().String(),
			"secret": kp.String(),
		}, http.StatusOK)
	})
}

// handleSignMessage returns a handler that signs an arbitrary message with a
// caller-supplied keypair. The secret exists only for the duration of the
// request and never appears in logs or responses.
// POST /message/sign
func handleSignMessage(logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Message string `json:"message"`
			Secret  string `json:"secret"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			return
		}

		if req.Secret == "" {
			writeError(w, codeInvalidKeyEncoding, "secret is required", http.StatusBadRequest)
			return
		}
		if len(req.Message) > maxMessageLength {
			writeError(w, codeInvalidParameter, "message too long", http.StatusBadRequest)
			return
		}

		kp, err := wallet.FromBase58(req.Secret)
		if err != nil {
			logger.Debug("sign request with malformed secret", "error", errors.Unwrap(err))
			writeError(w, codeInvalidKeyEncoding, "secret is not a valid base58-encoded keypair", http.StatusBadRequest)
			return
		}

		sig := kp.SignMessage([]byte(req.Message))

		writeSuccess(w, map[string]any{
			"signature": sig.String(),
			"publicKey": kp.PublicKey().String(),
			"message":   req.Message,
		}, http.StatusOK)
	})
}

// handleVerifyMessage returns a handler that verifies a signature against a
// public key. A well-formed signature that does not match is a normal
// valid:false response; malformed inputs are 400s with a distinct code.
// POST /message/verify
func handleVerifyMessage(logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Message   string `json:"message"`
			Signature string `json:"signature"`
			Pubkey    string `json:"pubkey"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			return
		}

		if req.Signature == "" {
			writeError(w, codeInvalidSignatureEncoding, "signature is required", http.StatusBadRequest)
			return
		}
		if err := validateAddress(req.Pubkey); err != nil {
			logger.Debug("verify request with invalid pubkey", "error", err)
			writeError(w, codeInvalidAddressEncoding, err.Error(), http.StatusBadRequest)
			return
		}

		pub, err := wallet.PublicKeyFromBase58(req.Pubkey)
		if err != nil {
			writeError(w, codeInvalidAddressEncoding, "pubkey is not a valid base58-encoded address", http.StatusBadRequest)
			return
		}
		sig, err := wallet.SignatureFromBase58(req.Signature)
		if err != nil {
			writeError(w, codeInvalidSignatureEncoding, "signature is not a valid base58-encoded signature", http.StatusBadRequest)
			return
		}

		valid := wallet.Verify(pub, sig, []byte(req.Message))

		writeSuccess(w, map[string]any{
			"valid": valid,
		}, http.StatusOK)
	})
}

// handleCreateToken returns a handler that creates and initializes a new
// token mint in a single atomic transaction.
// POST /token/create
//
// The mint field carries the new mint's base58-encoded keypair: the mint
// account must co-sign its own creation. The fee payer comes from the
// optional payer field or the service's configured payer keypair.
func handleCreateToken(svc *ledger.Service, servicePayer *wallet.Keypair, store *db.Store, publisher nats.Publisher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			MintAuthority   string `json:"mintAuthority"`
			Mint            string `json:"mint"`
			Decimals        *int   `json:"decimals"`
			Payer           string `json:"payer"`
			FreezeAuthority string `json:"freezeAuthority"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			return
		}

		// All input validation happens before any network call.
		if req.Decimals == nil {
			writeError(w, codeInvalidParameter, "decimals is required", http.StatusBadRequest)
			return
		}
		if err := validateAddress(req.MintAuthority); err != nil {
			writeError(w, codeInvalidAddressEncoding, fmt.Sprintf("invalid mintAuthority: %v", err), http.StatusBadRequest)
			return
		}
		mintAuthority, err := wallet.PublicKeyFromBase58(req.MintAuthority)
		if err != nil {
			writeError(w, codeInvalidAddressEncoding, "mintAuthority is not a valid base58-encoded address", http.StatusBadRequest)
			return
		}

		mintKeypair, err := wallet.FromBase58(req.Mint)
		if err != nil {
			writeError(w, codeInvalidKeyEncoding, "mint must be the new mint's base58-encoded keypair", http.StatusBadRequest)
			return
		}

		var freezeAuthority *solanago.PublicKey
		if req.FreezeAuthority != "" {
			pub, err := wallet.PublicKeyFromBase58(req.FreezeAuthority)
			if err != nil {
				writeError(w, codeInvalidAddressEncoding, "freezeAuthority is not a valid base58-encoded address", http.StatusBadRequest)
				return
			}
			freezeAuthority = &pub
		}

		payer := servicePayer
		if req.Payer != "" {
			kp, err := wallet.FromBase58(req.Payer)
			if err != nil {
				writeError(w, codeInvalidKeyEncoding, "payer is not a valid base58-encoded keypair", http.StatusBadRequest)
				return
			}
			payer = &kp
		}
		if payer == nil {
			writeError(w, codeMissingSigner, "no payer keypair supplied and no service payer configured", http.StatusBadRequest)
			return
		}

		mintAddr, receipt, err := svc.CreateAndInitializeMint(r.Context(), *payer, mintKeypair, mintAuthority, freezeAuthority, *req.Decimals)
		recordSubmission(r, store, publisher, logger, db.RecordSubmissionParams{
			Signature: receiptSignature(receipt),
			Kind:      "create_mint",
			Mint:      strPtr(mintKeypair.PublicKey().String()),
			FeePayer:  payer.PublicKey().String(),
			Slot:      receiptSlot(receipt),
		}, err)
		if err != nil {
			logger.Error("mint creation failed", "mint", mintKeypair.PublicKey().String(), "error", err)
			writeLedgerError(w, receipt, err)
			return
		}

		writeJSON(w, map[string]any{
			"success":     true,
			"mintAddress": mintAddr.String(),
			"signature":   receipt.Signature.String(),
		}, http.StatusOK)
	})
}

// handleSendToken returns a handler that transfers tokens between the
// associated token accounts of two owners.
// POST /send/token
//
// The owner field carries the source owner's base58-encoded keypair: the
// owner authorizes the transfer and pays the fee. Both token accounts must
// already exist; the node rejects transfers into missing accounts.
func handleSendToken(svc *ledger.Service, store *db.Store, publisher nats.Publisher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Destination string `json:"destination"`
			Mint        string `json:"mint"`
			Owner       string `json:"owner"`
			Amount      uint64 `json:"amount"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			return
		}

		if err := validateAddress(req.Destination); err != nil {
			writeError(w, codeInvalidAddressEncoding, fmt.Sprintf("invalid destination: %v", err), http.StatusBadRequest)
			return
		}
		destination, err := wallet.PublicKeyFromBase58(req.Destination)
		if err != nil {
			writeError(w, codeInvalidAddressEncoding, "destination is not a valid base58-encoded address", http.StatusBadRequest)
			return
		}

		if err := validateAddress(req.Mint); err != nil {
			writeError(w, codeInvalidAddressEncoding, fmt.Sprintf("invalid mint: %v", err), http.StatusBadRequest)
			return
		}
		mint, err := wallet.PublicKeyFromBase58(req.Mint)
		if err != nil {
			writeError(w, codeInvalidAddressEncoding, "mint is not a valid base58-encoded address", http.StatusBadRequest)
			return
		}

		owner, err := wallet.FromBase58(req.Owner)
		if err != nil {
			writeError(w, codeInvalidKeyEncoding, "owner must be the source owner's base58-encoded keypair", http.StatusBadRequest)
			return
		}

		receipt, err := svc.TransferTokens(r.Context(), owner, destination, mint, req.Amount)
		amount := int64(req.Amount)
		recordSubmission(r, store, publisher, logger, db.RecordSubmissionParams{
			Signature: receiptSignature(receipt),
			Kind:      "transfer",
			Mint:      strPtr(mint.String()),
			FeePayer:  owner.PublicKey().String(),
			Amount:    &amount,
			Slot:      receiptSlot(receipt),
		}, err)
		if err != nil {
			logger.Error("token transfer failed",
				"mint", mint.String(),
				"destination", destination.String(),
				"error", err,
			)
			writeLedgerError(w, receipt, err)
			return
		}

		writeJSON(w, map[string]any{
			"success":   true,
			"signature": receipt.Signature.String(),
		}, http.StatusOK)
	})
}

// handleListSubmissions returns a handler that lists logged submissions.
// GET /transactions?limit=N&offset=N
// Only available when a database store is configured.
func handleListSubmissions(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		limit := int32(100)
		if limitStr := query.Get("limit"); limitStr != "" {
			var parsed int
			if _, err := fmt.Sscanf(limitStr, "%d", &parsed); err != nil || parsed < 1 || parsed > 1000 {
				writeError(w, codeInvalidParameter, "limit must be an integer between 1 and 1000", http.StatusBadRequest)
				return
			}
			limit = int32(parsed)
		}

		offset := int32(0)
		if offsetStr := query.Get("offset"); offsetStr != "" {
			var parsed int
			if _, err := fmt.Sscanf(offsetStr, "%d", &parsed); err != nil || parsed < 0 {
				writeError(w, codeInvalidParameter, "offset must be a non-negative integer", http.StatusBadRequest)
				return
			}
			offset = int32(parsed)
		}

		subs, err := store.ListSubmissions(r.Context(), limit, offset)
		if err != nil {
			logger.Error("failed to list submissions", "error", err)
			writeError(w, codeInternal, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]submissionResponse, len(subs))
		for i, sub := range subs {
			resp[i] = submissionToResponse(sub)
		}

		writeSuccess(w, map[string]any{
			"transactions": resp,
		}, http.StatusOK)
	})
}

// submissionResponse is the JSON response format for a logged submission.
type submissionResponse struct {
	Signature string  `json:"signature"`
	Kind      string  `json:"kind"`
	Mint      *string `json:"mint,omitempty"`
	FeePayer  string  `json:"fee_payer"`
	Amount    *int64  `json:"amount,omitempty"`
	Slot      *int64  `json:"slot,omitempty"`
	Status    string  `json:"status"`
	Error     *string `json:"error,omitempty"`
	CreatedAt string  `json:"created_at"`
}

func submissionToResponse(s *db.Submission) submissionResponse {
	return submissionResponse{
		Signature: s.Signature,
		Kind:      s.Kind,
		Mint:      s.Mint,
		FeePayer:  s.FeePayer,
		Amount:    s.Amount,
		Slot:      s.Slot,
		Status:    s.Status,
		Error:     s.Error,
		CreatedAt: s.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// recordSubmission writes the outcome to the submission log and publishes an
// event, when those collaborators are configured. Both are best-effort: a
// logging failure must not mask the submission result.
func recordSubmission(r *http.Request, store *db.Store, publisher nats.Publisher, logger *slog.Logger, params db.RecordSubmissionParams, submitErr error) {
	if params.Signature == "" {
		// Nothing reached the network; there is no outcome to log.
		return
	}

	params.Status = outcomeStatus(submitErr)
	if submitErr != nil {
		params.Error = strPtr(submitErr.Error())
	}

	var sub *db.Submission
	if store != nil {
		var err error
		sub, err = store.RecordSubmission(r.Context(), params)
		if err != nil {
			logger.Error("failed to record submission", "signature", params.Signature, "error", err)
		}
	}

	if publisher != nil {
		if sub == nil {
			sub = &db.Submission{
				Signature: params.Signature,
				Kind:      params.Kind,
				Mint:      params.Mint,
				FeePayer:  params.FeePayer,
				Amount:    params.Amount,
				Slot:      params.Slot,
				Status:    params.Status,
				Error:     params.Error,
			}
		}
		if err := publisher.PublishSubmission(r.Context(), nats.FromSubmission(sub)); err != nil {
			logger.Error("failed to publish submission event", "signature", params.Signature, "error", err)
		}
	}
}

func outcomeStatus(err error) string {
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, ledger.ErrLedgerTimeout):
		return "timeout"
	default:
		return "rejected"
	}
}

// writeLedgerError maps a core error onto the HTTP contract: malformed or
// inconsistent input is a 400 with its taxonomy code, an unreachable node is
// 503, and everything that failed at the ledger is a 500. A timeout response
// includes the signature so the caller can re-query the true outcome.
func writeLedgerError(w http.ResponseWriter, receipt *ledger.Receipt, err error) {
	code := codeInternal
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, wallet.ErrInvalidKeyEncoding):
		code, status = codeInvalidKeyEncoding, http.StatusBadRequest
	case errors.Is(err, wallet.ErrInvalidAddressEncoding):
		code, status = codeInvalidAddressEncoding, http.StatusBadRequest
	case errors.Is(err, wallet.ErrInvalidSignatureEncoding):
		code, status = codeInvalidSignatureEncoding, http.StatusBadRequest
	case errors.Is(err, ledger.ErrInvalidParameter):
		code, status = codeInvalidParameter, http.StatusBadRequest
	case errors.Is(err, ledger.ErrMissingSigner):
		code, status = codeMissingSigner, http.StatusBadRequest
	case errors.Is(err, ledger.ErrSignerMismatch):
		code, status = codeSignerMismatch, http.StatusBadRequest
	case errors.Is(err, ledger.ErrLedgerUnavailable):
		code, status = codeLedgerUnavailable, http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrLedgerRejected):
		code, status = codeLedgerRejected, http.StatusInternalServerError
	case errors.Is(err, ledger.ErrLedgerTimeout):
		code, status = codeLedgerTimeout, http.StatusInternalServerError
	}

	resp := map[string]any{
		"success": false,
		"error":   code,
		"message": err.Error(),
	}
	if errors.Is(err, ledger.ErrLedgerTimeout) && receipt != nil {
		resp["signature"] = receipt.Signature.String()
	}
	writeJSON(w, resp, status)
}

// decodeJSON decodes the request body, writing a 400 response on failure.
// Returns a non-nil error when the response has already been written.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if strings.Contains(err.Error(), "http: request body too large") {
			writeError(w, codeInvalidParameter, "request body too large: maximum size is 1MB", http.StatusBadRequest)
			return err
		}
		writeError(w, codeInvalidParameter, "invalid request body: must be valid JSON", http.StatusBadRequest)
		return err
	}
	return nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes the standard success envelope.
func writeSuccess(w http.ResponseWriter, data any, statusCode int) {
	writeJSON(w, map[string]any{
		"success": true,
		"data":    data,
	}, statusCode)
}

// writeError writes the standard failure envelope.
func writeError(w http.ResponseWriter, code, message string, statusCode int) {
	writeJSON(w, map[string]any{
		"success": false,
		"error":   code,
		"message": message,
	}, statusCode)
}

// validateAddress validates a wallet address for security and format.
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return fmt.Errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	// Check for null bytes and control characters
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return fmt.Errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return fmt.Errorf("invalid address format: must contain only valid base58 characters")
	}

	return nil
}

func strPtr(s string) *string {
	return &s
}

func receiptSignature(receipt *ledger.Receipt) string {
	if receipt == nil {
		return ""
	}
	return receipt.Signature.String()
}

func receiptSlot(receipt *ledger.Receipt) *int64 {
	if receipt == nil || receipt.Slot == 0 {
		return nil
	}
	slot := int64(receipt.Slot)
	return &slot
}
