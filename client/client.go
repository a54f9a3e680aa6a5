// Package client provides an HTTP client for the mintrelay wallet service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Keypair is a freshly generated keypair returned by the server.
type Keypair struct {
	Pubkey string `json:"pubkey"`
	Secret string `json:"secret"`
}

// SignedMessage is the result of signing a message.
type SignedMessage struct {
	Signature string `json:"signature"`
	PublicKey string `json:"publicKey"`
	Message   string `json:"message"`
}

// MintResult is the outcome of a successful mint creation.
type MintResult struct {
	MintAddress string `json:"mintAddress"`
	Signature   string `json:"signature"`
}

// Submission is a logged transaction submission.
type Submission struct {
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

// CreateTokenParams are the inputs for CreateToken.
type CreateTokenParams struct {
	MintAuthority   string
	Mint            string // base58 keypair of the new mint account
	Decimals        int
	Payer           string // optional base58 keypair; server payer used when empty
	FreezeAuthority string // optional base58 address
}

// SendTokenParams are the inputs for SendToken.
type SendTokenParams struct {
	Destination string
	Mint        string
	Owner       string // base58 keypair of the source owner
	Amount      uint64
}

// Client is the HTTP client for the mintrelay wallet service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new wallet service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		// Submissions block on confirmation, so the default timeout has to
		// cover the server's confirmation wait.
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// GenerateKeypair asks the server for a fresh keypair.
func (c *Client) GenerateKeypair(ctx context.Context) (*Keypair, error) {
	var kp Keypair
	if err := c.post(ctx, "/keypair", nil, &kp); err != nil {
		return nil, err
	}
	return &kp, nil
}

// SignMessage signs a message with the given base58-encoded keypair.
func (c *Client) SignMessage(ctx context.Context, message, secret string) (*SignedMessage, error) {
	reqBody := map[string]any{
		"message": message,
		"secret":  secret,
	}

	var signed SignedMessage
	if err := c.post(ctx, "/message/sign", reqBody, &signed); err != nil {
		return nil, err
	}

	c.logger.Debug("message signed", "pubkey", signed.PublicKey)
	return &signed, nil
}

// VerifyMessage checks a signature against a public key.
func (c *Client) VerifyMessage(ctx context.Context, message, signature, pubkey string) (bool, error) {
	reqBody := map[string]any{
		"message":   message,
		"signature": signature,
		"pubkey":    pubkey,
	}

	var result struct {
		Valid bool `json:"valid"`
	}
	if err := c.post(ctx, "/message/verify", reqBody, &result); err != nil {
		return false, err
	}
	return result.Valid, nil
}

// CreateToken creates and initializes a new token mint.
func (c *Client) CreateToken(ctx context.Context, params CreateTokenParams) (*MintResult, error) {
	reqBody := map[string]any{
		"mintAuthority": params.MintAuthority,
		"mint":          params.Mint,
		"decimals":      params.Decimals,
	}
	if params.Payer != "" {
		reqBody["payer"] = params.Payer
	}
	if params.FreezeAuthority != "" {
		reqBody["freezeAuthority"] = params.FreezeAuthority
	}

	// This endpoint returns the mint address and signature at the top level
	// rather than under data.
	body, err := c.doRequest(ctx, "POST", "/token/create", reqBody)
	if err != nil {
		return nil, err
	}

	var result MintResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("mint created", "mint", result.MintAddress, "signature", result.Signature)
	return &result, nil
}

// SendToken transfers tokens between the associated token accounts of two
// owners. Returns the transaction signature.
func (c *Client) SendToken(ctx context.Context, params SendTokenParams) (string, error) {
	reqBody := map[string]any{
		"destination": params.Destination,
		"mint":        params.Mint,
		"owner":       params.Owner,
		"amount":      params.Amount,
	}

	body, err := c.doRequest(ctx, "POST", "/send/token", reqBody)
	if err != nil {
		return "", err
	}

	var result struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("tokens sent", "signature", result.Signature)
	return result.Signature, nil
}

// ListTransactions retrieves logged submissions from the server.
func (c *Client) ListTransactions(ctx context.Context, limit, offset int) ([]*Submission, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	path := "/transactions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	body, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data struct {
			Transactions []*Submission `json:"transactions"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return envelope.Data.Transactions, nil
}

// Health checks whether the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}

// post sends a JSON request and decodes the data field of the standard
// success envelope into out.
func (c *Client) post(ctx context.Context, path string, reqBody any, out any) error {
	body, err := c.doRequest(ctx, "POST", path, reqBody)
	if err != nil {
		return err
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

// doRequest performs an HTTP request and returns the raw response body for
// 200 responses, or a parsed error otherwise.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

// APIError is a structured error returned by the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	// Signature is set on timeout responses so the caller can re-query the
	// true outcome before retrying.
	Signature string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// parseErrorResponse attempts to parse an error response from the server.
func parseErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Error     string `json:"error"`
		Message   string `json:"message"`
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", statusCode, string(body))
	}

	return &APIError{
		StatusCode: statusCode,
		Code:       errResp.Error,
		Message:    errResp.Message,
		Signature:  errResp.Signature,
	}
}
