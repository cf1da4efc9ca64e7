package etherscan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/PayFox/internal/pkg/env"
)

const (
	defaultAPIBaseURL = "https://api.etherscan.io/api"

	// USDT (ERC-20) mainnet contract
	defaultContractAddress = "0xdAC17F958D2ee523a2206206994597C13D831ec7"

	// StartBlockLatest asks the API to start from the chain head.
	StartBlockLatest = "latest"
)

// APIError is a non-success response or transport failure from the
// transfer-history API. Monitor tasks treat it as transient.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("etherscan: http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("etherscan: %s", e.Message)
}

// TokenTransfer is a single ERC-20 transfer record as reported by the API.
type TokenTransfer struct {
	Hash        string `json:"hash"`
	BlockNumber string `json:"blockNumber"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"` // amount in token minor units, decimal string
}

type tokenTxResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// API is the read surface the monitor polls. The external ledger is treated as
// eventually consistent and unreliable; callers absorb errors and retry on the
// next tick.
type API interface {
	TokenTransfers(ctx context.Context, startBlock string) ([]TokenTransfer, error)
}

// Client queries an Etherscan-compatible token-transfer endpoint for transfers
// to the merchant address, newest first.
type Client struct {
	APIKey          string
	ContractAddress string
	MerchantAddress string

	APIBaseURL string

	HTTPClient *http.Client
}

// NewClientFromEnv builds a client from ETHERSCAN_API_KEY, MERCHANT_ADDRESS
// and optional overrides.
func NewClientFromEnv() *Client {
	return &Client{
		APIKey:          strings.TrimSpace(env.GetEnv("ETHERSCAN_API_KEY", "")),
		ContractAddress: strings.TrimSpace(env.GetEnv("USDT_CONTRACT_ADDRESS", defaultContractAddress)),
		MerchantAddress: strings.TrimSpace(env.GetEnv("MERCHANT_ADDRESS", "")),
		APIBaseURL:      strings.TrimSpace(env.GetEnv("ETHERSCAN_API_BASE_URL", defaultAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// TokenTransfers fetches transfers to the merchant address from startBlock to
// the chain head, sorted descending by block. An empty result is not an error;
// anything else non-success is returned as *APIError.
func (c *Client) TokenTransfers(ctx context.Context, startBlock string) ([]TokenTransfer, error) {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("invalid base url: %v", err)}
	}

	q := u.Query()
	q.Set("module", "account")
	q.Set("action", "tokentx")
	q.Set("contractaddress", c.ContractAddress)
	q.Set("address", c.MerchantAddress)
	q.Set("startblock", startBlock)
	q.Set("endblock", "latest")
	q.Set("sort", "desc")
	q.Set("apikey", c.APIKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &APIError{Message: err.Error()}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &APIError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var parsed tokenTxResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &APIError{Message: fmt.Sprintf("malformed response: %v", err)}
	}

	if parsed.Status != "1" {
		// "No transactions found" is a normal empty window, not a failure.
		if strings.EqualFold(parsed.Message, "No transactions found") {
			return nil, nil
		}
		return nil, &APIError{Message: fmt.Sprintf("api status %q: %s", parsed.Status, parsed.Message)}
	}

	var transfers []TokenTransfer
	if err := json.Unmarshal(parsed.Result, &transfers); err != nil {
		return nil, &APIError{Message: fmt.Sprintf("malformed result: %v", err)}
	}
	return transfers, nil
}
