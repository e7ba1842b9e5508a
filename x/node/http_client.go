package node

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/hyli-org/degen-party/log"
	"github.com/hyli-org/degen-party/x/contract"
)

const defaultRequestTimeout = 30 * time.Second

// HTTPClient talks to a ledger node over its REST API.
type HTTPClient struct {
	baseURL *url.URL
	client  *http.Client
	logger  zerolog.Logger
}

// HTTPClientOption configures an HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(c *http.Client) HTTPClientOption {
	return func(h *HTTPClient) {
		h.client = c
	}
}

// NewHTTPClient builds a client for the node at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPClientOption) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing node base URL: %w", err)
	}

	h := &HTTPClient{
		baseURL: u,
		client:  &http.Client{Timeout: defaultRequestTimeout},
		logger:  log.Logger.With().Str("component", "node-client").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *HTTPClient) buildURL(parts ...string) string {
	u := *h.baseURL
	u.Path = path.Join(append([]string{u.Path}, parts...)...)
	return u.String()
}

type submitTxRequest struct {
	Tx contract.Transaction `json:"tx"`
}

type submitTxResponse struct {
	TxHash  string `json:"tx_hash"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SubmitTransaction sends a blob transaction to the node.
func (h *HTTPClient) SubmitTransaction(ctx context.Context, tx contract.Transaction) (common.Hash, error) {
	var res submitTxResponse
	if err := h.do(ctx, http.MethodPost, h.buildURL("v1", "tx", "send", "blob"), submitTxRequest{Tx: tx}, &res); err != nil {
		return common.Hash{}, err
	}
	if !res.Success {
		return common.Hash{}, fmt.Errorf("node rejected transaction: %s", res.Error)
	}
	return common.HexToHash(res.TxHash), nil
}

type contractStateResponse struct {
	Name       string `json:"name"`
	Commitment string `json:"state_commitment"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// GetContractState fetches a contract's current state commitment.
func (h *HTTPClient) GetContractState(ctx context.Context, name contract.ContractName) ([]byte, error) {
	var res contractStateResponse
	if err := h.do(ctx, http.MethodGet, h.buildURL("v1", "contract", string(name)), nil, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("fetching contract %q: %s", name, res.Error)
	}
	commitment, err := base64.StdEncoding.DecodeString(res.Commitment)
	if err != nil {
		return nil, fmt.Errorf("decoding commitment for %q: %w", name, err)
	}
	return commitment, nil
}

type chainHeightResponse struct {
	Height  uint64 `json:"height"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// GetChainHeight returns the node's current block height.
func (h *HTTPClient) GetChainHeight(ctx context.Context) (contract.BlockHeight, error) {
	var res chainHeightResponse
	if err := h.do(ctx, http.MethodGet, h.buildURL("v1", "chain", "height"), nil, &res); err != nil {
		return 0, err
	}
	if !res.Success {
		return 0, fmt.Errorf("fetching chain height: %s", res.Error)
	}
	return contract.BlockHeight(res.Height), nil
}

type blockResponse struct {
	Block   *NewBlock `json:"block"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// GetBlock fetches a block by height.
func (h *HTTPClient) GetBlock(ctx context.Context, height contract.BlockHeight) (*NewBlock, error) {
	var res blockResponse
	if err := h.do(ctx, http.MethodGet, h.buildURL("v1", "block", fmt.Sprintf("%d", height)), nil, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("fetching block %d: %s", height, res.Error)
	}
	if res.Block == nil {
		return nil, fmt.Errorf("fetching block %d: empty response", height)
	}
	return res.Block, nil
}

type registerContractRequest struct {
	Name       string `json:"name"`
	Commitment string `json:"state_commitment"`
}

type registerContractResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RegisterContract registers a contract with its genesis commitment.
func (h *HTTPClient) RegisterContract(ctx context.Context, name contract.ContractName, commitment []byte) error {
	req := registerContractRequest{
		Name:       string(name),
		Commitment: base64.StdEncoding.EncodeToString(commitment),
	}
	var res registerContractResponse
	if err := h.do(ctx, http.MethodPost, h.buildURL("v1", "contract", "register"), req, &res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("registering contract %q: %s", name, res.Error)
	}
	return nil
}

// ContractRegistered reports whether the node knows the contract.
func (h *HTTPClient) ContractRegistered(ctx context.Context, name contract.ContractName) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.buildURL("v1", "contract", string(name)), nil)
	if err != nil {
		return false, fmt.Errorf("building request: %w", err)
	}
	res, err := h.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("querying contract %q: %w", name, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return false, fmt.Errorf("querying contract %q: status %d: %s", name, res.StatusCode, body)
	}
	return true, nil
}

func (h *HTTPClient) do(ctx context.Context, method, endpoint string, reqBody, resBody any) error {
	var body io.Reader
	if reqBody != nil {
		payload, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	h.logger.Trace().Str("method", method).Str("url", endpoint).Msg("node request")

	res, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling node: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("node returned status %d: %s", res.StatusCode, raw)
	}

	if err := json.NewDecoder(res.Body).Decode(resBody); err != nil {
		return fmt.Errorf("decoding node response: %w", err)
	}
	return nil
}
