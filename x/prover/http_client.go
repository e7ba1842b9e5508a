package prover

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

	"github.com/rs/zerolog"

	"github.com/hyli-org/degen-party/log"
)

// Proof generation is slow; the default timeout is sized for it.
const defaultProveTimeout = 5 * time.Minute

// HTTPClient requests proofs from a proving service over REST.
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

// NewHTTPClient builds a client for the proving service at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPClientOption) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing prover base URL: %w", err)
	}
	h := &HTTPClient{
		baseURL: u,
		client:  &http.Client{Timeout: defaultProveTimeout},
		logger:  log.Logger.With().Str("component", "prover-client").Logger(),
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

type proveResponse struct {
	TxHash  string `json:"tx_hash"`
	Proof   string `json:"proof"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Prove submits the job and blocks until the service answers.
func (h *HTTPClient) Prove(ctx context.Context, job Job) (Artifact, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return Artifact{}, fmt.Errorf("encoding proof job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.buildURL("v1", "prove"), bytes.NewReader(payload))
	if err != nil {
		return Artifact{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	hash := job.Tx.Hash()
	h.logger.Debug().Stringer("tx", hash).Str("contract", string(job.Contract)).Msg("requesting proof")

	res, err := h.client.Do(req)
	if err != nil {
		return Artifact{}, fmt.Errorf("calling prover: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return Artifact{}, fmt.Errorf("prover returned status %d: %s", res.StatusCode, raw)
	}

	var out proveResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return Artifact{}, fmt.Errorf("decoding prover response: %w", err)
	}
	if !out.Success {
		return Artifact{}, fmt.Errorf("prover rejected job for tx %s: %s", hash, out.Error)
	}
	proof, err := base64.StdEncoding.DecodeString(out.Proof)
	if err != nil {
		return Artifact{}, fmt.Errorf("decoding proof: %w", err)
	}
	return Artifact{TxHash: hash, Proof: proof}, nil
}

var _ Prover = (*HTTPClient)(nil)
