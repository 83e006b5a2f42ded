// Package beacon is an HTTP client for the drand randomness beacon REST
// API. Requests are tried across an ordered list of endpoint base URLs;
// the first success wins and only exhausting the whole list is an error.
package beacon

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// QuicknetChainHash identifies the drand quicknet chain, the unchained
// beacon recommended for timelock encryption.
const QuicknetChainHash = "52db9ba70e0cc0f6eaf7803dd07447a1f5477735fd3f661792ba94600c84e971"

// DefaultEndpoints are the drand API base URLs tried in order.
var DefaultEndpoints = []string{
	"https://api.drand.sh",
	"https://drand.cloudflare.com",
}

// HTTPDoer is the subset of http.Client the beacon client needs. It exists
// so tests can inject canned responses.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// UnavailableError means every configured endpoint failed for a request.
// This is distinct from a time lock still being active: the round may well
// be published but unreachable.
type UnavailableError struct {
	Round uint64
	Errs  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("beacon unavailable: all endpoints failed for round %d: %v", e.Round, e.Errs)
}

func (e *UnavailableError) Unwrap() error { return e.Errs }

// Info is the chain description served at /info.
type Info struct {
	Period      int    `json:"period"`
	GenesisTime int64  `json:"genesis_time"`
	Hash        string `json:"hash"`
	GroupHash   string `json:"groupHash"`
	SchemeID    string `json:"schemeID"`
	BeaconID    string `json:"beaconID"`
}

type publicResponse struct {
	Round      uint64 `json:"round"`
	Randomness string `json:"randomness"`
	Signature  string `json:"signature"`
}

// Client fetches beacon data with endpoint failover.
type Client struct {
	ChainHash  string
	Endpoints  []string
	HTTPClient HTTPDoer
	log        *zap.Logger
}

// NewClient creates a quicknet client over the default endpoints.
func NewClient(logger *zap.Logger) *Client {
	return NewClientWithDeps(http.DefaultClient, DefaultEndpoints, logger)
}

// NewClientWithDeps creates a client with injectable transport and
// endpoint list.
func NewClientWithDeps(httpClient HTTPDoer, endpoints []string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		ChainHash:  QuicknetChainHash,
		Endpoints:  endpoints,
		HTTPClient: httpClient,
		log:        logger,
	}
}

// FetchSignature returns the BLS signature for a round, trying each
// endpoint in order. Network and lookup failures are transient; only after
// all endpoints fail does it return an UnavailableError.
func (c *Client) FetchSignature(ctx context.Context, round uint64) ([]byte, error) {
	var errs error
	for _, endpoint := range c.Endpoints {
		url := fmt.Sprintf("%s/%s/public/%d", endpoint, c.ChainHash, round)
		resp, err := c.getPublic(ctx, url)
		if err != nil {
			c.log.Warn("beacon endpoint failed",
				zap.String("endpoint", endpoint),
				zap.Uint64("round", round),
				zap.Error(err))
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", endpoint, err))
			continue
		}
		sig, err := hex.DecodeString(resp.Signature)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: invalid signature encoding: %w", endpoint, err))
			continue
		}
		return sig, nil
	}
	return nil, &UnavailableError{Round: round, Errs: errs}
}

// LatestRound returns the most recently published round number.
func (c *Client) LatestRound(ctx context.Context) (uint64, error) {
	var errs error
	for _, endpoint := range c.Endpoints {
		url := fmt.Sprintf("%s/%s/public/latest", endpoint, c.ChainHash)
		resp, err := c.getPublic(ctx, url)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", endpoint, err))
			continue
		}
		return resp.Round, nil
	}
	return 0, &UnavailableError{Errs: errs}
}

// Info returns the chain parameters, trying each endpoint in order.
func (c *Client) Info(ctx context.Context) (*Info, error) {
	var errs error
	for _, endpoint := range c.Endpoints {
		url := fmt.Sprintf("%s/%s/info", endpoint, c.ChainHash)
		body, err := c.get(ctx, url)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", endpoint, err))
			continue
		}
		var info Info
		if err := json.Unmarshal(body, &info); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", endpoint, err))
			continue
		}
		return &info, nil
	}
	return nil, &UnavailableError{Errs: errs}
}

func (c *Client) getPublic(ctx context.Context, url string) (*publicResponse, error) {
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	var resp publicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("invalid beacon response: %w", err)
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
