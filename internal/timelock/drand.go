package timelock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/drand/tlock"
	thttp "github.com/drand/tlock/networks/http"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"timelocker/internal/beacon"
)

// DrandBox is the production Box. It performs tlock encryption against the
// drand quicknet chain, trying each configured endpoint in order. The tlock
// network handle fetches the round signature itself, so failover wraps the
// whole encrypt or decrypt attempt per endpoint.
type DrandBox struct {
	ChainHash string
	Endpoints []string
	log       *zap.Logger
}

// NewDrandBox creates a quicknet box over the default endpoints.
func NewDrandBox(logger *zap.Logger) *DrandBox {
	return NewDrandBoxWithEndpoints(beacon.DefaultEndpoints, logger)
}

// NewDrandBoxWithEndpoints creates a box over an explicit endpoint list.
func NewDrandBoxWithEndpoints(endpoints []string, logger *zap.Logger) *DrandBox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DrandBox{
		ChainHash: beacon.QuicknetChainHash,
		Endpoints: endpoints,
		log:       logger,
	}
}

// Encrypt time-locks data to the target round.
func (d *DrandBox) Encrypt(data []byte, targetRound uint64) ([]byte, error) {
	var errs error
	for _, endpoint := range d.Endpoints {
		network, err := thttp.NewNetwork(endpoint, d.ChainHash)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", endpoint, err))
			continue
		}

		var ciphertext bytes.Buffer
		if err := tlock.New(network).Encrypt(&ciphertext, bytes.NewReader(data), targetRound); err != nil {
			d.log.Warn("tlock encryption failed on endpoint",
				zap.String("endpoint", endpoint),
				zap.Uint64("round", targetRound),
				zap.Error(err))
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", endpoint, err))
			continue
		}
		return ciphertext.Bytes(), nil
	}
	return nil, &beacon.UnavailableError{Round: targetRound, Errs: errs}
}

// Decrypt recovers data using the published round signature. The caller is
// responsible for the no-network fast path when the round is known to be
// unpublished; reaching this method means a fetch is warranted.
func (d *DrandBox) Decrypt(ciphertext []byte) ([]byte, error) {
	var errs error
	for _, endpoint := range d.Endpoints {
		network, err := thttp.NewNetwork(endpoint, d.ChainHash)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", endpoint, err))
			continue
		}

		var plaintext bytes.Buffer
		if err := tlock.New(network).Decrypt(&plaintext, bytes.NewReader(ciphertext)); err != nil {
			if !transientNetworkError(err) {
				// A malformed or corrupt locked key fails the same way on
				// every endpoint; retrying would mislabel it as an outage.
				return nil, fmt.Errorf("timelock decryption failed: %w", err)
			}
			d.log.Warn("tlock decryption failed on endpoint",
				zap.String("endpoint", endpoint),
				zap.Error(err))
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", endpoint, err))
			continue
		}
		return plaintext.Bytes(), nil
	}
	return nil, &beacon.UnavailableError{Errs: errs}
}

// transientNetworkError reports whether err came from transport rather than
// from the ciphertext itself, so trying another endpoint can help.
func transientNetworkError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
