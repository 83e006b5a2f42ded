// Package testutil provides fakes shared by tests: a canned-response HTTP
// client for the beacon API and a reversible fake timelock box.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// FakeHTTPDoer is a mock HTTP client keyed by URL substring.
type FakeHTTPDoer struct {
	// Responses maps URL substrings to responses.
	Responses map[string]*http.Response
	// Errors maps URL substrings to transport errors.
	Errors map[string]error
	// Requests records every URL seen, in order.
	Requests []string
}

func (f *FakeHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	url := req.URL.String()
	f.Requests = append(f.Requests, url)

	for substr, err := range f.Errors {
		if strings.Contains(url, substr) {
			return nil, err
		}
	}
	for substr, resp := range f.Responses {
		if strings.Contains(url, substr) {
			return cloneResponse(resp), nil
		}
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader("not found")),
	}, nil
}

// cloneResponse copies a response with a fresh body reader so canned
// responses survive repeated use.
func cloneResponse(resp *http.Response) *http.Response {
	bodyBytes, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	return &http.Response{
		StatusCode: resp.StatusCode,
		Body:       io.NopCloser(bytes.NewReader(bodyBytes)),
	}
}

// JSONResponse builds a 200 response with a JSON body.
func JSONResponse(v any) *http.Response {
	body, _ := json.Marshal(v)
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}

// BeaconPublicResponse builds a fake drand /public/<round> response.
func BeaconPublicResponse(round uint64, signatureHex string) *http.Response {
	return JSONResponse(struct {
		Round      uint64 `json:"round"`
		Randomness string `json:"randomness"`
		Signature  string `json:"signature"`
	}{
		Round:      round,
		Randomness: "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2",
		Signature:  signatureHex,
	})
}

// BeaconInfoResponse builds a fake drand /info response with quicknet
// parameters.
func BeaconInfoResponse(genesis int64, period int) *http.Response {
	return JSONResponse(struct {
		Period      int    `json:"period"`
		GenesisTime int64  `json:"genesis_time"`
		Hash        string `json:"hash"`
		SchemeID    string `json:"schemeID"`
		BeaconID    string `json:"beaconID"`
	}{
		Period:      period,
		GenesisTime: genesis,
		Hash:        "52db9ba70e0cc0f6eaf7803dd07447a1f5477735fd3f661792ba94600c84e971",
		SchemeID:    "bls-unchained-g1-rfc9380",
		BeaconID:    "quicknet",
	})
}

// FakeBox is a reversible fake timelock box: no cryptography, just a
// recognizable prefix. It records calls so tests can assert the no-network
// fast path.
type FakeBox struct {
	EncryptError error
	DecryptError error

	EncryptCalls int
	DecryptCalls int
}

const fakeBoxPrefix = "FAKE_TLOCK:"

func (f *FakeBox) Encrypt(data []byte, targetRound uint64) ([]byte, error) {
	f.EncryptCalls++
	if f.EncryptError != nil {
		return nil, f.EncryptError
	}
	return append([]byte(fakeBoxPrefix), data...), nil
}

func (f *FakeBox) Decrypt(ciphertext []byte) ([]byte, error) {
	f.DecryptCalls++
	if f.DecryptError != nil {
		return nil, f.DecryptError
	}
	if !bytes.HasPrefix(ciphertext, []byte(fakeBoxPrefix)) {
		return nil, io.ErrUnexpectedEOF
	}
	return ciphertext[len(fakeBoxPrefix):], nil
}
