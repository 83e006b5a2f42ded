package timelock

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "connection reset" }
func (fakeNetError) Timeout() bool   { return false }
func (fakeNetError) Temporary() bool { return true }

func TestTransientNetworkError(t *testing.T) {
	transient := []error{
		&url.Error{Op: "Get", URL: "https://api.drand.sh", Err: errors.New("refused")},
		fakeNetError{},
		fmt.Errorf("fetching signature: %w", context.DeadlineExceeded),
		context.Canceled,
	}
	for _, err := range transient {
		assert.True(t, transientNetworkError(err), "%v", err)
	}

	// Ciphertext damage fails identically everywhere; retrying is pointless.
	deterministic := []error{
		errors.New("age: malformed header"),
		fmt.Errorf("parse ciphertext: %w", errors.New("unexpected EOF")),
	}
	for _, err := range deterministic {
		assert.False(t, transientNetworkError(err), "%v", err)
	}
}

func TestNewDrandBoxDefaults(t *testing.T) {
	box := NewDrandBox(nil)
	assert.NotEmpty(t, box.Endpoints)
	assert.Len(t, box.ChainHash, 64)
}
