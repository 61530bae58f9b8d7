// Package ledger abstracts the external append-only content-addressed store.
// A write returns a stable identifier usable to fetch the exact bytes later.
//
// Writes are at-least-once: retrying a write that already succeeded may
// return a new identifier. Callers must treat whichever identifier they
// receive as authoritative and must not retry silently, since duplicate
// ledger entries are billable.
package ledger

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/dsemenov/datavault/internal/common"
)

// Client is the boundary to the external ledger.
type Client interface {
	// Write appends payload and returns its content identifier.
	Write(ctx context.Context, payload []byte) (string, error)

	// Read fetches the exact bytes previously written under id. Returns
	// common.ErrNotFound if the ledger does not know the identifier.
	Read(ctx context.Context, id string) ([]byte, error)
}

// withTimeout bounds a ledger call. The default guards against a
// misconfigured zero timeout hanging a request forever.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// wrapTimeout converts deadline and transport timeouts into
// common.ErrLedgerTimeout so callers can distinguish "durability unknown"
// from a definite failure.
func wrapTimeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return common.ErrLedgerTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return common.ErrLedgerTimeout
	}
	return err
}
