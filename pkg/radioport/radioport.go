// Package radioport defines the abstract Radio Port contract the
// protocol core depends on (spec.md §4.2), plus the concrete
// implementations the CLI and the test suite use.
package radioport

import (
	"errors"
	"time"
)

// ErrTimeout is returned by Port.Receive when no frame arrives before
// the deadline expires.
var ErrTimeout = errors.New("radioport: receive timed out")

// Port is the polymorphic contract the session, sender and receiver
// state machines depend on. A node owns one Port that carries both
// directions: senders and receivers alike call Send (data or ACKs) and
// Receive (ACKs or data).
type Port interface {
	// Send enqueues up to one payload for transmission. It does not
	// block on delivery or acknowledgement; it is fire-and-forget.
	Send(payload []byte) error

	// Receive blocks until a frame arrives on the inbound pipe or
	// timeout elapses, whichever is first. It returns ErrTimeout on
	// expiry.
	Receive(timeout time.Duration) ([]byte, error)

	// FlushRX discards any frames queued on the inbound pipe.
	FlushRX()

	// StartListening and StopListening toggle the inbound pipe. A node
	// must StopListening before Send on implementations where the two
	// cannot run concurrently (spec.md §4.2). Neither Serial nor Loopback
	// is such an implementation: both keep Send independent of the
	// listening state, and while not listening Receive returns ErrTimeout.
	StartListening()
	StopListening()
}
