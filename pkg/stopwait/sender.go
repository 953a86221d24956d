// Package stopwait implements the stop-and-wait sender and receiver
// state machines (spec.md §4.4, §4.5): one outstanding frame at a time,
// bounded retries that only apply once the first chunk has been
// acknowledged (the first chunk is retried without limit), and an EOT
// handshake.
package stopwait

import (
	"errors"
	"log"
	"time"

	"github.com/ibairos/radiofile/pkg/frame"
	"github.com/ibairos/radiofile/pkg/radioport"
)

// MaxRetries bounds consecutive timeouts/malformed-ACK rounds before the
// sender gives up, per spec.md §4.4/§4.6.
const MaxRetries = 1000

// PollInterval is the short sleep between receive polls that keeps the
// AWAIT_ACK loop from spinning, per spec.md §5.
const PollInterval = time.Millisecond

// ErrPeerUnreachable is returned when MaxRetries consecutive timeouts
// elapse without a usable ACK for a chunk after the first, or for the
// EOT frame. It is never returned while the first chunk is unacknowledged.
var ErrPeerUnreachable = errors.New("stopwait: peer unreachable")

// Sender drives the per-chunk ARQ loop over port.
type Sender struct {
	Port       radioport.Port
	AckTimeout time.Duration
}

// NewSender returns a Sender with spec.md's reference ACK_TIMEOUT
// (10ms) unless overridden.
func NewSender(port radioport.Port) *Sender {
	return &Sender{Port: port, AckTimeout: 10 * time.Millisecond}
}

// Send transmits chunks in order, then performs the EOT handshake.
// It returns ErrPeerUnreachable if either phase exhausts MaxRetries; the
// first chunk is resent until it is acknowledged, however long that takes.
func (s *Sender) Send(chunks [][]byte) error {
	nextSeq := uint16(frame.MinSeq)

	for _, chunk := range chunks {
		if err := s.sendOne(nextSeq, chunk); err != nil {
			return err
		}
		nextSeq++
	}

	return s.sendEOT(nextSeq)
}

// sendOne drives SEND/AWAIT_ACK for a single chunk until it is
// acknowledged with the expected sequence number.
func (s *Sender) sendOne(seq uint16, payload []byte) error {
	retry := 0
	for {
		frameBytes := frame.EncodeDataSeq(seq, payload)
		if err := s.Port.Send(frameBytes); err != nil {
			return err
		}
		retry++

		if s.acked(seq) {
			return nil
		}

		if retry > MaxRetries && seq > frame.MinSeq {
			return ErrPeerUnreachable
		}
	}
}

// acked performs one AWAIT_ACK round: it returns true only when a
// CRC-valid ACK matching seq is observed.
func (s *Sender) acked(seq uint16) bool {
	ack, ok := s.awaitAck()
	if !ok {
		return false
	}
	if !ack.CRCValid || !ack.HasTag {
		return false
	}
	if ack.Seq != seq {
		log.Printf("stopwait: sender: out-of-order ack seq=%d expecting=%d", ack.Seq, seq)
		return false
	}
	return ack.Tag == frame.TagACK
}

// sendEOT drives EOT/AWAIT_EOT_ACK: transmit the EOT literal tagged with
// seq, retry until an ACK arrives. The receiver ACKs EOT with seq+1, not
// seq (pkg/stopwait/receiver.go's EOT branch), so the await must match
// that, not the EOT frame's own seq.
func (s *Sender) sendEOT(seq uint16) error {
	retry := 0
	for {
		frameBytes := frame.EncodeDataSeq(seq, []byte(frame.EOTLiteral))
		if err := s.Port.Send(frameBytes); err != nil {
			return err
		}
		retry++

		if s.acked(seq + 1) {
			return nil
		}

		if retry > MaxRetries {
			return ErrPeerUnreachable
		}
	}
}

// awaitAck waits up to AckTimeout for one frame and decodes it as an
// ACK. After a timeout it sleeps PollInterval before returning, so the
// retry loop does not spin on a Port whose Receive returns at once.
func (s *Sender) awaitAck() (frame.Parsed, bool) {
	raw, err := s.Port.Receive(s.AckTimeout)
	if err != nil {
		time.Sleep(PollInterval)
		return frame.Parsed{}, false
	}
	parsed, err := frame.DecodeAck(raw)
	if err != nil {
		return frame.Parsed{}, false
	}
	return parsed, true
}
