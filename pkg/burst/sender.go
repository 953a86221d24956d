// Package burst implements the windowed (burst) sender and receiver
// state machines (spec.md §4.6, §4.7): a PRIME handshake to align
// sequencing, fixed-size windows of unsequenced data frames followed by
// a single cumulative ACK, and an EOT handshake carrying an integrity
// digest.
package burst

import (
	"errors"
	"log"
	"time"

	"github.com/ibairos/radiofile/pkg/digest"
	"github.com/ibairos/radiofile/pkg/frame"
	"github.com/ibairos/radiofile/pkg/radioport"
)

// DefaultBurstSize mirrors the original deployment's BURST_SIZE.
const DefaultBurstSize = 20

// MaxRetries bounds PRIME, window, and AWAIT_FINAL_ACK retries. spec.md
// §4.6 describes PRIME as looping "until obtained," but a sender that
// can never give up cannot honour the give-up property spec.md §8 (E6)
// requires, so PRIME is bounded the same way AWAIT_FINAL_ACK already is
// — see DESIGN.md.
const MaxRetries = 1000

// MaxRestarts bounds how many times Send will re-prime the whole
// session in response to a receiver-signalled ERROR (spec.md §4.7's
// "full session restart"). Without a bound, a peer that keeps reporting
// corruption forever would keep the sender re-priming forever, the same
// unbounded-retry shape MaxRetries already rules out elsewhere.
const MaxRestarts = 1000

var ErrPeerUnreachable = errors.New("burst: peer unreachable")

// Sender drives the windowed send loop over port.
type Sender struct {
	Port       radioport.Port
	BurstSize  int
	AckTimeout time.Duration
	Encoding   string // declared text encoding for the EOT literal
}

// NewSender returns a Sender configured with spec.md's reference
// BURST_SIZE and ACK_TIMEOUT (30ms) unless overridden.
func NewSender(port radioport.Port) *Sender {
	return &Sender{
		Port:       port,
		BurstSize:  DefaultBurstSize,
		AckTimeout: 30 * time.Millisecond,
		Encoding:   "UTF-8",
	}
}

// Send primes the peer, transmits chunks in windows of BurstSize,
// acknowledged cumulatively, then runs the EOT/digest handshake. Either
// phase may be aborted by the receiver with an ERROR tag, signalling
// that it has discarded everything it has collected so far (spec.md
// §4.7); Send responds by re-priming and replaying the whole chunk list
// from scratch, bounded by MaxRestarts.
func (s *Sender) Send(chunks [][]byte) error {
	if len(chunks) == 0 {
		chunks = [][]byte{{}}
	}

	for restarts := 0; ; restarts++ {
		if restarts > MaxRestarts {
			return ErrPeerUnreachable
		}

		if err := s.prime(chunks[0]); err != nil {
			return err
		}

		lastAcked := uint16(1)
		total := uint16(len(chunks))
		reprime := false

		for lastAcked < total {
			window := s.BurstSize
			if remaining := int(total - lastAcked); window > remaining {
				window = remaining
			}

			acked, needsReprime, err := s.sendWindow(chunks, lastAcked, window)
			if err != nil {
				return err
			}
			if needsReprime {
				reprime = true
				break
			}
			lastAcked = acked
		}
		if reprime {
			continue
		}

		needsReprime, err := s.sendEOT(chunks)
		if err != nil {
			return err
		}
		if needsReprime {
			continue
		}
		return nil
	}
}

// prime sends chunk 1 wrapped in stop-and-wait framing (so it carries an
// explicit sequence number) and waits for a matching ACK, aligning the
// peer before unsequenced windowing begins.
func (s *Sender) prime(firstChunk []byte) error {
	retry := 0
	for {
		frameBytes := frame.EncodeDataSeq(1, firstChunk)
		if err := s.Port.Send(frameBytes); err != nil {
			return err
		}
		retry++

		if s.cumulativeAck() == 1 {
			return nil
		}
		if retry > MaxRetries {
			return ErrPeerUnreachable
		}
	}
}

// sendWindow transmits the next window chunks (1-indexed range
// [base+1, base+window]) as unsequenced burst-data frames, then awaits
// the cumulative ACK. It returns the new lastAcked sequence, or
// needsReprime=true if the receiver signalled ERROR: per spec.md §4.7 a
// CRC-invalid data frame makes the receiver discard its entire received
// list, not just the in-flight window, so the only correct recovery is
// a full re-prime from chunk 1, not a retransmission of this window.
func (s *Sender) sendWindow(chunks [][]byte, base uint16, window int) (acked uint16, needsReprime bool, err error) {
	retry := 0
	for {
		for i := 0; i < window; i++ {
			idx := int(base) + i // chunks is 0-indexed, sequences are 1-indexed
			frameBytes := frame.EncodeDataNoSeq(chunks[idx])
			if err := s.Port.Send(frameBytes); err != nil {
				return 0, false, err
			}
		}
		retry++

		ack, ok := s.awaitAck()
		if !ok {
			if retry > MaxRetries {
				return 0, false, ErrPeerUnreachable
			}
			continue // timeout: retransmit the whole window from base
		}
		if !ack.CRCValid {
			if retry > MaxRetries {
				return 0, false, ErrPeerUnreachable
			}
			continue
		}
		if ack.HasTag && ack.Tag == frame.TagERROR {
			log.Printf("burst: sender: receiver signalled error, re-priming session")
			return 0, true, nil
		}
		if ack.HasTag && ack.Tag == frame.TagACK {
			return ack.Seq, false, nil
		}
		if retry > MaxRetries {
			return 0, false, ErrPeerUnreachable
		}
	}
}

// sendEOT sends the EOT literal and integrity digest, then awaits the
// final ACK. An ERROR ack means the receiver's digest check failed and
// it has discarded its whole chunk list (spec.md §7's DigestMismatch),
// so needsReprime signals the caller to re-prime and resend everything
// rather than just retransmitting the EOT/digest pair.
func (s *Sender) sendEOT(chunks [][]byte) (needsReprime bool, err error) {
	sum, err := digest.Compute(chunks)
	if err != nil {
		return false, err
	}

	retry := 0
	for {
		eot := frame.EncodeDataNoSeq([]byte(frame.BurstEOTPrefix + s.Encoding))
		if err := s.Port.Send(eot); err != nil {
			return false, err
		}
		digestFrame := frame.EncodeDataNoSeq([]byte(sum))
		if err := s.Port.Send(digestFrame); err != nil {
			return false, err
		}
		retry++

		ack, ok := s.awaitAck()
		if ok && ack.CRCValid && ack.HasTag {
			if ack.Tag == frame.TagACK {
				return false, nil
			}
			if ack.Tag == frame.TagERROR {
				log.Printf("burst: sender: receiver signalled digest mismatch, re-priming session")
				return true, nil
			}
		}
		if retry > MaxRetries {
			return false, ErrPeerUnreachable
		}
	}
}

func (s *Sender) cumulativeAck() uint16 {
	ack, ok := s.awaitAck()
	if !ok || !ack.CRCValid || !ack.HasTag || ack.Tag != frame.TagACK {
		return 0
	}
	return ack.Seq
}

func (s *Sender) awaitAck() (frame.Parsed, bool) {
	raw, err := s.Port.Receive(s.AckTimeout)
	if err != nil {
		return frame.Parsed{}, false
	}
	parsed, err := frame.DecodeAck(raw)
	if err != nil {
		return frame.Parsed{}, false
	}
	return parsed, true
}
