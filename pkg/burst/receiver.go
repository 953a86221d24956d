package burst

import (
	"strings"
	"time"

	"github.com/ibairos/radiofile/pkg/digest"
	"github.com/ibairos/radiofile/pkg/frame"
	"github.com/ibairos/radiofile/pkg/radioport"
)

// Receiver drives the windowed receive side: PRIME acceptance, window
// accumulation with cumulative ACKs, and the EOT/digest handshake
// (spec.md §4.7).
type Receiver struct {
	Port      radioport.Port
	BurstSize int

	// DataTimeout bounds the idle wait for the start of a new window or
	// handshake frame. InterFrameTimeout bounds the wait between frames
	// once a window is already under way; it is shorter than DataTimeout
	// because a sender that is still inside a burst sends its frames
	// back to back with no per-frame ACK, so a gap this long means the
	// sender has stopped — either the window is finished short of
	// BurstSize, or it is genuinely gone. There is no total-chunk-count
	// signal in PRIME to size the final window exactly, so this gap is
	// the only way the receiver can tell a short final window from one
	// still in flight.
	DataTimeout       time.Duration
	InterFrameTimeout time.Duration
}

// NewReceiver returns a Receiver configured with spec.md's reference
// BURST_SIZE and timeouts unless overridden.
func NewReceiver(port radioport.Port) *Receiver {
	return &Receiver{
		Port:              port,
		BurstSize:         DefaultBurstSize,
		DataTimeout:       30 * time.Millisecond,
		InterFrameTimeout: 5 * time.Millisecond,
	}
}

// Receive accepts PRIME, then windows of data, then the EOT/digest
// handshake, returning the accumulated ordered chunk list once the
// digest verifies. Either a CRC-invalid data frame or a digest mismatch
// is, per spec.md §4.7/§7, an aggressive full-session restart: the
// entire received chunk list is discarded (not just the in-flight
// window) and collection starts over from the next PRIME the sender
// re-sends.
func (r *Receiver) Receive() [][]byte {
	for {
		chunks, lastAcked := r.awaitPrime()
		result, restart := r.collect(chunks, lastAcked)
		if restart {
			continue
		}
		return result
	}
}

// collect drives the window-accumulation and EOT/digest loop starting
// from an already-primed chunks/lastAcked pair. restart=true means the
// whole chunk list (including chunks passed in) must be discarded and
// Receive must go back to awaiting a fresh PRIME.
func (r *Receiver) collect(chunks [][]byte, lastAcked uint16) (result [][]byte, restart bool) {
	var window [][]byte
	for {
		timeout := r.DataTimeout
		if len(window) > 0 {
			timeout = r.InterFrameTimeout
		}

		raw, err := r.Port.Receive(timeout)
		if err != nil {
			if len(window) > 0 {
				chunks = append(chunks, window...)
				lastAcked += uint16(len(window))
				r.sendAck(lastAcked, frame.TagACK)
				window = nil
			}
			continue
		}

		parsed, err := frame.DecodeNoSeq(raw)
		if err != nil {
			continue
		}
		if !parsed.CRCValid {
			r.sendAck(lastAcked, frame.TagERROR)
			return nil, true
		}

		if strings.HasPrefix(string(parsed.Payload), frame.BurstEOTPrefix) {
			done, needsRestart := r.handleEOT(chunks, lastAcked)
			if needsRestart {
				return nil, true
			}
			if done {
				return chunks, false
			}
			continue
		}

		window = append(window, append([]byte(nil), parsed.Payload...))
		if len(window) == r.BurstSize {
			chunks = append(chunks, window...)
			lastAcked += uint16(len(window))
			r.sendAck(lastAcked, frame.TagACK)
			window = nil
		}
	}
}

// awaitPrime blocks until a valid seq-1 PRIME frame is observed,
// re-acknowledging every retransmission it sees along the way. It
// returns the one-chunk starting list and the lastAcked sequence
// (always 1) for collect to build on.
func (r *Receiver) awaitPrime() ([][]byte, uint16) {
	for {
		raw, err := r.Port.Receive(r.DataTimeout)
		if err != nil {
			continue
		}
		parsed, err := frame.DecodeSeq(raw)
		if err != nil || !parsed.CRCValid || parsed.Seq != 1 {
			continue
		}
		r.sendAck(1, frame.TagACK)
		return [][]byte{append([]byte(nil), parsed.Payload...)}, 1
	}
}

// handleEOT reads the digest frame that follows an EOT literal and
// verifies it against chunks. It returns (true, false) once the digest
// matches. A malformed/CRC-invalid digest frame or a digest mismatch
// both signal ERROR and return (false, true): per spec.md §7 a
// DigestMismatch is recovered by discarding all receiver state and
// re-running the session, not by retrying just the EOT/digest pair. A
// transient receive timeout returns (false, false) so the caller simply
// waits for the sender's retransmission of EOT/digest.
func (r *Receiver) handleEOT(chunks [][]byte, lastAcked uint16) (done bool, restart bool) {
	raw, err := r.Port.Receive(r.DataTimeout)
	if err != nil {
		return false, false
	}
	parsed, err := frame.DecodeNoSeq(raw)
	if err != nil || !parsed.CRCValid {
		r.sendAck(lastAcked, frame.TagERROR)
		return false, true
	}

	if !digest.Verify(chunks, string(parsed.Payload)) {
		r.sendAck(lastAcked, frame.TagERROR)
		return false, true
	}

	r.sendAck(lastAcked, frame.TagACK)
	return true, false
}

func (r *Receiver) sendAck(seq uint16, tag frame.Tag) {
	_ = r.Port.Send(frame.EncodeAck(seq, tag))
}
