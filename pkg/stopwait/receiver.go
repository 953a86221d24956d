package stopwait

import (
	"log"
	"time"

	"github.com/ibairos/radiofile/pkg/frame"
	"github.com/ibairos/radiofile/pkg/radioport"
)

// Receiver drives the stop-and-wait receive side: per-chunk sequencing,
// duplicate suppression, EOT recognition (spec.md §4.5).
type Receiver struct {
	Port        radioport.Port
	DataTimeout time.Duration
}

// NewReceiver returns a Receiver with spec.md's reference DATA_TIMEOUT
// (10ms) unless overridden.
func NewReceiver(port radioport.Port) *Receiver {
	return &Receiver{Port: port, DataTimeout: 10 * time.Millisecond}
}

// Receive loops until the EOT literal is accepted, returning the
// accumulated, ordered chunk list.
//
// The duplicate-ACK rule is the "hold" variant (spec.md §3, §9): a
// frame carrying seq = expectedSeq-1 is a retransmission of the chunk
// just accepted (its ACK was lost in transit); expectedSeq is never
// decremented to compensate, and the re-ACK carries the same seq the
// original acceptance used.
func (r *Receiver) Receive() [][]byte {
	expectedSeq := uint16(frame.MinSeq)
	var chunks [][]byte

	for {
		raw, err := r.Port.Receive(r.DataTimeout)
		if err != nil {
			continue // timeout: no state change, no ACK, per spec.md §4.5
		}

		parsed, err := frame.DecodeSeq(raw)
		if err != nil {
			continue // shorter than CRC+SEQ: silently dropped
		}

		if !parsed.CRCValid {
			r.sendAck(expectedSeq, frame.TagERROR)
			continue
		}

		if parsed.IsEOT {
			r.sendAck(expectedSeq+1, frame.TagACK)
			return chunks
		}

		switch parsed.Seq {
		case expectedSeq:
			r.sendAck(expectedSeq, frame.TagACK)
			chunks = append(chunks, append([]byte(nil), parsed.Payload...))
			expectedSeq++
		case expectedSeq - 1:
			r.sendAck(expectedSeq-1, frame.TagACK)
		default:
			// out of order: drop, no ACK, forces sender timeout
		}
	}
}

func (r *Receiver) sendAck(seq uint16, tag frame.Tag) {
	if err := r.Port.Send(frame.EncodeAck(seq, tag)); err != nil {
		log.Printf("stopwait: receiver: send ack failed: %v", err)
	}
}
