// Package session ties the frame codec, chunker, ARQ variants, and blob
// I/O together into a single one-shot run: given a role and a variant it
// drives the matching sender or receiver state machine to completion
// and reports a single boolean outcome, per spec.md §4.8.
package session

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ibairos/radiofile/pkg/blob"
	"github.com/ibairos/radiofile/pkg/burst"
	"github.com/ibairos/radiofile/pkg/chunker"
	"github.com/ibairos/radiofile/pkg/radioport"
	"github.com/ibairos/radiofile/pkg/stopwait"
	"github.com/ibairos/radiofile/pkg/telemetry"
)

// Role selects which side of the transfer this session drives.
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// Variant selects the ARQ scheme.
type Variant string

const (
	VariantStopWait Variant = "stopwait"
	VariantBurst    Variant = "burst"
)

// ErrPeerUnreachable reports ordinary ARQ exhaustion: the chosen
// sender's retry budget ran out without a usable ACK. It is not a fault
// in the Port itself, just the peer never answering.
var ErrPeerUnreachable = errors.New("session: peer unreachable")

// ErrRadioFailure wraps any error surfaced by the Port, Source, or Sink
// collaborators — a fault in the transport or the blob boundary, not in
// the ARQ protocol logic.
var ErrRadioFailure = errors.New("session: radio failure")

// Orchestrator is constructed once per transfer attempt and discarded;
// there is no persistent state across sessions (spec.md §9's "eliminate
// the global lifecycle").
type Orchestrator struct {
	Role      Role
	Variant   Variant
	Port      radioport.Port
	ChunkSize int // payload bytes per chunk, both variants; 0 selects 28
	BurstSize int // burst chunks per window; 0 selects burst.DefaultBurstSize

	// AckTimeout overrides the ARQ variant's default ACK_TIMEOUT
	// (spec.md §5). Zero selects the variant's own default.
	AckTimeout time.Duration

	Source blob.Source // required when Role == RoleSender
	Sink   blob.Sink   // required when Role == RoleReceiver

	// Telemetry is an optional side channel; a nil value is valid and
	// every report becomes a no-op, matching the teacher's pattern of
	// treating Redis as observability rather than a protocol dependency.
	Telemetry *telemetry.Publisher
}

// Run drives the session to completion. The returned bool is the
// ARQ-level outcome spec.md §4.8 specifies. A non-nil error is
// ErrPeerUnreachable when the sender's retries ran out, wraps
// ErrRadioFailure when a Port/Source/Sink fault interrupted the session,
// or reports an unknown role or variant.
func (o *Orchestrator) Run() (bool, error) {
	switch o.Role {
	case RoleSender:
		return o.runSender()
	case RoleReceiver:
		return o.runReceiver()
	default:
		return false, fmt.Errorf("session: unknown role %q", o.Role)
	}
}

func (o *Orchestrator) runSender() (bool, error) {
	if o.Source == nil {
		return false, fmt.Errorf("%w: sender session has no blob source", ErrRadioFailure)
	}

	data, err := o.Source.ReadAll()
	if err != nil {
		return false, fmt.Errorf("%w: reading source: %v", ErrRadioFailure, err)
	}

	var chunks [][]byte
	var sendErr error

	switch o.Variant {
	case VariantStopWait:
		chunks = chunker.Split(data, chunkSizeOrDefault(o.ChunkSize))
		o.reportProgress("DATA", 0, len(chunks))
		sender := stopwait.NewSender(o.Port)
		if o.AckTimeout > 0 {
			sender.AckTimeout = o.AckTimeout
		}
		sendErr = sender.Send(chunks)
	case VariantBurst:
		chunks = chunker.Split(data, chunkSizeOrDefault(o.ChunkSize))
		o.reportProgress("DATA", 0, len(chunks))
		sender := burst.NewSender(o.Port)
		if o.BurstSize > 0 {
			sender.BurstSize = o.BurstSize
		}
		if o.AckTimeout > 0 {
			sender.AckTimeout = o.AckTimeout
		}
		sendErr = sender.Send(chunks)
	default:
		return false, fmt.Errorf("session: unknown variant %q", o.Variant)
	}

	o.reportProgress("EOT", len(chunks), len(chunks))

	if sendErr != nil {
		o.reportOutcome(false)
		if errors.Is(sendErr, stopwait.ErrPeerUnreachable) || errors.Is(sendErr, burst.ErrPeerUnreachable) {
			return false, ErrPeerUnreachable
		}
		return false, fmt.Errorf("%w: %v", ErrRadioFailure, sendErr)
	}

	o.reportOutcome(true)
	return true, nil
}

func (o *Orchestrator) runReceiver() (bool, error) {
	if o.Sink == nil {
		return false, fmt.Errorf("%w: receiver session has no blob sink", ErrRadioFailure)
	}

	var chunks [][]byte
	switch o.Variant {
	case VariantStopWait:
		receiver := stopwait.NewReceiver(o.Port)
		if o.AckTimeout > 0 {
			receiver.DataTimeout = o.AckTimeout
		}
		chunks = receiver.Receive()
	case VariantBurst:
		receiver := burst.NewReceiver(o.Port)
		if o.BurstSize > 0 {
			receiver.BurstSize = o.BurstSize
		}
		if o.AckTimeout > 0 {
			receiver.DataTimeout = o.AckTimeout
		}
		chunks = receiver.Receive()
	default:
		return false, fmt.Errorf("session: unknown variant %q", o.Variant)
	}

	o.reportProgress("EOT", len(chunks), len(chunks))

	data := chunker.Join(chunks)
	if err := o.Sink.WriteAll(data); err != nil {
		o.reportOutcome(false)
		return false, fmt.Errorf("%w: writing sink: %v", ErrRadioFailure, err)
	}

	o.reportOutcome(true)
	return true, nil
}

func (o *Orchestrator) reportProgress(phase string, count, total int) {
	if o.Telemetry == nil {
		return
	}
	if err := o.Telemetry.Progress(phase, count, total); err != nil {
		log.Printf("session: telemetry progress report failed: %v", err)
	}
}

func (o *Orchestrator) reportOutcome(success bool) {
	if o.Telemetry == nil {
		return
	}
	if err := o.Telemetry.Outcome(success); err != nil {
		log.Printf("session: telemetry outcome report failed: %v", err)
	}
}

func chunkSizeOrDefault(n int) int {
	if n <= 0 {
		return 28
	}
	return n
}
