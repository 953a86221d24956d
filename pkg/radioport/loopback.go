package radioport

import (
	"sync"
	"time"
)

// Fault lets a test mutate or drop frames in transit on one direction of
// a Loopback pair, standing in for the lossy behaviour spec.md assumes
// of the real link. Both hooks are optional; a nil Fault passes frames
// through untouched.
type Fault struct {
	mu sync.Mutex
	// Drop is consulted once per frame; returning true discards it
	// before the peer ever sees it.
	Drop func(frame []byte) bool
	// Corrupt is applied to frames that were not dropped. It may return
	// the frame unchanged.
	Corrupt func(frame []byte) []byte
}

func (f *Fault) apply(frame []byte) (out []byte, dropped bool) {
	if f == nil {
		return frame, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Drop != nil && f.Drop(frame) {
		return nil, true
	}
	if f.Corrupt != nil {
		frame = f.Corrupt(frame)
	}
	return frame, false
}

// Loopback is an in-memory Port used by tests. Two Loopbacks created by
// NewLoopbackPair are cross-wired: frames sent on one are observed by
// Receive on the other, after the sender's Fault (if any) has had a
// chance to drop or corrupt them.
type Loopback struct {
	send  chan<- []byte
	recv  <-chan []byte
	fault *Fault

	mu        sync.Mutex
	listening bool
}

// NewLoopbackPair builds two cross-wired Loopback ports. faultA governs
// frames sent by a (observed by b); faultB governs frames sent by b
// (observed by a). Either may be nil.
func NewLoopbackPair(faultA, faultB *Fault) (a, b *Loopback) {
	aToB := make(chan []byte, 64)
	bToA := make(chan []byte, 64)

	a = &Loopback{send: aToB, recv: bToA, fault: faultA, listening: true}
	b = &Loopback{send: bToA, recv: aToB, fault: faultB, listening: true}
	return a, b
}

func (l *Loopback) Send(payload []byte) error {
	frame, dropped := l.fault.apply(payload)
	if dropped {
		return nil
	}
	l.send <- frame
	return nil
}

func (l *Loopback) Receive(timeout time.Duration) ([]byte, error) {
	l.mu.Lock()
	listening := l.listening
	l.mu.Unlock()
	if !listening {
		time.Sleep(timeout)
		return nil, ErrTimeout
	}

	select {
	case frame := <-l.recv:
		return frame, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
}

func (l *Loopback) FlushRX() {
	for {
		select {
		case <-l.recv:
		default:
			return
		}
	}
}

func (l *Loopback) StartListening() {
	l.mu.Lock()
	l.listening = true
	l.mu.Unlock()
}

func (l *Loopback) StopListening() {
	l.mu.Lock()
	l.listening = false
	l.mu.Unlock()
}
