package radioport

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Serial is a Port backed by two go.bug.st/serial handles: one tuned to
// the outbound channel, one to the inbound channel, matching the
// two-transceiver-per-node design in spec.md §1. Unlike a packet radio
// chip with hardware dynamic-payload framing, a plain UART only hands us
// a byte stream, so Serial recovers datagram boundaries with a 1-byte
// length prefix ahead of each protocol frame. This prefix is a
// transport-level detail of this Port implementation; it is invisible
// above the Port interface.
type Serial struct {
	txDevice, rxDevice string
	tx, rx             serial.Port

	mu        sync.Mutex
	listening bool
}

// OpenSerial opens the outbound and inbound serial devices at baud and
// returns a ready Port. Grounded on the teacher's serial_port_open /
// usock.New dial sequence, generalized to two independent handles.
func OpenSerial(txDevice, rxDevice string, baud int) (*Serial, error) {
	mode := &serial.Mode{BaudRate: baud}

	tx, err := serial.Open(txDevice, mode)
	if err != nil {
		return nil, fmt.Errorf("radioport: open tx device %s: %w", txDevice, err)
	}

	rx, err := serial.Open(rxDevice, mode)
	if err != nil {
		tx.Close()
		return nil, fmt.Errorf("radioport: open rx device %s: %w", rxDevice, err)
	}

	log.Printf("radioport: opened tx=%s rx=%s at %d baud", txDevice, rxDevice, baud)

	return &Serial{
		txDevice:  txDevice,
		rxDevice:  rxDevice,
		tx:        tx,
		rx:        rx,
		listening: true,
	}, nil
}

func (s *Serial) Send(payload []byte) error {
	if len(payload) > frameMaxFrame {
		return fmt.Errorf("radioport: payload of %d bytes exceeds transceiver MTU of %d", len(payload), frameMaxFrame)
	}
	out := make([]byte, 1+len(payload))
	out[0] = byte(len(payload))
	copy(out[1:], payload)

	if _, err := s.tx.Write(out); err != nil {
		return fmt.Errorf("radioport: write: %w", err)
	}
	return nil
}

func (s *Serial) Receive(timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	listening := s.listening
	s.mu.Unlock()
	if !listening {
		return nil, ErrTimeout
	}

	if err := s.rx.SetReadTimeout(timeout); err != nil {
		return nil, fmt.Errorf("radioport: set read timeout: %w", err)
	}
	deadline := time.Now().Add(timeout)

	lenBuf := make([]byte, 1)
	if err := s.readExactly(lenBuf, deadline); err != nil {
		return nil, ErrTimeout
	}

	payload := make([]byte, lenBuf[0])
	if len(payload) > 0 {
		if err := s.readExactly(payload, deadline); err != nil {
			log.Printf("radioport: short read recovering frame body: %v", err)
			return nil, ErrTimeout
		}
	}
	return payload, nil
}

// readExactly fills buf, issuing further Read calls as needed since a
// single underlying Read may return fewer bytes than requested. On
// timeout the OS driver behind go.bug.st/serial returns (0, nil) rather
// than an error, so readExactly treats "stalled past deadline" as the
// failure condition instead of relying on a returned error.
func (s *Serial) readExactly(buf []byte, deadline time.Time) error {
	got := 0
	for got < len(buf) {
		n, err := s.rx.Read(buf[got:])
		if err != nil {
			return err
		}
		got += n
		if got == len(buf) {
			return nil
		}
		if time.Now().After(deadline) {
			return io.ErrUnexpectedEOF
		}
	}
	return nil
}

func (s *Serial) FlushRX() {
	if err := s.rx.ResetInputBuffer(); err != nil {
		log.Printf("radioport: flush rx: %v", err)
	}
}

func (s *Serial) StartListening() {
	s.mu.Lock()
	s.listening = true
	s.mu.Unlock()
}

func (s *Serial) StopListening() {
	s.mu.Lock()
	s.listening = false
	s.mu.Unlock()
}

// Close releases both serial handles.
func (s *Serial) Close() error {
	txErr := s.tx.Close()
	rxErr := s.rx.Close()
	if txErr != nil {
		return txErr
	}
	return rxErr
}

// frameMaxFrame is the 32-byte transceiver MTU, the largest datagram Send
// accepts. It is defined here rather than imported from pkg/frame, to
// keep the transport layer decoupled from the protocol payload format.
// frame.MaxFrame (34: a 30-byte payload plus CRC and sequence) is larger,
// so frames of that size are rejected by Send.
const frameMaxFrame = 32
