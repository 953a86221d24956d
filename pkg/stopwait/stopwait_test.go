package stopwait

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibairos/radiofile/pkg/chunker"
	"github.com/ibairos/radiofile/pkg/frame"
	"github.com/ibairos/radiofile/pkg/radioport"
)

func mustDecodeAck(raw []byte) frame.Parsed {
	p, err := frame.DecodeAck(raw)
	if err != nil {
		panic(err)
	}
	return p
}

func mustDecodeSeq(raw []byte) frame.Parsed {
	p, err := frame.DecodeSeq(raw)
	if err != nil {
		panic(err)
	}
	return p
}

func mustEncodeAck(seq uint16) []byte {
	return frame.EncodeAck(seq, frame.TagACK)
}

func runSession(t *testing.T, chunks [][]byte, faultSenderToReceiver, faultReceiverToSender *radioport.Fault) [][]byte {
	t.Helper()
	senderPort, receiverPort := radioport.NewLoopbackPair(faultSenderToReceiver, faultReceiverToSender)

	sender := NewSender(senderPort)
	sender.AckTimeout = 20 * time.Millisecond
	receiver := NewReceiver(receiverPort)
	receiver.DataTimeout = 20 * time.Millisecond

	var wg sync.WaitGroup
	var got [][]byte
	var sendErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		got = receiver.Receive()
	}()
	go func() {
		defer wg.Done()
		sendErr = sender.Send(chunks)
	}()
	wg.Wait()

	require.NoError(t, sendErr)
	return got
}

func TestCleanTransfer(t *testing.T) {
	data := make([]byte, 84)
	for i := range data {
		data[i] = 'A'
	}
	chunks := chunker.Split(data, 28)
	require.Len(t, chunks, 3)

	got := runSession(t, chunks, nil, nil)
	assert.Equal(t, data, joinGot(got))
}

func TestLostAckIsRecoveredByDuplicateHold(t *testing.T) {
	data := make([]byte, 84)
	for i := range data {
		data[i] = 'A'
	}
	chunks := chunker.Split(data, 28)

	dropOnce := struct {
		mu      sync.Mutex
		dropped bool
	}{}
	faultReceiverToSender := &radioport.Fault{
		Drop: func(f []byte) bool {
			dropOnce.mu.Lock()
			defer dropOnce.mu.Unlock()
			// Drop exactly one ACK: the first ACK for seq 2.
			parsed := mustDecodeAck(f)
			if !dropOnce.dropped && parsed.Seq == 2 {
				dropOnce.dropped = true
				return true
			}
			return false
		},
	}

	got := runSession(t, chunks, nil, faultReceiverToSender)
	assert.Equal(t, data, joinGot(got))
}

func TestCorruptDataFrameIsRetransmitted(t *testing.T) {
	data := make([]byte, 84)
	for i := range data {
		data[i] = 'A'
	}
	chunks := chunker.Split(data, 28)

	corruptOnce := struct {
		mu   sync.Mutex
		done bool
	}{}
	faultSenderToReceiver := &radioport.Fault{
		Corrupt: func(f []byte) []byte {
			corruptOnce.mu.Lock()
			defer corruptOnce.mu.Unlock()
			parsed := mustDecodeSeq(f)
			if !corruptOnce.done && parsed.Seq == 2 {
				corruptOnce.done = true
				mutated := append([]byte(nil), f...)
				mutated[len(mutated)-1] ^= 0xFF
				return mutated
			}
			return f
		},
	}

	got := runSession(t, chunks, faultSenderToReceiver, nil)
	assert.Equal(t, data, joinGot(got))
}

func TestGiveUpAfterMaxRetries(t *testing.T) {
	silentPort := &dropAllAfterFirstPort{}
	sender := &Sender{Port: silentPort, AckTimeout: time.Millisecond}

	err := sender.Send([][]byte{[]byte("a"), []byte("b")})
	assert.ErrorIs(t, err, ErrPeerUnreachable)
}

// dropAllAfterFirstPort ACKs exactly the first data frame it is sent,
// then goes silent, so the sender's retry budget for seq 2 exhausts
// deterministically.
type dropAllAfterFirstPort struct {
	mu       sync.Mutex
	acked    bool
	response [][]byte
}

func (p *dropAllAfterFirstPort) Send(payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	parsed := mustDecodeSeq(payload)
	if !p.acked && parsed.Seq == 1 {
		p.acked = true
		ack := mustEncodeAck(1)
		p.response = append(p.response, ack)
	}
	return nil
}

func (p *dropAllAfterFirstPort) Receive(timeout time.Duration) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.response) > 0 {
		r := p.response[0]
		p.response = p.response[1:]
		return r, nil
	}
	return nil, radioport.ErrTimeout
}

func (p *dropAllAfterFirstPort) FlushRX()        {}
func (p *dropAllAfterFirstPort) StartListening() {}
func (p *dropAllAfterFirstPort) StopListening()  {}

func joinGot(chunks [][]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
