package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibairos/radiofile/pkg/radioport"
)

type memSource struct{ data []byte }

func (m *memSource) ReadAll() ([]byte, error) { return m.data, nil }

type memSink struct{ data []byte }

func (m *memSink) WriteAll(data []byte) error {
	m.data = append([]byte(nil), data...)
	return nil
}

func runPair(t *testing.T, senderOrch, receiverOrch *Orchestrator) (bool, error, bool, error) {
	t.Helper()
	var wg sync.WaitGroup
	var sendOK, recvOK bool
	var sendErr, recvErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		recvOK, recvErr = receiverOrch.Run()
	}()
	go func() {
		defer wg.Done()
		sendOK, sendErr = senderOrch.Run()
	}()
	wg.Wait()
	return sendOK, sendErr, recvOK, recvErr
}

func TestStopWaitSessionCleanTransfer(t *testing.T) {
	senderPort, receiverPort := radioport.NewLoopbackPair(nil, nil)
	data := make([]byte, 84)
	for i := range data {
		data[i] = 'A'
	}
	src := &memSource{data: data}
	sink := &memSink{}

	sender := &Orchestrator{Role: RoleSender, Variant: VariantStopWait, Port: senderPort, ChunkSize: 28, Source: src}
	receiver := &Orchestrator{Role: RoleReceiver, Variant: VariantStopWait, Port: receiverPort, Sink: sink}

	sendOK, sendErr, recvOK, recvErr := runPair(t, sender, receiver)
	require.NoError(t, sendErr)
	require.NoError(t, recvErr)
	assert.True(t, sendOK)
	assert.True(t, recvOK)
	assert.Equal(t, data, sink.data)
}

func TestBurstSessionCleanTransfer(t *testing.T) {
	senderPort, receiverPort := radioport.NewLoopbackPair(nil, nil)
	data := make([]byte, 50*28)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	src := &memSource{data: data}
	sink := &memSink{}

	sender := &Orchestrator{Role: RoleSender, Variant: VariantBurst, Port: senderPort, ChunkSize: 28, Source: src}
	receiver := &Orchestrator{Role: RoleReceiver, Variant: VariantBurst, Port: receiverPort, Sink: sink}

	sendOK, sendErr, recvOK, recvErr := runPair(t, sender, receiver)
	require.NoError(t, sendErr)
	require.NoError(t, recvErr)
	assert.True(t, sendOK)
	assert.True(t, recvOK)
	assert.Equal(t, data, sink.data)
}

// TestBurstSessionGivesUpWhenPeerSilent reproduces E6: a Port that
// never answers causes the burst sender session to report failure via
// ErrPeerUnreachable once PRIME exhausts its retries, rather than hanging
// or panicking.
func TestBurstSessionGivesUpWhenPeerSilent(t *testing.T) {
	src := &memSource{data: []byte("only chunk")}
	sender := &Orchestrator{
		Role:       RoleSender,
		Variant:    VariantBurst,
		Port:       &silentSessionPort{},
		ChunkSize:  28,
		AckTimeout: time.Millisecond,
		Source:     src,
	}

	ok, err := sender.Run()
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrPeerUnreachable)
}

type silentSessionPort struct{}

func (p *silentSessionPort) Send([]byte) error                     { return nil }
func (p *silentSessionPort) Receive(time.Duration) ([]byte, error) { return nil, radioport.ErrTimeout }
func (p *silentSessionPort) FlushRX()                              {}
func (p *silentSessionPort) StartListening()                       {}
func (p *silentSessionPort) StopListening()                        {}
