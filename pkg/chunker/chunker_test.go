package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitEvenlyDivisible(t *testing.T) {
	data := make([]byte, 84)
	for i := range data {
		data[i] = 'A'
	}
	chunks := Split(data, 28)
	assert.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.Len(t, c, 28)
	}
}

func TestSplitShortFinalChunk(t *testing.T) {
	data := make([]byte, 65)
	chunks := Split(data, 28)
	assert.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 28)
	assert.Len(t, chunks[1], 28)
	assert.Len(t, chunks[2], 9)
}

func TestSplitEmptyInput(t *testing.T) {
	chunks := Split([]byte{}, 28)
	assert.Len(t, chunks, 1)
	assert.Empty(t, chunks[0])
}

func TestJoinRoundTrip(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, twice over for good measure")
	chunks := Split(data, 27)
	assert.Equal(t, data, Join(chunks))
}

func TestJoinNoPadding(t *testing.T) {
	chunks := [][]byte{[]byte("abc"), []byte("de")}
	assert.Equal(t, []byte("abcde"), Join(chunks))
}
