package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDeterministic(t *testing.T) {
	chunks := [][]byte{[]byte("abc"), []byte("def"), []byte("gh")}
	a, err := Compute(chunks)
	require.NoError(t, err)
	b, err := Compute(chunks)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestVerifyDetectsChange(t *testing.T) {
	chunks := [][]byte{[]byte("abc"), []byte("def")}
	want, err := Compute(chunks)
	require.NoError(t, err)
	assert.True(t, Verify(chunks, want))

	mutated := [][]byte{[]byte("abc"), []byte("xef")}
	assert.False(t, Verify(mutated, want))
}

func TestComputeSensitiveToOrder(t *testing.T) {
	a, err := Compute([][]byte{[]byte("x"), []byte("y")})
	require.NoError(t, err)
	b, err := Compute([][]byte{[]byte("y"), []byte("x")})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
