//go:build unix

package reactor

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_InitialState(t *testing.T) {
	b := NewBuffer()
	assert.Equal(t, 0, b.ReadableBytes())
	assert.Equal(t, initialSize, b.WritableBytes())
	assert.Equal(t, cheapPrepend, b.PrependableBytes())
}

func TestBuffer_AppendAndRetrieve(t *testing.T) {
	b := NewBuffer()
	b.AppendString("hello")
	require.Equal(t, 5, b.ReadableBytes())
	assert.Equal(t, "hello", string(b.Peek()))

	b.Retrieve(2)
	assert.Equal(t, "llo", string(b.Peek()))
	assert.Equal(t, 3, b.ReadableBytes())

	s := b.RetrieveAllString()
	assert.Equal(t, "llo", s)
	assert.Equal(t, 0, b.ReadableBytes())
}

func TestBuffer_GrowsWhenPrependSpaceInsufficient(t *testing.T) {
	b := NewBuffer()
	big := make([]byte, initialSize+100)
	for i := range big {
		big[i] = byte(i)
	}
	b.AppendString(string(big))
	require.Equal(t, len(big), b.ReadableBytes())
	assert.Equal(t, big, b.Peek())
}

func TestBuffer_CompactsInsteadOfGrowingWhenPossible(t *testing.T) {
	b := NewBuffer()
	b.AppendString("0123456789")
	b.Retrieve(5)
	require.Equal(t, 5, b.ReadableBytes())

	startLen := len(b.buf)
	// Writable space alone (initialSize-10) is 3 bytes short, but enough
	// prependable+writable space exists once the 5 already-read bytes are
	// reclaimed, so this must compact rather than reallocate.
	fill := strings.Repeat("x", initialSize-10+3)
	b.AppendString(fill)
	assert.Equal(t, startLen, len(b.buf))
	assert.Equal(t, "56789"+fill, string(b.Peek()))
}

func TestBuffer_RetrieveAsBytesCopies(t *testing.T) {
	b := NewBuffer()
	b.AppendString("payload")
	out := b.RetrieveAsBytes()
	assert.Equal(t, "payload", string(out))

	b.AppendString("other")
	assert.Equal(t, "payload", string(out), "RetrieveAsBytes must not alias Buffer storage")
}

func TestBuffer_ReadWriteFDRoundTrip(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	out := NewBuffer()
	out.AppendString("round trip payload")
	n, err := out.WriteToFD(int(w.Fd()))
	require.NoError(t, err)
	assert.Equal(t, len("round trip payload"), n)
	out.Retrieve(n)

	in := NewBuffer()
	n, err = in.ReadFromFD(int(r.Fd()))
	require.NoError(t, err)
	assert.Equal(t, "round trip payload", string(in.Peek()[:n]))
}
