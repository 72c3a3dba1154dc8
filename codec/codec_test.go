package codec

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	Name  string
	Value int
	Tags  []string
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := samplePayload{Name: "vnode", Value: 42, Tags: []string{"a", "b"}}

	wire, err := Encode(in)
	require.NoError(t, err)
	assert.NotEmpty(t, wire)

	var out samplePayload
	require.NoError(t, Decode(wire, &out))
	assert.Equal(t, in, out)
}

func TestEncodeBytesRoundTrip(t *testing.T) {
	raw := []byte("deterministic signing bytes")
	wire, err := EncodeBytes(raw)
	require.NoError(t, err)

	back, err := DecodeBytes(wire)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(raw, back))
}

func TestSplitAndReassemble(t *testing.T) {
	body := bytes.Repeat([]byte("x"), 100*1024)
	chunks, err := Split(body, 4096)
	require.NoError(t, err)
	require.True(t, len(chunks) > 1)

	r := NewReassembler(time.Minute)
	defer r.Close()

	var out []byte
	var ok bool
	for i, c := range chunks {
		var err error
		out, ok, err = r.Add(c)
		require.NoError(t, err)
		if i < len(chunks)-1 {
			assert.False(t, ok)
		}
	}
	require.True(t, ok)
	assert.True(t, bytes.Equal(body, out))
}

func TestReassemblerDuplicateChunkIsNoOp(t *testing.T) {
	chunks, err := Split([]byte("hello world"), 4)
	require.NoError(t, err)

	r := NewReassembler(time.Minute)
	defer r.Close()

	// Deliver the first chunk twice while the message is still pending;
	// the duplicate must not count toward completion or alter the result.
	_, ok, err := r.Add(chunks[0])
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = r.Add(chunks[0])
	require.NoError(t, err)
	require.False(t, ok)

	var body []byte
	for _, c := range chunks[1:] {
		body, ok, err = r.Add(c)
		require.NoError(t, err)
	}
	require.True(t, ok)
	assert.Equal(t, "hello world", string(body))
}

func TestReassemblerRejectsMismatchedDuplicateChunk(t *testing.T) {
	chunks, err := Split([]byte("hello world"), 4)
	require.NoError(t, err)
	require.True(t, len(chunks) > 1)

	r := NewReassembler(time.Minute)
	defer r.Close()

	_, _, err = r.Add(chunks[0])
	require.NoError(t, err)

	tampered := chunks[0]
	tampered.Body = append([]byte{}, tampered.Body...)
	tampered.Body[0] ^= 0xff
	_, ok, err := r.Add(tampered)
	require.ErrorIs(t, err, ErrChunkMismatch)
	assert.False(t, ok)
}

func TestReassemblerExpiresIncompleteMessages(t *testing.T) {
	chunks, err := Split([]byte("abcdefgh"), 2)
	require.NoError(t, err)
	require.True(t, len(chunks) > 1)

	r := NewReassembler(20 * time.Millisecond)
	defer r.Close()

	_, _, err = r.Add(chunks[0])
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	r.mu.Lock()
	_, stillPending := r.pending[chunks[0].MessageID]
	r.mu.Unlock()
	assert.False(t, stillPending)
}
