package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOfferAnswerHandshake exercises a full loopback handshake between
// two in-process peers: A's offer is registered on B, B's answer is
// registered back on A, and both sides' Connected promise resolves.
func TestOfferAnswerHandshake(t *testing.T) {
	a, err := NewPeer(Config{})
	require.NoError(t, err)
	defer a.Close()

	b, err := NewPeer(Config{})
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	offer, err := a.GetOffer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "offer", offer.SDPType)
	assert.NotEmpty(t, offer.SDP)

	require.NoError(t, b.RegisterRemoteInfo(offer))
	answer, err := b.GetAnswer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "answer", answer.SDPType)

	require.NoError(t, a.RegisterRemoteInfo(answer))

	aOK, err := a.Connected(ctx)
	require.NoError(t, err)
	assert.True(t, aOK)

	bOK, err := b.Connected(ctx)
	require.NoError(t, err)
	assert.True(t, bOK)
}

func TestSendNotReadyBeforeDataChannelOpen(t *testing.T) {
	p, err := NewPeer(Config{})
	require.NoError(t, err)
	defer p.Close()

	err = p.Send([]byte("too soon"))
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestUnsupportedSdpTypeRejected(t *testing.T) {
	p, err := NewPeer(Config{})
	require.NoError(t, err)
	defer p.Close()

	err = p.RegisterRemoteInfo(HandshakeEnvelope{SDPType: "candidate", SDP: "v=0"})
	assert.ErrorIs(t, err, ErrUnsupportedSdpType)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := HandshakeEnvelope{SDPType: "offer", SDP: "v=0...", Candidates: []Candidate{{Candidate: "candidate:1 ..."}}}
	b, err := MarshalEnvelope(env)
	require.NoError(t, err)
	got, err := UnmarshalEnvelope(b)
	require.NoError(t, err)
	assert.Equal(t, env.SDPType, got.SDPType)
	assert.Equal(t, env.SDP, got.SDP)
	require.Len(t, got.Candidates, 1)
	assert.Equal(t, env.Candidates[0].Candidate, got.Candidates[0].Candidate)
}
