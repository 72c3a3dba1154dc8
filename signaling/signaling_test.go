package signaling

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sage-x-project/rings/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDid(t *testing.T) (identity.Did, func([]byte) ([]byte, error)) {
	t.Helper()
	priv, err := identity.GenerateSecretKey()
	require.NoError(t, err)
	return identity.DidFromPrivateKey(priv), func(msg []byte) ([]byte, error) { return identity.Sign(priv, msg) }
}

func TestDialServerRendezvous(t *testing.T) {
	offererDid, offererSign := mustDid(t)
	answererDid, answererSign := mustDid(t)

	srv := NewServer(func(ctx context.Context, offer Envelope) (Envelope, error) {
		assert.Equal(t, offererDid, offer.From)
		assert.Equal(t, "offer-wire", offer.Wire)
		answer := Envelope{From: answererDid, Wire: "answer-wire"}
		require.NoError(t, answer.Sign(answererSign))
		return answer, nil
	})

	ts := httptest.NewServer(srv)
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	offer := Envelope{From: offererDid, Wire: "offer-wire"}
	require.NoError(t, offer.Sign(offererSign))

	answer, err := Dial(context.Background(), wsURL, offer)
	require.NoError(t, err)
	assert.Equal(t, answererDid, answer.From)
	assert.Equal(t, "answer-wire", answer.Wire)
}

func TestServerRejectsInvalidSignature(t *testing.T) {
	offererDid, offererSign := mustDid(t)
	called := false
	srv := NewServer(func(ctx context.Context, offer Envelope) (Envelope, error) {
		called = true
		return Envelope{}, nil
	})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	offer := Envelope{From: offererDid, Wire: "offer-wire"}
	require.NoError(t, offer.Sign(offererSign))
	offer.Wire = "tampered-wire" // invalidates the signature

	_, err := Dial(context.Background(), wsURL, offer)
	assert.Error(t, err)
	assert.False(t, called)
}
