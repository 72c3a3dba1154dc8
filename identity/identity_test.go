package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndRecover(t *testing.T) {
	priv, err := GenerateSecretKey()
	require.NoError(t, err)

	did := DidFromPrivateKey(priv)
	assert.False(t, did.IsZero())

	msg := []byte("join-request")
	sig, err := Sign(priv, msg)
	require.NoError(t, err)
	assert.Len(t, sig, 65)

	require.NoError(t, Verify(did, msg, sig))

	other, err := GenerateSecretKey()
	require.NoError(t, err)
	assert.Error(t, Verify(DidFromPrivateKey(other), msg, sig))

	tampered := append([]byte(nil), sig...)
	tampered[0] ^= 0xFF
	_, err = Recover(msg, tampered)
	_ = err // either recovers to a different Did or fails outright; both are acceptable
}

func TestDelegatedSessionLifecycle(t *testing.T) {
	owner, err := GenerateSecretKey()
	require.NoError(t, err)

	sess, err := NewDelegatedSession(owner, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, DidFromPrivateKey(owner), sess.Owner)

	msg := []byte("store request")
	sig, err := sess.Sign(msg)
	require.NoError(t, err)

	require.NoError(t, sess.Verify(msg, sig))
}

func TestDelegatedSessionExpired(t *testing.T) {
	owner, err := GenerateSecretKey()
	require.NoError(t, err)

	sess, err := NewDelegatedSession(owner, -time.Second)
	require.NoError(t, err)

	_, err = sess.Sign([]byte("anything"))
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestDelegatedSessionRejectsForeignOwner(t *testing.T) {
	owner, err := GenerateSecretKey()
	require.NoError(t, err)
	sess, err := NewDelegatedSession(owner, time.Minute)
	require.NoError(t, err)

	impostor, err := GenerateSecretKey()
	require.NoError(t, err)
	sess.Owner = DidFromPrivateKey(impostor)

	msg := []byte("forged")
	sig, err := sess.Sign(msg)
	require.NoError(t, err)
	assert.ErrorIs(t, sess.Verify(msg, sig), ErrOwnerMismatch)
}
