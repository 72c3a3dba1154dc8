package identity

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"time"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// DelegatedSession is an ephemeral signing key authorized, for a bounded
// time, by a long-lived owner key. A peer can hand a DelegatedSession to a
// short-lived process (a worker goroutine, a browser tab) without exposing
// the owner's private key.
type DelegatedSession struct {
	Owner      Did
	SessionPub *ecdsa.PublicKey
	SessionKey *ecdsa.PrivateKey // nil once the session has been exported/shared
	Expiry     time.Time
	OwnerSig   []byte // owner's signature over authorizationBytes(SessionPub, Expiry)
}

// NewDelegatedSession generates a fresh ephemeral key and has owner
// authorize it for ttl.
func NewDelegatedSession(owner *ecdsa.PrivateKey, ttl time.Duration) (*DelegatedSession, error) {
	sessionKey, err := GenerateSecretKey()
	if err != nil {
		return nil, fmt.Errorf("identity: new delegated session: %w", err)
	}
	expiry := time.Now().Add(ttl)
	auth := authorizationBytes(&sessionKey.PublicKey, expiry)
	sig, err := Sign(owner, auth)
	if err != nil {
		return nil, fmt.Errorf("identity: authorize delegated session: %w", err)
	}
	return &DelegatedSession{
		Owner:      DidFromPrivateKey(owner),
		SessionPub: &sessionKey.PublicKey,
		SessionKey: sessionKey,
		Expiry:     expiry,
		OwnerSig:   sig,
	}, nil
}

// Sign signs msg with the session key. It fails once the session has been
// stripped of its private key (e.g. after being handed to a verifier-only
// peer) or has expired.
func (s *DelegatedSession) Sign(msg []byte) ([]byte, error) {
	if s.SessionKey == nil {
		return nil, fmt.Errorf("identity: delegated session has no private key")
	}
	if time.Now().After(s.Expiry) {
		return nil, ErrSessionExpired
	}
	return Sign(s.SessionKey, msg)
}

// Verify checks that sig over msg was produced by this session's key, and
// that the session is still validly authorized by its owner.
func (s *DelegatedSession) Verify(msg, sig []byte) error {
	if time.Now().After(s.Expiry) {
		return ErrSessionExpired
	}
	sessionDid := DidFromPublicKey(s.SessionPub)
	if err := Verify(sessionDid, msg, sig); err != nil {
		return err
	}
	auth := authorizationBytes(s.SessionPub, s.Expiry)
	ownerRecovered, err := Recover(auth, s.OwnerSig)
	if err != nil {
		return err
	}
	if ownerRecovered != s.Owner {
		return ErrOwnerMismatch
	}
	return nil
}

// authorizationBytes produces the deterministic byte string the owner
// signs to authorize a session key: the uncompressed public key bytes
// followed by the big-endian unix expiry.
func authorizationBytes(pub *ecdsa.PublicKey, expiry time.Time) []byte {
	pubBytes := gethcrypto.FromECDSAPub(pub)
	var expiryBuf [8]byte
	binary.BigEndian.PutUint64(expiryBuf[:], uint64(expiry.Unix()))
	return append(pubBytes, expiryBuf[:]...)
}
