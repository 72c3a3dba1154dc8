// Package identity provides the node identity primitives for a ring: key
// generation, recoverable-signature Did derivation, and delegated signing
// sessions.
package identity

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Did is a node's ring position and routable address: the low 160 bits of
// the Keccak-256 hash of its uncompressed secp256k1 public key, the same
// derivation Ethereum uses for account addresses.
type Did [20]byte

func (d Did) String() string {
	return gethcrypto.Address(d).Hex()
}

// ParseDid parses the hex form produced by Did.String (with or without
// the "0x" prefix) back into a Did.
func ParseDid(s string) (Did, error) {
	if !common.IsHexAddress(s) {
		return Did{}, fmt.Errorf("identity: invalid did %q", s)
	}
	return Did(common.HexToAddress(s)), nil
}

// IsZero reports whether d is the zero Did.
func (d Did) IsZero() bool {
	return d == Did{}
}

// Bytes returns a copy of the raw 20 address bytes.
func (d Did) Bytes() []byte {
	out := make([]byte, len(d))
	copy(out, d[:])
	return out
}

var (
	// ErrInvalidSignature is returned when a signature fails to verify or
	// cannot be recovered to a public key.
	ErrInvalidSignature = errors.New("identity: invalid signature")
	// ErrSessionExpired is returned by Verify when a DelegatedSession's
	// expiry has passed.
	ErrSessionExpired = errors.New("identity: delegated session expired")
	// ErrOwnerMismatch is returned when a delegated session's recovered
	// owner signature does not match the claimed owner Did.
	ErrOwnerMismatch = errors.New("identity: delegated session owner mismatch")
)

// GenerateSecretKey creates a new secp256k1 key pair, mirroring the
// teacher's GenerateSecp256k1KeyPair but returning the stdlib ecdsa type
// go-ethereum's recoverable signature helpers operate on.
func GenerateSecretKey() (*ecdsa.PrivateKey, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return priv.ToECDSA(), nil
}

// DidFromPublicKey derives a Did (ring address) from a public key.
func DidFromPublicKey(pub *ecdsa.PublicKey) Did {
	return Did(gethcrypto.PubkeyToAddress(*pub))
}

// DidFromPrivateKey derives the Did of a key pair's owner.
func DidFromPrivateKey(priv *ecdsa.PrivateKey) Did {
	return DidFromPublicKey(&priv.PublicKey)
}

// Sign produces a 65-byte recoverable signature (r ‖ s ‖ v) over the
// Keccak-256 digest of msg.
func Sign(priv *ecdsa.PrivateKey, msg []byte) ([]byte, error) {
	digest := gethcrypto.Keccak256(msg)
	sig, err := gethcrypto.Sign(digest, priv)
	if err != nil {
		return nil, fmt.Errorf("identity: sign: %w", err)
	}
	return sig, nil
}

// Recover recovers the signer's Did from a recoverable signature over msg.
func Recover(msg, sig []byte) (Did, error) {
	digest := gethcrypto.Keccak256(msg)
	pub, err := gethcrypto.SigToPub(digest, sig)
	if err != nil {
		return Did{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return DidFromPublicKey(pub), nil
}

// Verify checks that sig over msg was produced by the holder of did.
func Verify(did Did, msg, sig []byte) error {
	recovered, err := Recover(msg, sig)
	if err != nil {
		return err
	}
	if recovered != did {
		return ErrInvalidSignature
	}
	return nil
}
