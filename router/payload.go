// Package router implements the signed message envelope and the
// verify → validate → path-append → dispatch-or-forward pipeline that
// carries both Chord control traffic and application payloads across the
// swarm.
package router

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sage-x-project/rings/identity"
)

// BodyKind identifies which of the spec's message-body variants a
// Payload carries. Go has no tagged-union type, so Body implementations
// self-report their kind and the envelope carries the kind alongside the
// gob-encoded body for dispatch without a type switch on the wire.
type BodyKind uint8

const (
	KindJoinDHT BodyKind = iota
	KindLeaveDHT
	KindConnectNodeSend
	KindConnectNodeReport
	KindFindSuccessorSend
	KindFindSuccessorReport
	KindNotifyPredecessorSend
	KindNotifyPredecessorReport
	KindSearchVNode
	KindFoundVNode
	KindOperateVNode
	KindSyncVNodeWithSuccessor
	KindCustomMessage
	KindPredecessorQuery
	KindPredecessorReport
)

func (k BodyKind) String() string {
	names := [...]string{
		"JoinDHT", "LeaveDHT", "ConnectNodeSend", "ConnectNodeReport",
		"FindSuccessorSend", "FindSuccessorReport", "NotifyPredecessorSend",
		"NotifyPredecessorReport", "SearchVNode", "FoundVNode", "OperateVNode",
		"SyncVNodeWithSuccessor", "CustomMessage", "PredecessorQuery",
		"PredecessorReport",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// Body is any message-body variant. Kind reports which variant, and
// CanonicalBytes produces the deterministic byte representation folded
// into the envelope's signature — every Body implementation defines its
// own field order rather than relying on reflection, so the signing
// preimage is stable regardless of struct evolution.
type Body interface {
	Kind() BodyKind
	CanonicalBytes() []byte
}

// RelayMethod distinguishes a forward-direction SEND from a
// reverse-direction REPORT that walks the path back.
type RelayMethod uint8

const (
	MethodSend RelayMethod = iota
	MethodReport
)

// RelayState carries the routing metadata for one payload: how it is
// being relayed, the path of Dids visited so far, a cursor used only by
// REPORT traversal, the chosen next hop, and the final destination.
type RelayState struct {
	Method        RelayMethod
	Path          []identity.Did
	PathEndCursor int
	NextHop       identity.Did
	HasNextHop    bool
	Destination   identity.Did
}

// StableBytes produces the part of a RelayState that is fixed at
// origination time and folded into the envelope signature: method and
// destination. Path and path_end_cursor are deliberately excluded — they
// are mutated hop-by-hop as the payload is forwarded, and the signature
// must still verify at every hop, not just at the destination.
func (r RelayState) StableBytes() []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(r.Method))
	buf.Write(r.Destination.Bytes())
	return buf.Bytes()
}

// CanonicalBytes is the full deterministic encoding of a RelayState,
// including the mutable path and cursor. It is not part of the envelope
// signature; it exists for logging/hashing/equality checks that do care
// about the hop-by-hop state.
func (r RelayState) CanonicalBytes() []byte {
	var buf bytes.Buffer
	buf.Write(r.StableBytes())
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(r.Path)))
	buf.Write(lenBuf[:])
	for _, d := range r.Path {
		buf.Write(d.Bytes())
	}
	binary.BigEndian.PutUint32(lenBuf[:], uint32(r.PathEndCursor))
	buf.Write(lenBuf[:])
	return buf.Bytes()
}

// AppendSelf appends self to the relay path, as every SEND hop must do
// before forwarding.
func (r *RelayState) AppendSelf(self identity.Did) {
	r.Path = append(r.Path, self)
}

// ConsumeReportHop advances the REPORT cursor one step back along the
// path without mutating Path itself, representing this hop having
// received (and now processed) the REPORT.
func (r *RelayState) ConsumeReportHop() {
	r.PathEndCursor--
}

// PreviousHop returns the Did the cursor currently points at — the
// previous hop a REPORT should be forwarded to — or (zero, false) once
// the path is exhausted (the REPORT has reached its origin).
func (r RelayState) PreviousHop() (identity.Did, bool) {
	idx := r.PathEndCursor - 1
	if idx < 0 {
		return identity.Did{}, false
	}
	return r.Path[idx], true
}

// ContainsHop reports whether did already appears in the path — used by
// the router's routing-loop check.
func (r RelayState) ContainsHop(did identity.Did) bool {
	for _, p := range r.Path {
		if p == did {
			return true
		}
	}
	return false
}

// Reversed builds the RelayState for a REPORT answering a SEND that
// reached its destination through the given path: method REPORT, same
// path, cursor set to walk backward from the end.
func Reversed(path []identity.Did, destination identity.Did) RelayState {
	return RelayState{
		Method:        MethodReport,
		Path:          path,
		PathEndCursor: len(path),
		Destination:   destination,
	}
}

// Payload is the signed envelope every message travels in.
type Payload struct {
	TxID      [16]byte
	Data      Body
	Addr      identity.Did // claimed origin
	Relay     RelayState
	Signature []byte
	TTL       int
}

// ErrInvalidSignature mirrors the taxonomy in spec.md §7.
var ErrInvalidSignature = errors.New("router: invalid signature")

// ErrTTLExhausted is returned by Verify when TTL has reached zero.
var ErrTTLExhausted = errors.New("router: ttl exhausted")

// NewPayload builds and signs a Payload with a fresh random tx_id.
func NewPayload(priv identity.Did, signFn func([]byte) ([]byte, error), body Body, relay RelayState, ttl int) (*Payload, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("router: tx_id: %w", err)
	}
	var txID [16]byte
	copy(txID[:], id[:])
	return NewPayloadWithTxID(txID, priv, signFn, body, relay, ttl)
}

// NewPayloadWithTxID is NewPayload with an explicit tx_id, used by reply
// handlers (FindSuccessorReport, NotifyPredecessorReport, FoundVNode,
// ConnectNodeReport) that echo the originating request's tx_id so a
// caller blocked in an RPC-style wait (e.g. swarm.Swarm's dht.RemoteRing
// adapter) can correlate the reply without a separate request table.
func NewPayloadWithTxID(txID [16]byte, priv identity.Did, signFn func([]byte) ([]byte, error), body Body, relay RelayState, ttl int) (*Payload, error) {
	p := &Payload{
		TxID:  txID,
		Data:  body,
		Addr:  priv,
		Relay: relay,
		TTL:   ttl,
	}
	sig, err := signFn(p.SigningBytes())
	if err != nil {
		return nil, fmt.Errorf("router: sign payload: %w", err)
	}
	p.Signature = sig
	return p, nil
}

// SigningBytes is the canonical byte preimage signed by the originator:
// tx_id ‖ body kind ‖ body bytes ‖ relay bytes. It deliberately excludes
// TTL (decremented hop-by-hop) and Signature itself.
func (p *Payload) SigningBytes() []byte {
	var buf bytes.Buffer
	buf.Write(p.TxID[:])
	buf.WriteByte(byte(p.Data.Kind()))
	buf.Write(p.Data.CanonicalBytes())
	buf.Write(p.Relay.StableBytes())
	return buf.Bytes()
}

// Verify checks that Signature over SigningBytes recovers Addr, and that
// TTL is still positive.
func (p *Payload) Verify() error {
	if p.TTL <= 0 {
		return ErrTTLExhausted
	}
	if err := identity.Verify(p.Addr, p.SigningBytes(), p.Signature); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}
