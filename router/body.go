package router

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"

	"github.com/sage-x-project/rings/dht"
	"github.com/sage-x-project/rings/identity"
)

// init registers every concrete Body implementation with gob so a
// Payload's Data interface field can round-trip through codec.Encode/
// Decode, which gob-encodes the envelope as a whole.
func init() {
	gob.Register(JoinDHT{})
	gob.Register(LeaveDHT{})
	gob.Register(ConnectNodeSend{})
	gob.Register(ConnectNodeReport{})
	gob.Register(FindSuccessorSend{})
	gob.Register(FindSuccessorReport{})
	gob.Register(NotifyPredecessorSend{})
	gob.Register(NotifyPredecessorReport{})
	gob.Register(SearchVNode{})
	gob.Register(FoundVNode{})
	gob.Register(OperateVNode{})
	gob.Register(SyncVNodeWithSuccessor{})
	gob.Register(CustomMessage{})
	gob.Register(PredecessorQuery{})
	gob.Register(PredecessorReport{})
}

func didsBytes(dids []identity.Did) []byte {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(dids)))
	buf.Write(lenBuf[:])
	for _, d := range dids {
		buf.Write(d.Bytes())
	}
	return buf.Bytes()
}

func blobsBytes(blobs [][]byte) []byte {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(blobs)))
	buf.Write(lenBuf[:])
	for _, b := range blobs {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
		buf.Write(lenBuf[:])
		buf.Write(b)
	}
	return buf.Bytes()
}

func vnodeBytes(v dht.VNode) []byte {
	var buf bytes.Buffer
	buf.Write(v.Did.Bytes())
	buf.WriteByte(byte(v.Kind))
	buf.Write(blobsBytes(v.Data))
	return buf.Bytes()
}

// JoinDHT asks the recipient to absorb did into its ring.
type JoinDHT struct{ Did identity.Did }

func (b JoinDHT) Kind() BodyKind       { return KindJoinDHT }
func (b JoinDHT) CanonicalBytes() []byte { return b.Did.Bytes() }

// LeaveDHT asks the recipient to forget did.
type LeaveDHT struct{ Did identity.Did }

func (b LeaveDHT) Kind() BodyKind       { return KindLeaveDHT }
func (b LeaveDHT) CanonicalBytes() []byte { return b.Did.Bytes() }

// ConnectNodeSend/Report carry a trickle-handshake envelope (§6)
// end-to-end through the DHT when the two peers aren't already
// connected. HandshakeWire is the base58 wire form of the handshake
// envelope, kept opaque to the router.
type ConnectNodeSend struct{ HandshakeWire string }

func (b ConnectNodeSend) Kind() BodyKind         { return KindConnectNodeSend }
func (b ConnectNodeSend) CanonicalBytes() []byte { return []byte(b.HandshakeWire) }

type ConnectNodeReport struct{ HandshakeWire string }

func (b ConnectNodeReport) Kind() BodyKind         { return KindConnectNodeReport }
func (b ConnectNodeReport) CanonicalBytes() []byte { return []byte(b.HandshakeWire) }

// FindSuccessorSend asks the recipient to resolve Id. ForInit marks this
// as part of a Join (result goes into the successor list rather than the
// finger table).
type FindSuccessorSend struct {
	ID      identity.Did
	ForInit bool
}

func (b FindSuccessorSend) Kind() BodyKind { return KindFindSuccessorSend }
func (b FindSuccessorSend) CanonicalBytes() []byte {
	out := append([]byte{}, b.ID.Bytes()...)
	if b.ForInit {
		return append(out, 1)
	}
	return append(out, 0)
}

type FindSuccessorReport struct {
	Succ    identity.Did
	ForInit bool
}

func (b FindSuccessorReport) Kind() BodyKind { return KindFindSuccessorReport }
func (b FindSuccessorReport) CanonicalBytes() []byte {
	out := append([]byte{}, b.Succ.Bytes()...)
	if b.ForInit {
		return append(out, 1)
	}
	return append(out, 0)
}

// NotifyPredecessorSend/Report implement Chord's notify step.
type NotifyPredecessorSend struct{ Self identity.Did }

func (b NotifyPredecessorSend) Kind() BodyKind       { return KindNotifyPredecessorSend }
func (b NotifyPredecessorSend) CanonicalBytes() []byte { return b.Self.Bytes() }

type NotifyPredecessorReport struct{ Successors []identity.Did }

func (b NotifyPredecessorReport) Kind() BodyKind         { return KindNotifyPredecessorReport }
func (b NotifyPredecessorReport) CanonicalBytes() []byte { return didsBytes(b.Successors) }

// SearchVNode/FoundVNode implement the VNode lookup round trip.
type SearchVNode struct{ Vid identity.Did }

func (b SearchVNode) Kind() BodyKind       { return KindSearchVNode }
func (b SearchVNode) CanonicalBytes() []byte { return b.Vid.Bytes() }

type FoundVNode struct{ Data []dht.VNode }

func (b FoundVNode) Kind() BodyKind { return KindFoundVNode }
func (b FoundVNode) CanonicalBytes() []byte {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b.Data)))
	buf.Write(lenBuf[:])
	for _, v := range b.Data {
		buf.Write(vnodeBytes(v))
	}
	return buf.Bytes()
}

// OperateVNode carries a storage mutation to the owning node.
type OperateVNode struct{ Op dht.VNodeOp }

func (b OperateVNode) Kind() BodyKind { return KindOperateVNode }
func (b OperateVNode) CanonicalBytes() []byte {
	out := []byte{byte(b.Op.Kind)}
	return append(out, vnodeBytes(b.Op.Node)...)
}

// SyncVNodeWithSuccessor pushes a batch of VNodes to a new owner after a
// predecessor change.
type SyncVNodeWithSuccessor struct{ Data []dht.VNode }

func (b SyncVNodeWithSuccessor) Kind() BodyKind { return KindSyncVNodeWithSuccessor }
func (b SyncVNodeWithSuccessor) CanonicalBytes() []byte {
	var buf bytes.Buffer
	for _, v := range b.Data {
		buf.Write(vnodeBytes(v))
	}
	return buf.Bytes()
}

// CustomMessage is an opaque application payload with no builtin effect;
// it only surfaces through the user callback at its destination.
type CustomMessage struct{ Content []byte }

func (b CustomMessage) Kind() BodyKind       { return KindCustomMessage }
func (b CustomMessage) CanonicalBytes() []byte { return b.Content }

// PredecessorQuery is a read-only ask for the recipient's current
// predecessor, used by Stabilize. Unlike NotifyPredecessorSend it never
// mutates the recipient's predecessor pointer or VNode ownership.
type PredecessorQuery struct{}

func (b PredecessorQuery) Kind() BodyKind         { return KindPredecessorQuery }
func (b PredecessorQuery) CanonicalBytes() []byte { return nil }

// PredecessorReport answers a PredecessorQuery. HasPred is false when the
// recipient has no predecessor yet, in which case Predecessor is the zero
// Did and must be ignored.
type PredecessorReport struct {
	Predecessor identity.Did
	HasPred     bool
}

func (b PredecessorReport) Kind() BodyKind { return KindPredecessorReport }
func (b PredecessorReport) CanonicalBytes() []byte {
	out := append([]byte{}, b.Predecessor.Bytes()...)
	if b.HasPred {
		return append(out, 1)
	}
	return append(out, 0)
}
