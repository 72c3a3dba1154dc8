package dht

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/sage-x-project/rings/identity"
)

// VNodeKind distinguishes what a VNode's Data slice means and, in turn,
// how Extend/Touch insert new blobs into it.
type VNodeKind int

const (
	// VNodeData holds an append-only list of opaque encoded blobs.
	VNodeData VNodeKind = iota
	// VNodeSubring holds a sorted set of member Dids, one per blob.
	// Extend/Touch insert in sorted order instead of appending, so the
	// set stays sorted without a separate maintenance pass.
	VNodeSubring
	// VNodeRelayMessage holds undelivered relay envelopes keyed by
	// destination: each blob is a 20-byte destination Did followed by
	// the envelope. Extend/Touch replace any existing blob for the same
	// destination rather than appending a duplicate.
	VNodeRelayMessage
)

// relayKeyLen is the byte width of the destination key prefixing each
// VNodeRelayMessage blob — identity.Did's own width.
const relayKeyLen = 20

// VNode is the unit of DHT storage: a ring position (Did, derived from
// hashing the owning key/topic) plus the blobs stored under it.
type VNode struct {
	Did  identity.Did
	Data [][]byte
	Kind VNodeKind
}

// Clone returns a deep copy of v.
func (v VNode) Clone() VNode {
	data := make([][]byte, len(v.Data))
	for i, d := range v.Data {
		cp := make([]byte, len(d))
		copy(cp, d)
		data[i] = cp
	}
	return VNode{Did: v.Did, Data: data, Kind: v.Kind}
}

// VNodeOp is a storage mutation requested on a VNode: Overwrite replaces
// the stored data outright, Extend appends a new blob, Touch appends a
// blob only if it is not already present (dedup-on-write).
type VNodeOp struct {
	Kind VNodeOpKind
	Node VNode
}

// VNodeOpKind enumerates the three storage operations the original
// ChordStorageInterface exposes (storage_store / storage_append_data /
// storage_touch_data).
type VNodeOpKind int

const (
	OpOverwrite VNodeOpKind = iota
	OpExtend
	OpTouch
)

// StoreAction reports what Operate/Lookup did so the caller (handlers)
// knows whether to forward a message or has finished locally.
type StoreAction struct {
	// Stored is true when the operation completed on this node.
	Stored bool
	// Found holds the resolved VNode for a successful local Lookup.
	Found *VNode
	// Forward is set when vid/vnode is not owned by this node and must
	// be relayed to Next.
	Forward bool
	Next    identity.Did
}

// vnodeStore holds two maps guarded by its own mutex: store for data
// this node owns (key in (predecessor, self]), cache for the results of
// remote lookups this node has queried on behalf of local callers.
type vnodeStore struct {
	mu    sync.Mutex
	store map[identity.Did]VNode
	cache map[identity.Did]VNode
}

func newVNodeStore() *vnodeStore {
	return &vnodeStore{
		store: make(map[identity.Did]VNode),
		cache: make(map[identity.Did]VNode),
	}
}

// Owns reports whether vid falls in this node's owned range: the
// half-open interval (predecessor, self].
func (r *Ring) Owns(vid identity.Did) bool {
	pred, ok := r.Predecessor()
	if !ok {
		return true // no known predecessor yet: assume full ownership
	}
	return betweenInclusiveEnd(pred, vid, r.self)
}

// VNodeOperate applies op locally if this node owns op.Node.Did, or
// reports the next hop to forward it to otherwise. Mirrors
// ChordStorage::vnode_operate / PeerRingAction::RemoteAction.
func (r *Ring) VNodeOperate(op VNodeOp) (StoreAction, error) {
	if !r.Owns(op.Node.Did) {
		next, err := r.FindSuccessor(noCtx(), op.Node.Did)
		if err != nil {
			return StoreAction{}, fmt.Errorf("dht: vnode_operate: %w", err)
		}
		if next == r.self {
			// We are in fact the successor; fall through to local apply.
		} else {
			return StoreAction{Forward: true, Next: next}, nil
		}
	}

	r.vnodes.mu.Lock()
	defer r.vnodes.mu.Unlock()

	switch op.Kind {
	case OpOverwrite:
		r.vnodes.store[op.Node.Did] = op.Node.Clone()
	case OpExtend:
		existing := r.vnodes.store[op.Node.Did]
		existing.Did = op.Node.Did
		existing.Kind = op.Node.Kind
		for _, blob := range op.Node.Data {
			existing.Data = insertBlob(existing.Data, op.Node.Kind, blob, false)
		}
		r.vnodes.store[op.Node.Did] = existing
	case OpTouch:
		existing := r.vnodes.store[op.Node.Did]
		existing.Did = op.Node.Did
		existing.Kind = op.Node.Kind
		for _, blob := range op.Node.Data {
			existing.Data = insertBlob(existing.Data, op.Node.Kind, blob, true)
		}
		r.vnodes.store[op.Node.Did] = existing
	default:
		return StoreAction{}, fmt.Errorf("dht: unknown vnode op %d", op.Kind)
	}
	stored := r.vnodes.store[op.Node.Did]
	return StoreAction{Stored: true, Found: &stored}, nil
}

// VNodeLookup returns the VNode for vid if this node owns and holds it,
// or the next hop to forward a SearchVNode to otherwise.
func (r *Ring) VNodeLookup(vid identity.Did) (StoreAction, error) {
	if !r.Owns(vid) {
		next, err := r.FindSuccessor(noCtx(), vid)
		if err != nil {
			return StoreAction{}, fmt.Errorf("dht: vnode_lookup: %w", err)
		}
		if next != r.self {
			return StoreAction{Forward: true, Next: next}, nil
		}
	}

	r.vnodes.mu.Lock()
	defer r.vnodes.mu.Unlock()
	if v, ok := r.vnodes.store[vid]; ok {
		found := v.Clone()
		return StoreAction{Found: &found}, nil
	}
	return StoreAction{}, nil
}

// LocalCacheSet records a remote lookup's result in the local cache, used
// by callers (e.g. the FoundVNode handler) once a SearchVNode response
// arrives.
func (r *Ring) LocalCacheSet(v VNode) {
	r.vnodes.mu.Lock()
	defer r.vnodes.mu.Unlock()
	r.vnodes.cache[v.Did] = v.Clone()
}

// LocalCacheGet returns a previously cached remote lookup result.
func (r *Ring) LocalCacheGet(vid identity.Did) (VNode, bool) {
	r.vnodes.mu.Lock()
	defer r.vnodes.mu.Unlock()
	v, ok := r.vnodes.cache[vid]
	if !ok {
		return VNode{}, false
	}
	return v.Clone(), true
}

// StoredCount returns the number of VNodes owned (stored) locally, used
// by tests mirroring the Rust suite's dht.storage.count() assertions.
func (r *Ring) StoredCount() int {
	r.vnodes.mu.Lock()
	defer r.vnodes.mu.Unlock()
	return len(r.vnodes.store)
}

// SyncWithSuccessor applies a batch of VNodes pushed by a predecessor
// that is handing off ownership after a Notify (SyncVNodeWithSuccessor).
// Each VNode is simply overwritten into the local store, as in the
// original handler ("only simply store here").
func (r *Ring) SyncWithSuccessor(nodes []VNode) {
	r.vnodes.mu.Lock()
	defer r.vnodes.mu.Unlock()
	for _, v := range nodes {
		r.vnodes.store[v.Did] = v.Clone()
	}
}

func containsBlob(blobs [][]byte, target []byte) bool {
	for _, b := range blobs {
		if string(b) == string(target) {
			return true
		}
	}
	return false
}

// insertBlob adds blob to data per kind's invariant: VNodeData honors
// touch (true = skip if already present, matching OpTouch; false =
// unconditional append, matching OpExtend); VNodeSubring keeps data a
// sorted, deduplicated set of Dids regardless of touch; VNodeRelayMessage
// keeps at most one blob per destination key, replacing any existing
// entry for that destination regardless of touch.
func insertBlob(data [][]byte, kind VNodeKind, blob []byte, touch bool) [][]byte {
	switch kind {
	case VNodeSubring:
		return sortedSetInsert(data, blob)
	case VNodeRelayMessage:
		return relayKeyedUpsert(data, blob)
	default:
		if touch && containsBlob(data, blob) {
			return data
		}
		return append(data, blob)
	}
}

// sortedSetInsert inserts blob into data, which is kept sorted and
// deduplicated, per invariant (ii): Subring VNodes are sorted sets.
func sortedSetInsert(data [][]byte, blob []byte) [][]byte {
	i := sort.Search(len(data), func(i int) bool { return bytes.Compare(data[i], blob) >= 0 })
	if i < len(data) && bytes.Equal(data[i], blob) {
		return data
	}
	out := make([][]byte, len(data)+1)
	copy(out, data[:i])
	out[i] = append([]byte{}, blob...)
	copy(out[i+1:], data[i:])
	return out
}

// relayKeyedUpsert replaces the blob sharing blob's destination prefix,
// or appends blob if no such entry exists yet, per invariant (iii):
// RelayMessage VNodes hold undelivered envelopes keyed by destination.
func relayKeyedUpsert(data [][]byte, blob []byte) [][]byte {
	if len(blob) < relayKeyLen {
		return append(data, blob)
	}
	key := blob[:relayKeyLen]
	for i, b := range data {
		if len(b) >= relayKeyLen && bytes.Equal(b[:relayKeyLen], key) {
			out := append([][]byte{}, data...)
			out[i] = append([]byte{}, blob...)
			return out
		}
	}
	return append(data, blob)
}
