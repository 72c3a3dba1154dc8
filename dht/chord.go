// Package dht implements the Chord-style ring used to route lookups and
// own key ranges: a finger table, a successor list, a predecessor
// pointer, and the join/stabilize/notify/fix_fingers maintenance loop.
//
// The ring size is fixed at 2^160, matching the width of an identity.Did.
// Unlike a classic single-process Chord implementation, remote ring
// operations (FindSuccessors, GetPredecessor, Notify) are not made over a
// private RPC transport: they are carried as signed router.Payload
// messages over the swarm, so this package depends only on the small
// RemoteRing interface below, which swarm.Swarm implements by reaching
// across the network through the router and handlers packages.
package dht

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/sage-x-project/rings/identity"
)

// ringBits is the width of the Chord key space: 160 bits, eight per byte
// of the 20-byte identity.Did.
const ringBits = 160

// RemoteRing is how a Ring reaches another node's ring state. swarm.Swarm
// satisfies this by sending/receiving signed router.Payload messages;
// tests satisfy it with an in-memory fake.
type RemoteRing interface {
	// FindSuccessors asks target for up to n successors of key.
	FindSuccessors(ctx context.Context, target identity.Did, n int, key identity.Did) ([]identity.Did, error)
	// GetPredecessor asks target for its current predecessor.
	GetPredecessor(ctx context.Context, target identity.Did) (identity.Did, bool, error)
	// Notify tells target that self believes it might be target's
	// predecessor, returning target's successor list.
	Notify(ctx context.Context, target identity.Did, self identity.Did) ([]identity.Did, error)
}

// Config configures a Ring's maintenance behavior.
type Config struct {
	// NumSuccessors is the length of the successor list (K). Default 3.
	NumSuccessors int
	// StabilizeInterval drives both stabilize and the round-robin
	// fix_fingers tick.
	StabilizeInterval time.Duration
}

// DefaultConfig mirrors the teacher's buddystore.DefaultConfig shape,
// adapted to the spec's defaults (K=3, ring fixed at 160 bits).
func DefaultConfig() Config {
	return Config{
		NumSuccessors:     3,
		StabilizeInterval: 5 * time.Second,
	}
}

// Ring is one node's view of the Chord ring.
type Ring struct {
	self   identity.Did
	remote RemoteRing
	cfg    Config

	mu          sync.Mutex
	successors  []identity.Did // successors[0] is the immediate successor
	predecessor identity.Did
	hasPred     bool
	fingers     [ringBits]identity.Did
	hasFinger   [ringBits]bool
	nextFinger  int

	vnodes *vnodeStore

	ticker *time.Ticker
	stop   chan struct{}
	once   sync.Once
}

func noCtx() context.Context { return context.Background() }

// NewRing creates a ring containing only self, ready to be grown with
// Join or to act as the first node of a new ring.
func NewRing(self identity.Did, remote RemoteRing, cfg Config) *Ring {
	if cfg.NumSuccessors <= 0 {
		cfg.NumSuccessors = DefaultConfig().NumSuccessors
	}
	if cfg.StabilizeInterval <= 0 {
		cfg.StabilizeInterval = DefaultConfig().StabilizeInterval
	}
	r := &Ring{
		self:   self,
		remote: remote,
		cfg:    cfg,
		stop:   make(chan struct{}),
		vnodes: newVNodeStore(),
	}
	return r
}

// Start begins the periodic stabilize/fix_fingers maintenance loop.
func (r *Ring) Start() {
	r.ticker = time.NewTicker(r.cfg.StabilizeInterval)
	go r.maintenanceLoop()
}

// Close stops the maintenance loop.
func (r *Ring) Close() {
	r.once.Do(func() {
		if r.ticker != nil {
			r.ticker.Stop()
		}
		close(r.stop)
	})
}

func (r *Ring) maintenanceLoop() {
	ctx := context.Background()
	for {
		select {
		case <-r.stop:
			return
		case <-r.ticker.C:
			r.Stabilize(ctx)
			r.FixNextFinger(ctx)
		}
	}
}

// Self returns this ring's own Did.
func (r *Ring) Self() identity.Did {
	return r.self
}

// Predecessor returns the current predecessor, if known.
func (r *Ring) Predecessor() (identity.Did, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.predecessor, r.hasPred
}

// Successors returns a copy of the current successor list.
func (r *Ring) Successors() []identity.Did {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]identity.Did, len(r.successors))
	copy(out, r.successors)
	return out
}

// Join contacts bootstrap to learn this node's initial successor list,
// then runs an immediate stabilize pass (the buddystore Join + fast
// stabilize pattern).
func (r *Ring) Join(ctx context.Context, bootstrap identity.Did) error {
	succs, err := r.remote.FindSuccessors(ctx, bootstrap, r.cfg.NumSuccessors, r.self)
	if err != nil {
		return fmt.Errorf("dht: join: %w", err)
	}
	if len(succs) == 0 {
		return fmt.Errorf("dht: join: bootstrap returned no successors")
	}

	r.mu.Lock()
	r.successors = trimSelf(succs, r.self, r.cfg.NumSuccessors)
	r.mu.Unlock()

	r.Stabilize(ctx)
	return nil
}

// FindSuccessor resolves the node responsible for key, walking the ring
// via closest_preceding_node hops when key is not within this node's
// immediate successor range.
func (r *Ring) FindSuccessor(ctx context.Context, key identity.Did) (identity.Did, error) {
	r.mu.Lock()
	succ := primarySuccessor(r.successors, r.self)
	r.mu.Unlock()

	if succ.IsZero() || betweenInclusiveEnd(r.self, key, succ) {
		if succ.IsZero() {
			return r.self, nil
		}
		return succ, nil
	}

	next := r.ClosestPrecedingNode(key)
	if next == r.self {
		return succ, nil
	}

	results, err := r.remote.FindSuccessors(ctx, next, 1, key)
	if err != nil {
		return identity.Did{}, fmt.Errorf("dht: find_successor: %w", err)
	}
	if len(results) == 0 {
		return identity.Did{}, fmt.Errorf("dht: find_successor: no result from %s", next)
	}
	return results[0], nil
}

// LocalFindSuccessor performs the non-blocking, no-I/O half of
// find_successor: if key already falls in (self, successor[0]], the
// answer is known locally (FoundLocally); otherwise it returns the next
// hop to forward a FindSuccessorSend to. This is what the handlers
// package calls from within a pure Handle() — the network round trip
// happens at the router/swarm layer, not here.
func (r *Ring) LocalFindSuccessor(key identity.Did) (succ identity.Did, foundLocally bool) {
	r.mu.Lock()
	s := primarySuccessor(r.successors, r.self)
	r.mu.Unlock()

	if s.IsZero() || betweenInclusiveEnd(r.self, key, s) {
		if s.IsZero() {
			return r.self, true
		}
		return s, true
	}
	return r.ClosestPrecedingNode(key), false
}

// InstallSuccessor prepends succ to the successor list, as join()'s
// FindSuccessorReport{for_init} handler does.
func (r *Ring) InstallSuccessor(succ identity.Did) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successors = trimSelf(append([]identity.Did{succ}, r.successors...), r.self, r.cfg.NumSuccessors)
}

// InstallFinger sets one finger table slot, as FindSuccessorReport
// (non-init) does.
func (r *Ring) InstallFinger(i int, succ identity.Did) {
	if i < 0 || i >= ringBits {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fingers[i] = succ
	r.hasFinger[i] = true
}

// Forget removes did from the finger table, successor list, and
// predecessor — the LeaveDHT handler's contract.
func (r *Ring) Forget(did identity.Did) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, f := range r.fingers {
		if r.hasFinger[i] && f == did {
			r.hasFinger[i] = false
			r.fingers[i] = identity.Did{}
		}
	}
	kept := r.successors[:0:0]
	for _, s := range r.successors {
		if s != did {
			kept = append(kept, s)
		}
	}
	r.successors = kept
	if r.hasPred && r.predecessor == did {
		r.hasPred = false
		r.predecessor = identity.Did{}
	}
}

// ClosestPrecedingNode scans the finger table from the widest stride
// down, returning the furthest known node that still precedes key.
func (r *Ring) ClosestPrecedingNode(key identity.Did) identity.Did {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := ringBits - 1; i >= 0; i-- {
		if !r.hasFinger[i] {
			continue
		}
		f := r.fingers[i]
		if between(r.self, key, f) {
			return f
		}
	}
	for _, s := range r.successors {
		if !s.IsZero() && between(r.self, key, s) {
			return s
		}
	}
	return r.self
}

// Stabilize asks the immediate successor for its predecessor and adopts
// it as our new successor if it lies strictly between us and our current
// successor, then notifies the successor of our own presence.
func (r *Ring) Stabilize(ctx context.Context) {
	r.mu.Lock()
	succ := primarySuccessor(r.successors, r.self)
	r.mu.Unlock()

	if succ.IsZero() {
		return
	}

	if succ == r.self {
		// Degenerate single-node ring: there's no one to ask remotely,
		// but a joiner may already have Notify'd us directly (our
		// predecessor pointer is set locally, not via this loop).
		// Adopt it as our successor so the ring can grow past one node.
		if pred, ok := r.Predecessor(); ok && pred != r.self {
			r.mu.Lock()
			r.successors = trimSelf(append([]identity.Did{pred}, r.successors...), r.self, r.cfg.NumSuccessors)
			r.mu.Unlock()
		}
		return
	}

	pred, ok, err := r.remote.GetPredecessor(ctx, succ)
	if err == nil && ok && pred != r.self && between(r.self, succ, pred) {
		r.mu.Lock()
		r.successors = trimSelf(append([]identity.Did{pred}, r.successors...), r.self, r.cfg.NumSuccessors)
		succ = pred
		r.mu.Unlock()
	}

	newSuccs, err := r.remote.Notify(ctx, succ, r.self)
	if err != nil {
		return
	}
	r.mu.Lock()
	if len(newSuccs) > 0 {
		merged := append([]identity.Did{succ}, newSuccs...)
		r.successors = trimSelf(merged, r.self, r.cfg.NumSuccessors)
	}
	r.mu.Unlock()
}

// Notify is invoked (via the router/handlers layer) when a remote node
// believes it might be our predecessor. Per Chord, we adopt it only if we
// have no predecessor or it lies strictly between our current
// predecessor and us. When accepted, candidate becomes the rightful
// owner of the key range we used to hold below it, so Notify also
// returns the VNodes that must be handed off to candidate (the caller
// is responsible for actually delivering them, since Ring has no direct
// network access).
func (r *Ring) Notify(candidate identity.Did) (succs []identity.Did, handoff []VNode) {
	r.mu.Lock()
	oldPred := r.predecessor
	hadPred := r.hasPred
	accept := !r.hasPred || between(r.predecessor, r.self, candidate)
	if accept {
		r.predecessor = candidate
		r.hasPred = true
	}
	out := make([]identity.Did, len(r.successors))
	copy(out, r.successors)
	r.mu.Unlock()

	if !accept {
		return out, nil
	}

	boundary := r.self
	if hadPred {
		boundary = oldPred
	}
	r.vnodes.mu.Lock()
	for vid, v := range r.vnodes.store {
		if betweenInclusiveEnd(boundary, vid, candidate) {
			handoff = append(handoff, v.Clone())
			delete(r.vnodes.store, vid)
		}
	}
	r.vnodes.mu.Unlock()

	return out, handoff
}

// FixNextFinger refreshes one finger table entry per call, round-robin,
// matching buddystore's fix_fingers ticked alongside stabilize.
func (r *Ring) FixNextFinger(ctx context.Context) {
	r.mu.Lock()
	i := r.nextFinger
	r.nextFinger = (r.nextFinger + 1) % ringBits
	r.mu.Unlock()

	target := fingerStart(r.self, i)
	succ, err := r.FindSuccessor(ctx, target)
	if err != nil {
		return
	}

	r.mu.Lock()
	r.fingers[i] = succ
	r.hasFinger[i] = true
	r.mu.Unlock()
}

// ---- ring arithmetic ----

func didToInt(d identity.Did) *big.Int {
	return new(big.Int).SetBytes(d.Bytes())
}

func intToDid(v *big.Int) identity.Did {
	mod := new(big.Int).Exp(big.NewInt(2), big.NewInt(ringBits), nil)
	v = new(big.Int).Mod(v, mod)
	b := v.Bytes()
	var d identity.Did
	copy(d[20-len(b):], b)
	return d
}

// fingerStart returns self + 2^i mod 2^160.
func fingerStart(self identity.Did, i int) identity.Did {
	offset := new(big.Int).Exp(big.NewInt(2), big.NewInt(int64(i)), nil)
	return intToDid(new(big.Int).Add(didToInt(self), offset))
}

// between reports whether x lies strictly in the open ring interval (a, b).
func between(a, b, x identity.Did) bool {
	ai, bi, xi := didToInt(a), didToInt(b), didToInt(x)
	if ai.Cmp(bi) < 0 {
		return ai.Cmp(xi) < 0 && xi.Cmp(bi) < 0
	}
	if ai.Cmp(bi) > 0 {
		return xi.Cmp(ai) > 0 || xi.Cmp(bi) < 0
	}
	return xi.Cmp(ai) != 0
}

// betweenInclusiveEnd reports whether key lies in (self, succ] — the
// classic Chord successor-range test.
func betweenInclusiveEnd(self, key, succ identity.Did) bool {
	if key == succ {
		return true
	}
	return between(self, succ, key)
}

func primarySuccessor(succs []identity.Did, self identity.Did) identity.Did {
	for _, s := range succs {
		if !s.IsZero() {
			return s
		}
	}
	return self
}

// trimSelf de-duplicates, drops self and zero entries, and truncates to n.
func trimSelf(in []identity.Did, self identity.Did, n int) []identity.Did {
	seen := make(map[identity.Did]bool, len(in))
	out := make([]identity.Did, 0, n)
	for _, d := range in {
		if d.IsZero() || d == self || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
		if len(out) == n {
			break
		}
	}
	return out
}
