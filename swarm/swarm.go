// Package swarm owns the Did→Transport registry and the inbound
// message pipeline: it receives bytes off each transport's data channel,
// decodes them into a router.Payload, runs them through the Router, and
// applies the resulting Events — handing Connect events to the
// embedder's ConnectPeer hook, which creates the transport.Peer. It also
// adapts the
// router into dht.RemoteRing by sending FindSuccessorSend/
// NotifyPredecessorSend messages and correlating replies by tx_id,
// mirroring the teacher's pendingResponses pattern.
package swarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sage-x-project/rings/codec"
	"github.com/sage-x-project/rings/dht"
	"github.com/sage-x-project/rings/identity"
	"github.com/sage-x-project/rings/internal/logger"
	"github.com/sage-x-project/rings/router"
	"github.com/sage-x-project/rings/transport"
)

// Transport is the minimal surface swarm needs from a connection: send
// bytes, and learn when it has gone away. transport.Peer satisfies this.
type Transport interface {
	Send(data []byte) error
	Done() <-chan struct{}
	Close() error
}

// ErrNoTransport is returned when SendPayload targets a Did with no
// registered transport, whether or not a connection to it is pending.
var ErrNoTransport = fmt.Errorf("swarm: no transport for peer")

// ErrRPCTimeout is returned by the RemoteRing adapter methods when no
// reply arrives before the context deadline.
var ErrRPCTimeout = fmt.Errorf("swarm: rpc timed out")

// ErrSendFailed is returned by SendPayload when the data channel is
// still not ready after exhausting the backoff retry budget — spec.md's
// WebrtcDatachannelSendFailed escalation.
var ErrSendFailed = fmt.Errorf("swarm: datachannel send failed")

// sendRetryBudget and sendRetryBase bound SendPayload's backoff: a data
// channel that briefly reports NotReady while a handshake finishes
// connecting is worth waiting out, but one that never opens must not
// stall the caller (Apply's event loop, or a blocking RemoteRing call)
// forever.
const (
	sendRetryBudget = 5
	sendRetryBase   = 20 * time.Millisecond
)

// Swarm is one node's registry of peer transports plus the inbound
// message pipeline built around router.Router.
type Swarm struct {
	Self   identity.Did
	Sign   func([]byte) ([]byte, error)
	Router *router.Router
	log    *logger.StructuredLogger

	// Persist, if set, is called with every VNode the local Ring just
	// committed (EventStorageStore) or received from a sync peer
	// (EventSyncVNodeWithSuccessor), letting the embedder mirror it to
	// an external storage.Store. Errors are logged, not fatal: the
	// in-memory Ring copy remains authoritative for routing.
	Persist func(ctx context.Context, nodes []dht.VNode)

	// JoinRing, if set, is called when a JoinDHT(did) arrives: per
	// spec.md's mutual-join rule, the receiver reciprocally re-runs its
	// own Ring.Join using the announcer as bootstrap, refreshing its
	// finger table toward a ring that just grew. Run in a goroutine
	// against a detached context since it performs its own bounded RPCs
	// and must outlive the single HandleInbound call that triggered it.
	JoinRing func(ctx context.Context, bootstrap identity.Did)

	// ConnectPeer, if set, is called when an EventConnect for a Did with
	// no registered transport arrives, so the embedder can establish a
	// direct WebRTC connection to it (dialing through the DHT itself via
	// ConnectNodeSend, since no out-of-band signaling URL is known for a
	// ring member discovered only through routing).
	ConnectPeer func(ctx context.Context, did identity.Did)

	mu         sync.RWMutex
	transports map[identity.Did]Transport
	pending    map[identity.Did]bool

	pendingMu   sync.Mutex
	pendingRPC  map[[16]byte]chan *router.Payload
}

// New creates a Swarm. r's Handler must already be wired to a
// handlers.Handler backed by the same Ring this Swarm will serve as
// RemoteRing for.
func New(self identity.Did, sign func([]byte) ([]byte, error), r *router.Router) *Swarm {
	return &Swarm{
		Self:       self,
		Sign:       sign,
		Router:     r,
		log:        logger.GetDefaultLogger(),
		transports: make(map[identity.Did]Transport),
		pending:    make(map[identity.Did]bool),
		pendingRPC: make(map[[16]byte]chan *router.Payload),
	}
}

// Register installs t as the transport for did. If a transport is
// already registered, the at-most-one-transport tie-break keeps whichever
// connection was initiated by the lexicographically smaller Did and
// closes the other — mirroring a glare-resolution rule common to
// WebRTC signaling (the "polite peer" pattern), generalized here to
// Did comparison since both sides can deterministically compute it
// without extra negotiation.
func (s *Swarm) Register(did identity.Did, t Transport) {
	s.mu.Lock()
	existing, ok := s.transports[did]
	if ok && !s.shouldReplace(did) {
		s.mu.Unlock()
		_ = t.Close()
		return
	}
	s.transports[did] = t
	delete(s.pending, did)
	s.mu.Unlock()

	if ok {
		_ = existing.Close()
	}
	go s.watchDone(did, t)
}

// shouldReplace decides, under an existing transport for did, whether an
// incoming second connection attempt wins the tie-break: self's Did
// compared lexicographically against did decides which side's dial
// attempt is authoritative.
func (s *Swarm) shouldReplace(did identity.Did) bool {
	return lessDid(s.Self, did)
}

func lessDid(a, b identity.Did) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func (s *Swarm) watchDone(did identity.Did, t Transport) {
	<-t.Done()
	s.mu.Lock()
	if cur, ok := s.transports[did]; ok && cur == t {
		delete(s.transports, did)
	}
	s.mu.Unlock()
}

// MarkPending records that a connection to did has been initiated but
// not yet registered, so duplicate JoinDHT/ConnectNodeSend events don't
// race a second dial.
func (s *Swarm) MarkPending(did identity.Did) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[did] || s.transports[did] != nil {
		return false
	}
	s.pending[did] = true
	return true
}

// Transport returns the registered transport for did, if any.
func (s *Swarm) Transport(did identity.Did) (Transport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transports[did]
	return t, ok
}

// SendPayload encodes and writes p on did's transport. If the transport
// reports ErrNotReady (data channel not yet Open), it retries with
// exponential backoff up to sendRetryBudget attempts before escalating
// to ErrSendFailed, per spec.md's NotReady/backoff rule.
func (s *Swarm) SendPayload(ctx context.Context, did identity.Did, p *router.Payload) error {
	t, ok := s.Transport(did)
	if !ok {
		return ErrNoTransport
	}
	wire, err := codec.Encode(p)
	if err != nil {
		return fmt.Errorf("swarm: encode payload: %w", err)
	}
	raw := []byte(wire)

	delay := sendRetryBase
	for attempt := 0; ; attempt++ {
		err := t.Send(raw)
		if err == nil {
			return nil
		}
		if !errors.Is(err, transport.ErrNotReady) {
			return err
		}
		if attempt >= sendRetryBudget-1 {
			return fmt.Errorf("%w: %v", ErrSendFailed, err)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrSendFailed, ctx.Err())
		}
		delay *= 2
	}
}

// HandleInbound decodes raw bytes received from did's transport, routes
// them, applies the Events the router returns, and fulfills any pending
// RPC waiter keyed on the payload's tx_id.
func (s *Swarm) HandleInbound(ctx context.Context, did identity.Did, raw []byte) {
	var p router.Payload
	if err := codec.Decode(string(raw), &p); err != nil {
		s.log.Warn("swarm: dropping undecodable payload", logger.Error(err), logger.String("from", did.String()))
		return
	}

	s.pendingMu.Lock()
	waiter, waiting := s.pendingRPC[p.TxID]
	s.pendingMu.Unlock()
	if waiting {
		select {
		case waiter <- &p:
		default:
		}
	}

	events, err := s.Router.Process(ctx, &p)
	if err != nil {
		s.log.Warn("swarm: router dropped payload", logger.Error(err), logger.String("from", did.String()))
		return
	}
	s.Apply(ctx, events)
}

// Apply dispatches each Event to its effect: forwarding/sending a
// payload over the appropriate transport, or handing StorageStore/
// SyncVNodeWithSuccessor, JoinDHT and Connect events to the Persist,
// JoinRing and ConnectPeer hooks when those are set. Disconnect and
// CustomMessage events have no effect here.
func (s *Swarm) Apply(ctx context.Context, events []router.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case router.EventForwardPayload, router.EventSendMessage, router.EventSendDirectMessage,
			router.EventSendReportMessage, router.EventResetDestination:
			target := ev.Payload.Addr
			if ev.Payload.Relay.HasNextHop {
				target = ev.Payload.Relay.NextHop
			} else if ev.Kind != router.EventForwardPayload && ev.Kind != router.EventResetDestination {
				target = ev.Payload.Relay.Destination
			}
			if err := s.SendPayload(ctx, target, ev.Payload); err != nil {
				s.log.Warn("swarm: send failed", logger.Error(err), logger.String("target", target.String()))
			}
		case router.EventStorageStore, router.EventSyncVNodeWithSuccessor:
			if s.Persist != nil && len(ev.VNodes) > 0 {
				s.Persist(ctx, ev.VNodes)
			}
		case router.EventJoinDHT:
			if s.JoinRing != nil {
				go s.JoinRing(context.Background(), ev.Did)
			}
		case router.EventConnect:
			if _, connected := s.Transport(ev.Did); !connected && s.ConnectPeer != nil {
				go s.ConnectPeer(context.Background(), ev.Did)
			}
		default:
			// Disconnect/CustomMessage: no Apply-level action. CustomMessage
			// delivery already happened via handlers.Callback.OnCustomMessage
			// inside Handle; EvCustomMessage exists for callers that only see
			// Apply's event stream and would otherwise double-deliver it.
		}
	}
}

// --- dht.RemoteRing adapter ---

const rpcTimeout = 10 * time.Second

var _ dht.RemoteRing = (*Swarm)(nil)

func (s *Swarm) await(ctx context.Context, txID [16]byte) (*router.Payload, error) {
	ch := make(chan *router.Payload, 1)
	s.pendingMu.Lock()
	s.pendingRPC[txID] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pendingRPC, txID)
		s.pendingMu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	select {
	case p := <-ch:
		return p, nil
	case <-ctx.Done():
		return nil, ErrRPCTimeout
	}
}

// FindSuccessors implements dht.RemoteRing by sending a signed
// FindSuccessorSend to target and awaiting its FindSuccessorReport.
func (s *Swarm) FindSuccessors(ctx context.Context, target identity.Did, n int, key identity.Did) ([]identity.Did, error) {
	p, err := router.NewPayload(s.Self, s.Sign, router.FindSuccessorSend{ID: key, ForInit: n > 1},
		router.RelayState{Method: router.MethodSend, Destination: target}, defaultTTL)
	if err != nil {
		return nil, err
	}
	if err := s.SendPayload(ctx, target, p); err != nil {
		return nil, err
	}
	reply, err := s.await(ctx, p.TxID)
	if err != nil {
		return nil, err
	}
	rep, ok := reply.Data.(router.FindSuccessorReport)
	if !ok {
		return nil, fmt.Errorf("swarm: unexpected reply body for find_successors")
	}
	return []identity.Did{rep.Succ}, nil
}

// GetPredecessor implements dht.RemoteRing by sending a read-only
// PredecessorQuery. This is a separate message kind from
// NotifyPredecessorSend/Report on purpose: unlike Notify, a predecessor
// read must never mutate the recipient's predecessor pointer or trigger
// a VNode handoff.
func (s *Swarm) GetPredecessor(ctx context.Context, target identity.Did) (identity.Did, bool, error) {
	p, err := router.NewPayload(s.Self, s.Sign, router.PredecessorQuery{},
		router.RelayState{Method: router.MethodSend, Destination: target}, defaultTTL)
	if err != nil {
		return identity.Did{}, false, err
	}
	if err := s.SendPayload(ctx, target, p); err != nil {
		return identity.Did{}, false, err
	}
	reply, err := s.await(ctx, p.TxID)
	if err != nil {
		return identity.Did{}, false, err
	}
	rep, ok := reply.Data.(router.PredecessorReport)
	if !ok {
		return identity.Did{}, false, fmt.Errorf("swarm: unexpected reply body for get_predecessor")
	}
	return rep.Predecessor, rep.HasPred, nil
}

// Notify implements dht.RemoteRing by sending NotifyPredecessorSend to
// target and awaiting its successor-list report.
func (s *Swarm) Notify(ctx context.Context, target identity.Did, self identity.Did) ([]identity.Did, error) {
	p, err := router.NewPayload(s.Self, s.Sign, router.NotifyPredecessorSend{Self: self},
		router.RelayState{Method: router.MethodSend, Destination: target}, defaultTTL)
	if err != nil {
		return nil, err
	}
	if err := s.SendPayload(ctx, target, p); err != nil {
		return nil, err
	}
	reply, err := s.await(ctx, p.TxID)
	if err != nil {
		return nil, err
	}
	rep, ok := reply.Data.(router.NotifyPredecessorReport)
	if !ok {
		return nil, fmt.Errorf("swarm: unexpected reply body for notify")
	}
	return rep.Successors, nil
}

// LookupVNode sends a SearchVNode to target and awaits the FoundVNode
// reply, for a client that wants to read a VNode without itself being
// the owning node. target is any live ring member, typically a
// bootstrap peer; the router's own ClosestPrecedingNode forwarding
// carries the SEND on to the actual owner hop by hop.
func (s *Swarm) LookupVNode(ctx context.Context, target identity.Did, vid identity.Did) (*dht.VNode, error) {
	p, err := router.NewPayload(s.Self, s.Sign, router.SearchVNode{Vid: vid},
		router.RelayState{Method: router.MethodSend, Destination: target}, defaultTTL)
	if err != nil {
		return nil, err
	}
	if err := s.SendPayload(ctx, target, p); err != nil {
		return nil, err
	}
	reply, err := s.await(ctx, p.TxID)
	if err != nil {
		return nil, err
	}
	rep, ok := reply.Data.(router.FoundVNode)
	if !ok {
		return nil, fmt.Errorf("swarm: unexpected reply body for vnode lookup")
	}
	if len(rep.Data) == 0 {
		return nil, nil
	}
	return &rep.Data[0], nil
}

// StoreVNode sends an OperateVNode to target, which the router forwards
// on to the owning node. OperateVNode has no report body in the wire
// protocol (spec.md §4.7), so this is fire-and-forget: the caller learns
// of success only by a subsequent LookupVNode.
func (s *Swarm) StoreVNode(ctx context.Context, target identity.Did, op dht.VNodeOp) error {
	p, err := router.NewPayload(s.Self, s.Sign, router.OperateVNode{Op: op},
		router.RelayState{Method: router.MethodSend, Destination: target}, defaultTTL)
	if err != nil {
		return err
	}
	return s.SendPayload(ctx, target, p)
}

const defaultTTL = 64
