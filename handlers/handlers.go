// Package handlers implements the per-message-kind builtin logic of
// spec.md §4.7: one handler per router.Body variant, each pure with
// respect to I/O, returning router.Events for the swarm to apply.
package handlers

import (
	"context"
	"fmt"

	"github.com/sage-x-project/rings/dht"
	"github.com/sage-x-project/rings/identity"
	"github.com/sage-x-project/rings/router"
)

// ConnectNegotiator bridges the DHT-carried trickle handshake bodies
// (ConnectNodeSend/Report) to the transport layer, which owns the actual
// WebRTC peer connection. Implemented by cmd/rings-node's negotiator.
type ConnectNegotiator interface {
	// HandleOffer processes an inbound offer envelope and returns the
	// wire form of the answer to send back.
	HandleOffer(ctx context.Context, from identity.Did, offerWire string) (answerWire string, err error)
	// HandleAnswer completes a handshake this node initiated.
	HandleAnswer(ctx context.Context, from identity.Did, answerWire string) error
}

// Callback is invoked once per dispatched payload, mirroring the
// source's custom_message/builtin_message split: CustomMessage bodies
// addressed to us go through OnCustomMessage, everything else through
// OnBuiltinMessage (both optional).
type Callback struct {
	OnCustomMessage  func(from identity.Did, content []byte)
	OnBuiltinMessage func(kind router.BodyKind)
}

// Handler implements router.Handler against one node's Ring.
type Handler struct {
	Ring      *dht.Ring
	Sign      func([]byte) ([]byte, error)
	Connect   ConnectNegotiator
	Callback  Callback
}

var _ router.Handler = (*Handler)(nil)

// Handle dispatches p (already verified, addressed to self) to the
// builtin handler for its body kind.
func (h *Handler) Handle(ctx context.Context, self identity.Did, p *router.Payload) ([]router.Event, error) {
	if h.Callback.OnBuiltinMessage != nil && p.Data.Kind() != router.KindCustomMessage {
		h.Callback.OnBuiltinMessage(p.Data.Kind())
	}

	switch body := p.Data.(type) {
	case router.JoinDHT:
		return []router.Event{router.EvJoinDHT(body.Did), router.EvConnect(body.Did)}, nil

	case router.LeaveDHT:
		h.Ring.Forget(body.Did)
		return nil, nil

	case router.ConnectNodeSend:
		if h.Connect == nil {
			return nil, fmt.Errorf("handlers: no ConnectNegotiator configured")
		}
		answer, err := h.Connect.HandleOffer(ctx, p.Addr, body.HandshakeWire)
		if err != nil {
			return nil, fmt.Errorf("handlers: connect offer: %w", err)
		}
		reply, err := router.NewPayloadWithTxID(p.TxID, self, h.Sign, router.ConnectNodeReport{HandshakeWire: answer},
			router.Reversed(p.Relay.Path, p.Addr), defaultTTL)
		if err != nil {
			return nil, err
		}
		return []router.Event{router.EvSendReportMessage(reply)}, nil

	case router.ConnectNodeReport:
		if h.Connect == nil {
			return nil, fmt.Errorf("handlers: no ConnectNegotiator configured")
		}
		if err := h.Connect.HandleAnswer(ctx, p.Addr, body.HandshakeWire); err != nil {
			return nil, fmt.Errorf("handlers: connect answer: %w", err)
		}
		return nil, nil

	case router.FindSuccessorSend:
		succ, local := h.Ring.LocalFindSuccessor(body.ID)
		if local {
			reply, err := router.NewPayloadWithTxID(p.TxID, self, h.Sign,
				router.FindSuccessorReport{Succ: succ, ForInit: body.ForInit},
				router.Reversed(p.Relay.Path, p.Addr), defaultTTL)
			if err != nil {
				return nil, err
			}
			return []router.Event{router.EvSendReportMessage(reply)}, nil
		}
		forward, err := router.NewPayload(p.Addr, h.Sign, body,
			router.RelayState{Method: router.MethodSend, Path: p.Relay.Path, Destination: succ}, defaultTTL)
		if err != nil {
			return nil, err
		}
		return []router.Event{router.EvSendMessage(forward)}, nil

	case router.FindSuccessorReport:
		if body.ForInit {
			h.Ring.InstallSuccessor(body.Succ)
		}
		return nil, nil

	case router.NotifyPredecessorSend:
		succs, handoff := h.Ring.Notify(body.Self)
		reply, err := router.NewPayloadWithTxID(p.TxID, self, h.Sign, router.NotifyPredecessorReport{Successors: succs},
			router.Reversed(p.Relay.Path, p.Addr), defaultTTL)
		if err != nil {
			return nil, err
		}
		events := []router.Event{router.EvSendReportMessage(reply)}
		if len(handoff) > 0 {
			sync, err := router.NewPayload(self, h.Sign, router.SyncVNodeWithSuccessor{Data: handoff},
				router.RelayState{Method: router.MethodSend, Destination: body.Self}, defaultTTL)
			if err != nil {
				return nil, err
			}
			events = append(events, router.EvSendMessage(sync))
		}
		return events, nil

	case router.NotifyPredecessorReport:
		// Consumed directly by whichever in-flight Stabilize call is
		// waiting on this reply; nothing to do at the handler layer.
		return nil, nil

	case router.PredecessorQuery:
		pred, ok := h.Ring.Predecessor()
		reply, err := router.NewPayloadWithTxID(p.TxID, self, h.Sign,
			router.PredecessorReport{Predecessor: pred, HasPred: ok},
			router.Reversed(p.Relay.Path, p.Addr), defaultTTL)
		if err != nil {
			return nil, err
		}
		return []router.Event{router.EvSendReportMessage(reply)}, nil

	case router.PredecessorReport:
		// Consumed directly by whichever in-flight GetPredecessor call is
		// waiting on this reply; nothing to do at the handler layer.
		return nil, nil

	case router.SearchVNode:
		action, err := h.Ring.VNodeLookup(body.Vid)
		if err != nil {
			return nil, err
		}
		if action.Found != nil {
			reply, err := router.NewPayloadWithTxID(p.TxID, self, h.Sign, router.FoundVNode{Data: []dht.VNode{*action.Found}},
				router.Reversed(p.Relay.Path, p.Addr), defaultTTL)
			if err != nil {
				return nil, err
			}
			return []router.Event{router.EvSendReportMessage(reply)}, nil
		}
		if action.Forward {
			return []router.Event{router.EvResetDestination(p, action.Next)}, nil
		}
		return nil, nil

	case router.FoundVNode:
		if p.Relay.Destination != self {
			return []router.Event{router.EvForwardPayload(p)}, nil
		}
		for _, v := range body.Data {
			h.Ring.LocalCacheSet(v)
		}
		return nil, nil

	case router.OperateVNode:
		action, err := h.Ring.VNodeOperate(body.Op)
		if err != nil {
			return nil, err
		}
		if action.Forward {
			return []router.Event{router.EvResetDestination(p, action.Next)}, nil
		}
		if action.Found != nil {
			return []router.Event{router.EvStorageStore(*action.Found)}, nil
		}
		return nil, nil

	case router.SyncVNodeWithSuccessor:
		h.Ring.SyncWithSuccessor(body.Data)
		return []router.Event{router.EvSyncVNodeWithSuccessor(self, body.Data)}, nil

	case router.CustomMessage:
		if h.Callback.OnCustomMessage != nil {
			h.Callback.OnCustomMessage(p.Addr, body.Content)
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("handlers: unknown body kind %v", p.Data.Kind())
	}
}

// defaultTTL bounds how many hops a reply may travel; chosen generously
// since replies travel the exact reverse path rather than being
// re-routed.
const defaultTTL = 64
