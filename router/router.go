package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/sage-x-project/rings/identity"
)

// ErrRoutingLoop is returned (and the payload dropped) when the router
// would forward a message back to a Did already present in its relay
// path.
var ErrRoutingLoop = errors.New("router: routing loop detected")

// ErrInvalidMessage wraps a validator hook's rejection reason.
var ErrInvalidMessage = errors.New("router: invalid message")

// Handler dispatches a payload addressed to self into per-kind builtin
// logic, returning follow-up Events. Implemented by the handlers
// package; kept as a narrow interface here to avoid an import cycle.
type Handler interface {
	Handle(ctx context.Context, self identity.Did, p *Payload) ([]Event, error)
}

// Validator may reject an inbound payload with a reason before it is
// dispatched or forwarded.
type Validator func(p *Payload) error

// ClosestPrecedingNode resolves the next SEND hop toward a destination,
// implemented by dht.Ring.ClosestPrecedingNode.
type ClosestPrecedingNode func(destination identity.Did) identity.Did

// Router implements the verify → validate → path-append →
// dispatch-or-forward pipeline of spec.md §4.6.
type Router struct {
	Self      identity.Did
	Handler   Handler
	Validator Validator // optional, may be nil
	Closest   ClosestPrecedingNode
}

// Process runs the full pipeline for one inbound payload and returns the
// events to be applied by the swarm. A returned error means the payload
// was dropped; the caller should log it per the taxonomy in spec.md §7
// and continue the listener loop — a malformed payload never terminates
// it.
func (r *Router) Process(ctx context.Context, p *Payload) ([]Event, error) {
	if err := p.Verify(); err != nil {
		return nil, err
	}
	p.TTL--

	if r.Validator != nil {
		if err := r.Validator(p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
	}

	switch p.Relay.Method {
	case MethodSend:
		if p.Relay.ContainsHop(r.Self) {
			return nil, ErrRoutingLoop
		}
		p.Relay.AppendSelf(r.Self)
	case MethodReport:
		p.Relay.ConsumeReportHop()
	}

	if p.Relay.Destination == r.Self {
		events, err := r.Handler.Handle(ctx, r.Self, p)
		if err != nil {
			return nil, err
		}
		if p.Data.Kind() == KindCustomMessage {
			if cm, ok := p.Data.(CustomMessage); ok {
				events = append(events, EvCustomMessage(p.Addr, cm.Content))
			}
		}
		return events, nil
	}

	return r.forward(p)
}

func (r *Router) forward(p *Payload) ([]Event, error) {
	switch p.Relay.Method {
	case MethodSend:
		next := r.Closest(p.Relay.Destination)
		if next == r.Self || p.Relay.ContainsHop(next) {
			return nil, ErrRoutingLoop
		}
		p.Relay.NextHop = next
		p.Relay.HasNextHop = true
		return []Event{EvForwardPayload(p)}, nil
	case MethodReport:
		next, ok := p.Relay.PreviousHop()
		if !ok {
			// Path exhausted: this REPORT has reached its origin.
			return nil, nil
		}
		p.Relay.NextHop = next
		p.Relay.HasNextHop = true
		return []Event{EvForwardPayload(p)}, nil
	default:
		return nil, fmt.Errorf("router: unknown relay method %d", p.Relay.Method)
	}
}
