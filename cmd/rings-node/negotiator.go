package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/sage-x-project/rings/identity"
	"github.com/sage-x-project/rings/internal/logger"
	"github.com/sage-x-project/rings/internal/metrics"
	"github.com/sage-x-project/rings/swarm"
	"github.com/sage-x-project/rings/transport"
)

// negotiator bridges the DHT-carried ConnectNodeSend/Report bodies (and
// the out-of-band signaling bootstrap) to transport.Peer, implementing
// handlers.ConnectNegotiator. The swarm's ConnectPeer hook, as wired in
// node.go, dials new peers through it.
type negotiator struct {
	self       identity.Did
	sign       func([]byte) ([]byte, error)
	sw         *swarm.Swarm
	iceServers []string
	log        *logger.StructuredLogger

	mu      sync.Mutex
	pending map[identity.Did]*transport.Peer // offers we initiated, awaiting the answer
}

func newNegotiator(self identity.Did, sign func([]byte) ([]byte, error), sw *swarm.Swarm, iceServers []string) *negotiator {
	return &negotiator{
		self:       self,
		sign:       sign,
		sw:         sw,
		iceServers: iceServers,
		log:        logger.GetDefaultLogger(),
		pending:    make(map[identity.Did]*transport.Peer),
	}
}

func encodeWire(env transport.HandshakeEnvelope) (string, error) {
	raw, err := transport.MarshalEnvelope(env)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeWire(wire string) (transport.HandshakeEnvelope, error) {
	raw, err := base64.StdEncoding.DecodeString(wire)
	if err != nil {
		return transport.HandshakeEnvelope{}, fmt.Errorf("negotiator: decode wire: %w", err)
	}
	return transport.UnmarshalEnvelope(raw)
}

func (n *negotiator) newPeer(ctx context.Context, from identity.Did) (*transport.Peer, error) {
	return transport.NewPeer(transport.Config{
		ICEServers: n.iceServers,
		OnData: func(data []byte) {
			n.sw.HandleInbound(ctx, from, data)
		},
	})
}

// dialOffer initiates a direct connection to target: creates a Peer,
// produces an offer, and stores it pending the answer. The caller is
// responsible for delivering the returned wire to target (via the DHT
// ConnectNodeSend body, or the out-of-band signaling envelope for the
// very first bootstrap connection).
func (n *negotiator) dialOffer(ctx context.Context, target identity.Did) (wire string, err error) {
	peer, err := n.newPeer(ctx, target)
	if err != nil {
		return "", err
	}
	metrics.HandshakesInitiated.WithLabelValues("offerer").Inc()

	env, err := peer.GetOffer(ctx)
	if err != nil {
		_ = peer.Close()
		metrics.HandshakesFailed.WithLabelValues("ice_gather").Inc()
		return "", fmt.Errorf("negotiator: get offer: %w", err)
	}
	wire, err = encodeWire(env)
	if err != nil {
		_ = peer.Close()
		return "", err
	}

	n.mu.Lock()
	n.pending[target] = peer
	n.mu.Unlock()
	return wire, nil
}

// completeAnswer finishes a connection this node initiated via
// dialOffer, once the peer's answer wire has arrived. It registers the
// now-connected peer with the swarm under target's Did.
func (n *negotiator) completeAnswer(ctx context.Context, target identity.Did, answerWire string) error {
	n.mu.Lock()
	peer, ok := n.pending[target]
	delete(n.pending, target)
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("negotiator: no pending offer for %s", target)
	}

	env, err := decodeWire(answerWire)
	if err != nil {
		_ = peer.Close()
		return err
	}
	if err := peer.RegisterRemoteInfo(env); err != nil {
		_ = peer.Close()
		metrics.HandshakesFailed.WithLabelValues("unsupported_sdp").Inc()
		return fmt.Errorf("negotiator: register remote answer: %w", err)
	}

	ok2, err := peer.Connected(ctx)
	if err != nil || !ok2 {
		_ = peer.Close()
		metrics.HandshakesFailed.WithLabelValues("timeout").Inc()
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		if err != nil {
			return fmt.Errorf("negotiator: await connected: %w", err)
		}
		return fmt.Errorf("negotiator: connection failed")
	}

	n.sw.Register(target, peer)
	metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	return nil
}

// HandleOffer implements handlers.ConnectNegotiator for the responder
// side of a DHT-relayed ConnectNodeSend: build the answer, register the
// peer once connected (in the background, since GetAnswer only awaits
// local ICE gathering, not the full handshake).
func (n *negotiator) HandleOffer(ctx context.Context, from identity.Did, offerWire string) (string, error) {
	env, err := decodeWire(offerWire)
	if err != nil {
		return "", err
	}
	peer, err := n.newPeer(ctx, from)
	if err != nil {
		return "", err
	}
	metrics.HandshakesInitiated.WithLabelValues("answerer").Inc()

	if err := peer.RegisterRemoteInfo(env); err != nil {
		_ = peer.Close()
		metrics.HandshakesFailed.WithLabelValues("unsupported_sdp").Inc()
		return "", fmt.Errorf("negotiator: register remote offer: %w", err)
	}
	answerEnv, err := peer.GetAnswer(ctx)
	if err != nil {
		_ = peer.Close()
		metrics.HandshakesFailed.WithLabelValues("ice_gather").Inc()
		return "", fmt.Errorf("negotiator: get answer: %w", err)
	}
	wire, err := encodeWire(answerEnv)
	if err != nil {
		_ = peer.Close()
		return "", err
	}

	go func() {
		ok, err := peer.Connected(context.Background())
		if err != nil || !ok {
			n.log.Warn("negotiator: answerer connect failed", logger.String("peer", from.String()))
			metrics.HandshakesFailed.WithLabelValues("timeout").Inc()
			metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
			_ = peer.Close()
			return
		}
		n.sw.Register(from, peer)
		metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	}()

	return wire, nil
}

// HandleAnswer implements handlers.ConnectNegotiator for the initiator
// side of a DHT-relayed handshake (two ring members not yet directly
// connected establishing a shortcut, e.g. during fix_fingers).
func (n *negotiator) HandleAnswer(ctx context.Context, from identity.Did, answerWire string) error {
	return n.completeAnswer(ctx, from, answerWire)
}
