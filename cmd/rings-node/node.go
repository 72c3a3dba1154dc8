package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sage-x-project/rings/config"
	"github.com/sage-x-project/rings/dht"
	"github.com/sage-x-project/rings/handlers"
	"github.com/sage-x-project/rings/health"
	"github.com/sage-x-project/rings/identity"
	"github.com/sage-x-project/rings/internal/logger"
	"github.com/sage-x-project/rings/internal/metrics"
	"github.com/sage-x-project/rings/router"
	"github.com/sage-x-project/rings/signaling"
	"github.com/sage-x-project/rings/storage"
	"github.com/sage-x-project/rings/swarm"
)

// newStore opens the configured storage.Store, defaulting to an
// in-memory store when cfg is nil or names anything but "postgres".
func newStore(ctx context.Context, cfg *config.StorageConfig) (storage.Store, error) {
	if cfg == nil || cfg.Backend != "postgres" {
		return storage.NewMemoryStore(), nil
	}
	if cfg.Postgres == nil {
		return nil, fmt.Errorf("storage: backend postgres requires a postgres config block")
	}
	pg := cfg.Postgres
	return storage.NewPostgresStore(ctx, storage.PostgresConfig{
		Host:     pg.Host,
		Port:     pg.Port,
		User:     pg.User,
		Password: pg.Password,
		Database: pg.Database,
		SSLMode:  pg.SSLMode,
	})
}

// Node wires one ring member's full stack: identity, Ring, Swarm,
// Router, Handler, and the negotiator that bridges DHT-carried
// handshakes (and the bootstrap signaling exchange) to transport.Peer.
type Node struct {
	Self identity.Did
	priv *ecdsa.PrivateKey
	cfg  *config.Config

	Ring   *dht.Ring
	Swarm  *swarm.Swarm
	Router *router.Router
	neg    *negotiator

	log *logger.StructuredLogger

	Health     *health.HealthChecker
	metricsSrv *http.Server
	healthSrv  *http.Server
}

func sign(priv *ecdsa.PrivateKey) func([]byte) ([]byte, error) {
	return func(msg []byte) ([]byte, error) { return identity.Sign(priv, msg) }
}

// newNode assembles the stack but does not start any network listener.
func newNode(priv *ecdsa.PrivateKey, cfg *config.Config) *Node {
	self := identity.DidFromPrivateKey(priv)
	signFn := sign(priv)

	n := &Node{
		Self: self,
		priv: priv,
		cfg:  cfg,
		log:  logger.GetDefaultLogger(),
	}

	var iceServers []string
	if cfg.Ring != nil {
		iceServers = cfg.Ring.ICEServers
	}
	n.neg = newNegotiator(self, signFn, nil, iceServers)

	sw := swarm.New(self, signFn, nil)
	n.Swarm = sw
	n.neg.sw = sw

	ringCfg := dht.DefaultConfig()
	if cfg.Ring != nil {
		if cfg.Ring.SuccessorListSize > 0 {
			ringCfg.NumSuccessors = cfg.Ring.SuccessorListSize
		}
		if cfg.Ring.StabilizeInterval > 0 {
			ringCfg.StabilizeInterval = cfg.Ring.StabilizeInterval
		}
	}
	n.Ring = dht.NewRing(self, sw, ringCfg)

	sw.JoinRing = func(ctx context.Context, bootstrap identity.Did) {
		if err := n.Ring.Join(ctx, bootstrap); err != nil {
			n.log.Warn("dht: reciprocal join failed", logger.Error(err), logger.String("bootstrap", bootstrap.String()))
		}
	}
	sw.ConnectPeer = func(ctx context.Context, did identity.Did) {
		if err := n.connectViaDHT(ctx, did); err != nil {
			n.log.Warn("transport: dht-routed connect failed", logger.Error(err), logger.String("peer", did.String()))
		}
	}

	h := &handlers.Handler{
		Ring:    n.Ring,
		Sign:    signFn,
		Connect: n.neg,
	}

	r := &router.Router{
		Self:      self,
		Handler:   h,
		Closest:   n.Ring.ClosestPrecedingNode,
	}
	n.Router = r
	sw.Router = r

	n.Health = health.NewHealthChecker(5 * time.Second)
	n.Health.RegisterCheck("ring", health.RingHealthCheck(func(ctx context.Context) error {
		if _, ok := n.Ring.Predecessor(); !ok && len(n.Ring.Successors()) == 0 {
			return fmt.Errorf("not yet joined or stabilized")
		}
		return nil
	}))
	n.Health.RegisterCheck("keystore", health.KeyStoreHealthCheck(func() error {
		if n.priv == nil {
			return fmt.Errorf("no node key loaded")
		}
		return nil
	}))

	return n
}

// Start begins the ring's background stabilization loop and, if enabled,
// the metrics and health HTTP servers. It also wires a storage.Store
// per config.StorageConfig.Backend so VNode writes this node commits
// (and syncs from its successor) are mirrored somewhere durable.
func (n *Node) Start(ctx context.Context) error {
	store, err := newStore(ctx, n.cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	n.Swarm.Persist = func(ctx context.Context, nodes []dht.VNode) {
		for _, v := range nodes {
			if err := store.Put(ctx, v); err != nil {
				n.log.Warn("storage: persist vnode failed", logger.Error(err), logger.String("vid", v.Did.String()))
			}
		}
	}

	n.Ring.Start()

	if n.cfg.Metrics != nil && n.cfg.Metrics.Enabled {
		addr := fmt.Sprintf(":%d", n.cfg.Metrics.Port)
		mux := http.NewServeMux()
		path := n.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, metrics.Handler())
		n.metricsSrv = &http.Server{Addr: addr, Handler: mux}
		go func() {
			n.log.Info("metrics server listening", logger.String("addr", addr))
			if err := n.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				n.log.Warn("metrics server stopped", logger.Error(err))
			}
		}()
	}

	if n.cfg.Health != nil && n.cfg.Health.Enabled {
		addr := fmt.Sprintf(":%d", n.cfg.Health.Port)
		mux := http.NewServeMux()
		path := n.cfg.Health.Path
		if path == "" {
			path = "/health"
		}
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			sys := n.Health.GetSystemHealth(r.Context())
			w.Header().Set("Content-Type", "application/json")
			if sys.Status != health.StatusHealthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			_ = json.NewEncoder(w).Encode(sys)
		})
		n.healthSrv = &http.Server{Addr: addr, Handler: mux}
		go func() {
			n.log.Info("health server listening", logger.String("addr", addr))
			if err := n.healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				n.log.Warn("health server stopped", logger.Error(err))
			}
		}()
	}

	return nil
}

// Close stops the ring's maintenance loop and any running servers.
func (n *Node) Close(ctx context.Context) error {
	n.Ring.Close()
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if n.metricsSrv != nil {
		_ = n.metricsSrv.Shutdown(shutdownCtx)
	}
	if n.healthSrv != nil {
		_ = n.healthSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// signalingHandler returns the handler for this node's signaling.Server:
// a verified inbound offer becomes a responder transport.Peer registered
// into the swarm under the offerer's Did.
func (n *Node) signalingHandler() signaling.Handler {
	return func(ctx context.Context, offer signaling.Envelope) (signaling.Envelope, error) {
		answerWire, err := n.neg.HandleOffer(ctx, offer.From, offer.Wire)
		if err != nil {
			return signaling.Envelope{}, err
		}
		answer := signaling.Envelope{From: n.Self, Wire: answerWire}
		if err := answer.Sign(sign(n.priv)); err != nil {
			return signaling.Envelope{}, err
		}
		return answer, nil
	}
}

// ConnectSignaling dials peerURL's signaling server and performs the
// out-of-band offer/answer exchange to establish a direct transport to
// peerDid, without touching the Chord ring. Used both by Bootstrap and
// by the one-shot put/get client commands, which need a live transport
// to a ring member but never join themselves.
func (n *Node) ConnectSignaling(ctx context.Context, peerURL string, peerDid identity.Did) error {
	offerWire, err := n.neg.dialOffer(ctx, peerDid)
	if err != nil {
		return fmt.Errorf("connect: dial offer: %w", err)
	}
	offer := signaling.Envelope{From: n.Self, Wire: offerWire}
	if err := offer.Sign(sign(n.priv)); err != nil {
		return fmt.Errorf("connect: sign offer: %w", err)
	}

	answer, err := signaling.Dial(ctx, peerURL, offer)
	if err != nil {
		return fmt.Errorf("connect: signaling dial: %w", err)
	}
	if answer.From != peerDid {
		return fmt.Errorf("connect: answer from unexpected peer %s", answer.From)
	}
	if err := n.neg.completeAnswer(ctx, peerDid, answer.Wire); err != nil {
		return fmt.Errorf("connect: complete handshake: %w", err)
	}
	return nil
}

// connectDHTTTL bounds how many hops a DHT-routed connect offer may
// travel before the destination is given up on.
const connectDHTTTL = 64

// connectViaDHT establishes a direct transport to target using only the
// ring itself: no out-of-band signaling URL is known for a peer reached
// solely through routing, so the offer rides a ConnectNodeSend body
// addressed to target and resolved hop by hop by the ring's own
// forwarding, exactly as spec.md's EventConnect expects. The answer
// arrives asynchronously as a ConnectNodeReport and completes the
// handshake through n.neg.HandleAnswer (called from the Handler).
func (n *Node) connectViaDHT(ctx context.Context, target identity.Did) error {
	offerWire, err := n.neg.dialOffer(ctx, target)
	if err != nil {
		return fmt.Errorf("connect via dht: dial offer: %w", err)
	}
	p, err := router.NewPayload(n.Self, sign(n.priv), router.ConnectNodeSend{HandshakeWire: offerWire},
		router.RelayState{Method: router.MethodSend, Destination: target}, connectDHTTTL)
	if err != nil {
		return fmt.Errorf("connect via dht: build payload: %w", err)
	}
	hop := n.Ring.ClosestPrecedingNode(target)
	if err := n.Swarm.SendPayload(ctx, hop, p); err != nil {
		return fmt.Errorf("connect via dht: send to %s: %w", hop, err)
	}
	return nil
}

// Bootstrap connects to bootstrapDid via the signaling rendezvous and
// joins the Chord ring through it.
func (n *Node) Bootstrap(ctx context.Context, bootstrapURL string, bootstrapDid identity.Did) error {
	if err := n.ConnectSignaling(ctx, bootstrapURL, bootstrapDid); err != nil {
		return err
	}
	if err := n.Ring.Join(ctx, bootstrapDid); err != nil {
		return fmt.Errorf("bootstrap: join ring: %w", err)
	}
	return nil
}
