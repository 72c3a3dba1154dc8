// Package transport wraps one pion WebRTC peer connection and its single
// ordered/reliable data channel per remote peer, and implements the
// gather-complete / connected promises and the trickle-handshake wire
// envelope of spec.md §6.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/sage-x-project/rings/internal/logger"
)

// ErrUnsupportedSdpType is returned when a handshake envelope names
// anything other than "offer" or "answer".
var ErrUnsupportedSdpType = fmt.Errorf("transport: unsupported sdp type")

// ErrNotReady is returned by Peer.Send when the data channel exists but
// has not reached the Open ready state yet (still connecting, or closing
// down). Callers retry with backoff rather than treating this as fatal.
var ErrNotReady = fmt.Errorf("transport: data channel not ready")

// DataChannelLabel is the single data channel every peer connection opens.
const DataChannelLabel = "rings"

// Candidate mirrors the wire form of an RTCIceCandidateInit.
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFrag  *string `json:"usernameFragment,omitempty"`
}

// HandshakeEnvelope is the unsigned payload carried inside a
// ConnectNodeSend/Report body's HandshakeWire (after signing+codec
// encoding at the router layer): an RTCSessionDescription plus every ICE
// candidate gathered before gather-complete resolved.
type HandshakeEnvelope struct {
	SDPType    string      `json:"sdp_type"` // "offer" | "answer"
	SDP        string      `json:"sdp"`
	Candidates []Candidate `json:"candidates"`
}

func parseSdpType(s string) (webrtc.SDPType, error) {
	switch s {
	case "offer":
		return webrtc.SDPTypeOffer, nil
	case "answer":
		return webrtc.SDPTypeAnswer, nil
	default:
		return 0, ErrUnsupportedSdpType
	}
}

// promise is a single-resolution future: {completed, success, waiters}.
// It mirrors the spec's gather-complete/connected state cell, expressed
// as the idiomatic Go equivalent of a polled waker — a channel that is
// closed exactly once, plus a latched result.
type promise struct {
	mu        sync.Mutex
	done      chan struct{}
	succeeded bool
}

func newPromise() *promise {
	return &promise{done: make(chan struct{})}
}

func (p *promise) resolve(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.done:
		return
	default:
		p.succeeded = ok
		close(p.done)
	}
}

func (p *promise) wait(ctx context.Context) (bool, error) {
	select {
	case <-p.done:
		return p.succeeded, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Peer owns one RTCPeerConnection and its data channel for a single
// remote Did. Offer/answer emission is non-trickle from the caller's
// point of view: GetOffer/GetAnswer internally await gather-complete so
// the returned envelope already embeds every local candidate.
type Peer struct {
	log *logger.StructuredLogger
	pc  *webrtc.PeerConnection

	mu         sync.Mutex
	dc         *webrtc.DataChannel
	candidates []Candidate

	gatherComplete *promise
	connected      *promise
	done           chan struct{}
	closeOnce      sync.Once

	onData  func([]byte)
	onState func(webrtc.ICEConnectionState)
}

// Config configures a new Peer.
type Config struct {
	ICEServers []string
	OnData     func([]byte)
	OnState    func(webrtc.ICEConnectionState)
	Logger     *logger.StructuredLogger
}

// NewPeer creates the underlying RTCPeerConnection. It does not create an
// offer or data channel; call GetOffer (initiator) or RegisterRemoteInfo
// with an Offer envelope (responder) to proceed.
func NewPeer(cfg Config) (*Peer, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	servers := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, u := range cfg.ICEServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("transport: new peer connection: %w", err)
	}

	p := &Peer{
		log:            log,
		pc:             pc,
		gatherComplete: newPromise(),
		connected:      newPromise(),
		done:           make(chan struct{}),
		onData:         cfg.OnData,
		onState:        cfg.OnState,
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			p.gatherComplete.resolve(true)
			return
		}
		init := c.ToJSON()
		p.mu.Lock()
		p.candidates = append(p.candidates, Candidate{
			Candidate:    init.Candidate,
			SDPMid:       init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
			UsernameFrag: init.UsernameFragment,
		})
		p.mu.Unlock()
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		p.log.Debug("ice connection state changed", logger.String("state", state.String()))
		if p.onState != nil {
			p.onState(state)
		}
		switch state {
		case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
			p.connected.resolve(true)
		case webrtc.ICEConnectionStateFailed:
			p.connected.resolve(false)
			p.Close()
		case webrtc.ICEConnectionStateClosed:
			p.Close()
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		p.setupDataChannel(dc)
	})

	return p, nil
}

func (p *Peer) setupDataChannel(dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if p.onData != nil {
			p.onData(msg.Data)
		}
	})
	dc.OnError(func(err error) {
		p.log.Warn("data channel error", logger.Error(err))
	})
}

func dataChannelConfig() *webrtc.DataChannelInit {
	ordered := true
	return &webrtc.DataChannelInit{Ordered: &ordered}
}

// GetOffer creates the data channel, produces an SDP offer, sets it as
// the local description, awaits gather-complete, and returns the
// envelope ready to be wrapped in a ConnectNodeSend body.
func (p *Peer) GetOffer(ctx context.Context) (HandshakeEnvelope, error) {
	dc, err := p.pc.CreateDataChannel(DataChannelLabel, dataChannelConfig())
	if err != nil {
		return HandshakeEnvelope{}, fmt.Errorf("transport: create data channel: %w", err)
	}
	p.setupDataChannel(dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return HandshakeEnvelope{}, fmt.Errorf("transport: create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return HandshakeEnvelope{}, fmt.Errorf("transport: set local description: %w", err)
	}
	return p.awaitLocalEnvelope(ctx, "offer")
}

// GetAnswer produces an SDP answer for a previously-set remote offer,
// sets it as local description, and awaits gather-complete.
func (p *Peer) GetAnswer(ctx context.Context) (HandshakeEnvelope, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return HandshakeEnvelope{}, fmt.Errorf("transport: create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return HandshakeEnvelope{}, fmt.Errorf("transport: set local description: %w", err)
	}
	return p.awaitLocalEnvelope(ctx, "answer")
}

func (p *Peer) awaitLocalEnvelope(ctx context.Context, sdpType string) (HandshakeEnvelope, error) {
	ok, err := p.gatherComplete.wait(ctx)
	if err != nil {
		return HandshakeEnvelope{}, fmt.Errorf("transport: await gather-complete: %w", err)
	}
	if !ok {
		return HandshakeEnvelope{}, fmt.Errorf("transport: ice gathering did not complete")
	}
	local := p.pc.LocalDescription()
	p.mu.Lock()
	candidates := append([]Candidate(nil), p.candidates...)
	p.mu.Unlock()
	return HandshakeEnvelope{SDPType: sdpType, SDP: local.SDP, Candidates: candidates}, nil
}

// RegisterRemoteInfo sets env's SDP as the remote description and adds
// each of its candidates, mirroring register_remote_info: sets remote,
// adds candidates, rejects an unsupported sdp_type outright.
func (p *Peer) RegisterRemoteInfo(env HandshakeEnvelope) error {
	sdpType, err := parseSdpType(env.SDPType)
	if err != nil {
		return err
	}
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: sdpType, SDP: env.SDP}); err != nil {
		return fmt.Errorf("transport: set remote description: %w", err)
	}
	for _, c := range env.Candidates {
		init := webrtc.ICECandidateInit{
			Candidate:     c.Candidate,
			SDPMid:        c.SDPMid,
			SDPMLineIndex: c.SDPMLineIndex,
			UsernameFragment: c.UsernameFrag,
		}
		if err := p.pc.AddICECandidate(init); err != nil {
			return fmt.Errorf("transport: add ice candidate: %w", err)
		}
	}
	return nil
}

// Connected returns a promise resolved once the ICE connection reaches
// Connected/Completed (success) or Failed (failure).
func (p *Peer) Connected(ctx context.Context) (bool, error) {
	return p.connected.wait(ctx)
}

// Send writes one message on the data channel. Returns ErrNotReady if
// the channel hasn't reached the Open state yet (nil, still connecting,
// or already closing) rather than attempting a write pion would reject.
func (p *Peer) Send(data []byte) error {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNotReady
	}
	return dc.Send(data)
}

// Done is closed when the connection is closed or fails.
func (p *Peer) Done() <-chan struct{} { return p.done }

// Close tears down the data channel and peer connection.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()
	if dc != nil {
		_ = dc.Close()
	}
	return p.pc.Close()
}

// MarshalEnvelope/UnmarshalEnvelope give the swarm layer a concrete
// []byte form for HandshakeWire without coupling it to a specific codec.
func MarshalEnvelope(env HandshakeEnvelope) ([]byte, error) { return json.Marshal(env) }
func UnmarshalEnvelope(b []byte) (HandshakeEnvelope, error) {
	var env HandshakeEnvelope
	err := json.Unmarshal(b, &env)
	return env, err
}
