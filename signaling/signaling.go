// Package signaling implements the out-of-band bootstrap exchange used
// to connect the very first two peers, before either has a DHT path to
// relay a ConnectNodeSend/Report through: a plain WebSocket rendezvous
// that carries one signed handshake envelope each way.
package signaling

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sage-x-project/rings/identity"
	"github.com/sage-x-project/rings/internal/logger"
)

// Envelope is the signed wire message exchanged over the signaling
// channel: an identity-bound wrapper around the base58 handshake wire
// produced by the transport package, verified before the embedder is
// handed the inner bytes.
type Envelope struct {
	From      identity.Did `json:"from"`
	Wire      string       `json:"wire"`
	Signature []byte       `json:"signature"`
}

// Sign produces the signature over Wire for From, using signFn.
func (e *Envelope) Sign(signFn func([]byte) ([]byte, error)) error {
	sig, err := signFn([]byte(e.Wire))
	if err != nil {
		return fmt.Errorf("signaling: sign envelope: %w", err)
	}
	e.Signature = sig
	return nil
}

// Verify checks that Signature over Wire recovers From.
func (e *Envelope) Verify() error {
	return identity.Verify(e.From, []byte(e.Wire), e.Signature)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler is invoked with a verified inbound offer envelope; it must
// produce the answer envelope to send back (already signed).
type Handler func(ctx context.Context, offer Envelope) (Envelope, error)

// Server accepts one bootstrap connection, reads exactly one offer
// envelope, hands it to Handler, and writes back the answer — a single
// request/response rendezvous rather than a persistent session, since
// every later message between the two peers travels over the WebRTC
// data channel instead.
type Server struct {
	handler      Handler
	log          *logger.StructuredLogger
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewServer creates a Server backed by handler.
func NewServer(handler Handler) *Server {
	return &Server{
		handler:      handler,
		log:          logger.GetDefaultLogger(),
		readTimeout:  30 * time.Second,
		writeTimeout: 10 * time.Second,
	}
}

// ServeHTTP implements http.Handler by upgrading the connection and
// running the single-shot rendezvous.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, fmt.Sprintf("signaling: upgrade failed: %v", err), http.StatusBadRequest)
		return
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	var offer Envelope
	if err := conn.ReadJSON(&offer); err != nil {
		s.log.Warn("signaling: read offer failed", logger.Error(err))
		return
	}
	if err := offer.Verify(); err != nil {
		s.log.Warn("signaling: offer signature invalid", logger.Error(err))
		return
	}

	answer, err := s.handler(r.Context(), offer)
	if err != nil {
		s.log.Warn("signaling: handler failed", logger.Error(err))
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := conn.WriteJSON(answer); err != nil {
		s.log.Warn("signaling: write answer failed", logger.Error(err))
	}
}

// Dial connects to url, sends offer, and returns the verified answer
// envelope.
func Dial(ctx context.Context, url string, offer Envelope) (Envelope, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return Envelope{}, fmt.Errorf("signaling: dial: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(offer); err != nil {
		return Envelope{}, fmt.Errorf("signaling: write offer: %w", err)
	}

	var answer Envelope
	if err := conn.ReadJSON(&answer); err != nil {
		return Envelope{}, fmt.Errorf("signaling: read answer: %w", err)
	}
	if err := answer.Verify(); err != nil {
		return Envelope{}, fmt.Errorf("signaling: answer signature invalid: %w", err)
	}
	return answer, nil
}
