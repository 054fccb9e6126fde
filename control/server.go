package control

import (
	"fmt"
	"time"

	"github.com/afspm-go/afspm/internal/transport"
	"github.com/afspm-go/afspm/internal/wire"
)

// Server is the Translator-side control server (spec §2 C4, §4.5 rule 7):
// it only ever receives requests the Router has already decided to forward
// verbatim because their sender held control.
type Server struct {
	inner *transport.ControlServer
}

// NewServer binds addr for the Router's backend connection.
func NewServer(addr string) (*Server, error) {
	inner, err := transport.NewControlServer(addr)
	if err != nil {
		return nil, err
	}
	return &Server{inner: inner}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.inner.Addr().String() }

// Request bundles a decoded forwarded request with the identity needed to
// Reply and the request code's matching payload, if any.
type Request struct {
	Identity string
	Code     wire.RequestCode
	Payload  wire.Message // nil if Code carries no payload
}

// Poll waits up to timeout for the next forwarded request.
func (s *Server) Poll(timeout time.Duration) (Request, bool) {
	identity, rawCode, rawPayload, ok := s.inner.Poll(timeout)
	if !ok {
		return Request{}, false
	}
	code := wire.RequestCode(rawCode)
	req := Request{Identity: identity, Code: code}

	if msg, hasPayload := wire.NewPayload(code); hasPayload {
		if err := wire.Unmarshal(rawPayload, msg); err != nil {
			return Request{}, false
		}
		req.Payload = msg
	}
	return req, true
}

// Reply sends a reply to the request identified by identity. payload may
// be nil.
func (s *Server) Reply(identity string, code wire.ReplyCode, payload wire.Message) error {
	var buf []byte
	if payload != nil {
		b, err := wire.Marshal(payload)
		if err != nil {
			return fmt.Errorf("control: marshal reply payload: %w", err)
		}
		buf = b
	}
	return s.inner.Reply(identity, byte(code), buf)
}

// Close shuts the server down.
func (s *Server) Close() error { return s.inner.Close() }
