package gateway

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/sheepgate/gateway/internal/wire"
)

// Server is the TCP listener for the binary data-plane wire protocol —
// the socket counterpart to the teacher's gin HTTP router, introduced
// because spec.md's fan-out/waiter design is specified over raw sockets
// and poll(2), not request/response HTTP (see SPEC_FULL.md §2's
// component-to-package mapping).
type Server struct {
	gateway  *Gateway
	listener net.Listener
	log      *logrus.Entry
}

// Listen binds addr and returns a Server ready to Serve.
func Listen(addr string, gw *Gateway, log *logrus.Entry) (*Server, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{gateway: gw, listener: ln, log: log}, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until ctx is canceled or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.serveConn(ctx, conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

// serveConn reads one request per round trip from conn and writes back
// the gateway's response, for the lifetime of the connection. A fatal
// poll error inside the gateway (descriptor-table corruption, per
// spec.md §4.D step 4 / §7) is recovered here as a connection-level
// abort rather than a process crash — Go servers host many tenants on
// one process, unlike the source's single-process-per-node model.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	for {
		req, err := s.readRequest(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.WithError(err).Debug("gateway: connection read error")
			}
			return
		}

		resp := s.handle(ctx, conn, req)

		if err := resp.Header.Encode(conn); err != nil {
			s.log.WithError(err).Debug("gateway: connection write error")
			return
		}
		if len(resp.Payload) > 0 {
			if _, err := conn.Write(resp.Payload); err != nil {
				s.log.WithError(err).Debug("gateway: connection write error")
				return
			}
		}
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn, req wire.Request) (resp wire.Response) {
	defer func() {
		if r := recover(); r != nil {
			if fpe, ok := r.(fatalPollError); ok {
				s.log.WithError(fpe).Error("gateway: fatal poll error, aborting connection")
			} else {
				s.log.Errorf("gateway: panic handling request: %v", r)
			}
			resp = responseFor(req, wire.NetworkError)
			_ = conn.Close()
		}
	}()
	return s.gateway.Handle(ctx, req)
}

func (s *Server) readRequest(conn net.Conn) (wire.Request, error) {
	hdr, err := wire.DecodeHeader(conn)
	if err != nil {
		return wire.Request{}, err
	}
	var payload []byte
	if hdr.DataLength > 0 {
		payload = make([]byte, hdr.DataLength)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return wire.Request{}, err
		}
	}
	return wire.Request{Header: hdr, Payload: payload, RequestedLength: hdr.DataLength}, nil
}
