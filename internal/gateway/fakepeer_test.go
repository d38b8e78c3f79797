package gateway

import (
	"net"
	"testing"

	"github.com/sheepgate/gateway/internal/wire"
)

// fakePeer is an in-process peer gateway: a real TCP listener that reads
// one wire request per connection and replies with a caller-supplied
// Result, so tests exercise the dispatcher and waiter against genuine
// file descriptors rather than a mocked net.Conn — matching
// SPEC_FULL.md's testing approach and widaT-netpoll's own demo, which
// exercises its poller against real sockets.
type fakePeer struct {
	ln net.Listener
}

// startFakePeer listens on loopback and answers every request with
// result, echoing the request payload back when result is Success.
func startFakePeer(t *testing.T, result wire.Result) *fakePeer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	p := &fakePeer{ln: ln}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go p.serveOne(conn, result)
		}
	}()

	t.Cleanup(func() { ln.Close() })
	return p
}

func (p *fakePeer) serveOne(conn net.Conn, result wire.Result) {
	defer conn.Close()

	hdr, err := wire.DecodeHeader(conn)
	if err != nil {
		return
	}
	var payload []byte
	if hdr.DataLength > 0 {
		payload = make([]byte, hdr.DataLength)
		if _, err := readFullTest(conn, payload); err != nil {
			return
		}
	}

	respHdr := hdr
	respHdr.Result = result
	if result != wire.Success {
		respHdr.DataLength = 0
		payload = nil
	}
	if err := respHdr.Encode(conn); err != nil {
		return
	}
	if len(payload) > 0 {
		conn.Write(payload)
	}
}

func (p *fakePeer) addr() string {
	return p.ln.Addr().String()
}

func readFullTest(conn net.Conn, buf []byte) (int, error) {
	off := 0
	for off < len(buf) {
		n, err := conn.Read(buf[off:])
		off += n
		if err != nil {
			return off, err
		}
	}
	return off, nil
}
