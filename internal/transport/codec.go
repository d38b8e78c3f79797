package transport

import (
	"bytes"
	"errors"
	"net"
	"time"

	"github.com/sheepgate/gateway/internal/wire"
)

// PollTimeout is the fixed per-iteration timeout the waiter (and the
// retry helpers below) block for, matching spec.md §4.D's POLL_TIMEOUT.
const PollTimeout = 2 * time.Second

// MaxRetryCount bounds how many PollTimeout-length waits a single
// send/read may spend retrying while the cluster epoch is stable,
// matching spec.md §4.D/§5's MAX_RETRY_COUNT. Request-level deadline is
// therefore MaxRetryCount * PollTimeout.
const MaxRetryCount = 5

// NeedRetry reports whether a send/read blocked on the network should
// keep retrying: true while the epoch it was admitted under still
// matches the live view (cluster.Membership.NeedRetry implements this).
type NeedRetry func(epoch uint32) bool

// SendRequest writes a request header and payload to conn, retrying a
// deadline-bounded write under an unchanged epoch exactly as send_req
// does in the source (spec §6's send_req(fd, hdr, data, wlen,
// need_retry, epoch, retry_budget)).
func SendRequest(conn net.Conn, hdr wire.Header, payload []byte, epoch uint32, needRetry NeedRetry) error {
	budget := MaxRetryCount
	for {
		if err := conn.SetWriteDeadline(time.Now().Add(PollTimeout)); err != nil {
			return err
		}
		err := hdr.Encode(conn)
		if err == nil && len(payload) > 0 {
			_, err = conn.Write(payload)
		}
		if err == nil {
			return nil
		}
		if !isTimeout(err) {
			return err
		}
		if budget <= 0 || !needRetry(epoch) {
			return err
		}
		budget--
	}
}

// ReadResponse reads one response header and its payload from conn.
// do_read in the source is a per-buffer retry primitive invoked once
// for the header and, separately, once more for the payload; readWithRetry
// below gives this module the same primitive, so a deadline timeout
// partway through the payload resumes the payload read instead of
// re-decoding the next header-sized chunk of it as a fresh header.
func ReadResponse(conn net.Conn, epoch uint32, needRetry NeedRetry) (wire.Response, error) {
	var hdrBuf [wire.HeaderSize]byte
	if err := readWithRetry(conn, hdrBuf[:], epoch, needRetry); err != nil {
		return wire.Response{}, err
	}
	hdr, err := wire.DecodeHeader(bytes.NewReader(hdrBuf[:]))
	if err != nil {
		return wire.Response{}, err
	}

	var payload []byte
	if hdr.DataLength > 0 {
		payload = make([]byte, hdr.DataLength)
		if err := readWithRetry(conn, payload, epoch, needRetry); err != nil {
			return wire.Response{}, err
		}
	}
	return wire.Response{Header: hdr, Payload: payload}, nil
}

// readWithRetry fills buf completely from conn, resuming at the byte
// offset already read across a deadline timeout rather than restarting,
// as long as needRetry(epoch) holds and the retry budget lasts.
func readWithRetry(conn net.Conn, buf []byte, epoch uint32, needRetry NeedRetry) error {
	budget := MaxRetryCount
	off := 0
	for off < len(buf) {
		if err := conn.SetReadDeadline(time.Now().Add(PollTimeout)); err != nil {
			return err
		}
		n, err := conn.Read(buf[off:])
		off += n
		if err == nil {
			continue
		}
		if !isTimeout(err) {
			return err
		}
		if budget <= 0 || !needRetry(epoch) {
			return err
		}
		budget--
	}
	return nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
