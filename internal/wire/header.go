// Package wire defines the on-the-wire request/response header shared by
// every gateway-to-peer connection, and the small set of pure helpers
// (opcode translation, trimmed-zero re-inflation) that operate on it
// without touching sockets or storage.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PeerProtoVersion is the protocol version this gateway stamps on every
// header it forwards to a peer, regardless of the version the original
// client spoke.
const PeerProtoVersion uint16 = 2

// ProtoVerTrimZeroSectors is the minimum client protocol version that
// understands trimmed (sparse) zero regions in a read response. Clients
// below this version need the payload re-inflated before it reaches them.
const ProtoVerTrimZeroSectors uint16 = 1

// HeaderSize is the fixed wire size of Header, matching struct sd_req /
// struct sd_rsp: a handful of scalar fields padded to a round size.
const HeaderSize = 32

const flagLocal uint8 = 1 << 0

// Header is the fixed-size request/response envelope. It is reused for
// both directions: a request's Result field is always zero; a response
// reuses the sender's Opcode/OID/Offset unchanged and fills in Result.
type Header struct {
	Opcode     Opcode
	Local      bool
	ProtoVer   uint16
	Epoch      uint32
	DataLength uint32
	OID        uint64
	Offset     uint64
	Result     Result
}

// Encode writes h in big-endian wire format to w.
func (h Header) Encode(w io.Writer) error {
	var buf [HeaderSize]byte
	buf[0] = byte(h.Opcode)
	if h.Local {
		buf[1] = flagLocal
	}
	binary.BigEndian.PutUint16(buf[2:4], h.ProtoVer)
	binary.BigEndian.PutUint32(buf[4:8], h.Epoch)
	binary.BigEndian.PutUint32(buf[8:12], h.DataLength)
	binary.BigEndian.PutUint64(buf[12:20], h.OID)
	binary.BigEndian.PutUint64(buf[20:28], h.Offset)
	buf[28] = byte(h.Result)
	_, err := w.Write(buf[:])
	return err
}

// DecodeHeader reads and decodes a Header from r.
func DecodeHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	return Header{
		Opcode:     Opcode(buf[0]),
		Local:      buf[1]&flagLocal != 0,
		ProtoVer:   binary.BigEndian.Uint16(buf[2:4]),
		Epoch:      binary.BigEndian.Uint32(buf[4:8]),
		DataLength: binary.BigEndian.Uint32(buf[8:12]),
		OID:        binary.BigEndian.Uint64(buf[12:20]),
		Offset:     binary.BigEndian.Uint64(buf[20:28]),
		Result:     Result(buf[28]),
	}, nil
}

func (h Header) String() string {
	return fmt.Sprintf("{op=%s oid=%#x off=%d len=%d epoch=%d local=%v result=%s}",
		h.Opcode, h.OID, h.Offset, h.DataLength, h.Epoch, h.Local, h.Result)
}

// Request is a fully materialized client or forwarded request: the header
// plus its payload.
type Request struct {
	Header  Header
	Payload []byte

	// RequestedLength is the length the original client asked for before
	// any trim-zero compaction happened on the wire; only meaningful on
	// the read path's compatibility tail (see UntrimZeroBlocks).
	RequestedLength uint32
}

// Response is a header carrying Result plus the returned payload, if any.
type Response struct {
	Header  Header
	Payload []byte
}
