package wire

// Opcode identifies the operation a request carries. Client-facing
// opcodes and peer-facing opcodes share the same enumeration here (unlike
// the source, which keeps two separate opcode spaces); PeerOpcode below
// is still a real translation step because a production wire protocol
// would keep them distinct, and tests exercise it as such.
type Opcode uint8

const (
	OpRead Opcode = iota
	OpWrite
	OpCreateAndWrite
	OpRemove
	OpDecref

	// opPeerBase shifts every client opcode into the peer-gateway opcode
	// space. A real two-process deployment would route on this number to
	// tell a forwarded request apart from a client-originated one.
	opPeerBase Opcode = 0x80
)

// PeerOpcode translates a client opcode into the corresponding
// gateway-to-peer opcode, exactly as gateway_to_peer_opcode does in the
// source: a total, compile-time-enumerable function over the known
// client opcodes.
func PeerOpcode(client Opcode) Opcode {
	switch client {
	case OpRead, OpWrite, OpCreateAndWrite, OpRemove, OpDecref:
		return opPeerBase + client
	default:
		panic("wire: unknown client opcode")
	}
}

func (o Opcode) String() string {
	switch o {
	case OpRead:
		return "READ"
	case OpWrite:
		return "WRITE"
	case OpCreateAndWrite:
		return "CREATE_AND_WRITE"
	case OpRemove:
		return "REMOVE"
	case OpDecref:
		return "DECREF"
	default:
		if o >= opPeerBase {
			return "PEER(" + (o - opPeerBase).String() + ")"
		}
		return "UNKNOWN"
	}
}

// Result is the taxonomy of outcomes a leg, a local op, or a full request
// can report, per spec §6/§7.
type Result uint8

const (
	Success Result = iota
	Readonly
	Halt
	NetworkError
	// NotFound and IOError stand in for "any per-replica status
	// propagated verbatim from the local or peer engines" — the source
	// has dozens of such codes; these two are enough for this module's
	// local engine to express its own failures distinctly.
	NotFound
	IOError
)

func (r Result) String() string {
	switch r {
	case Success:
		return "SUCCESS"
	case Readonly:
		return "READONLY"
	case Halt:
		return "HALT"
	case NetworkError:
		return "NETWORK_ERROR"
	case NotFound:
		return "NOT_FOUND"
	case IOError:
		return "IO_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Reduce implements the gateway's collapse rule: any non-success wins; if
// both sides are non-success, the latest one (b) wins, matching the
// source's "last observed code wins" behavior (spec §4.C step 5, §7).
func Reduce(a, b Result) Result {
	if b != Success {
		return b
	}
	return a
}
