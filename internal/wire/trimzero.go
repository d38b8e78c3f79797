package wire

// UntrimZeroBlocks re-inflates a payload that a peer trimmed of leading
// and trailing zero regions before sending it to a legacy client, per
// spec §4.E step 5 / scenario S3.
//
// payload currently holds `length` bytes that logically start at
// `offset` within a `requested`-byte object range; everything outside
// [offset, offset+length) was zero and was never put on the wire. The
// returned slice is exactly `requested` bytes: the original payload
// copied into place, zero elsewhere.
func UntrimZeroBlocks(payload []byte, offset, length, requested uint32) []byte {
	out := make([]byte, requested)
	end := offset + length
	if end > requested {
		end = requested
	}
	if offset < end {
		n := end - offset
		copy(out[offset:end], payload[:n])
	}
	return out
}
