package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestUntrimZeroBlocksReinflatesPayload mirrors spec scenario S3: a
// remote trims a 4 KiB object down to the nonzero [0x200, 0x400) range
// before sending it to a legacy client; the gateway must restore the
// full requested length with zeros elsewhere.
func TestUntrimZeroBlocksReinflatesPayload(t *testing.T) {
	const requested = 0x1000
	trimmed := make([]byte, 0x200)
	for i := range trimmed {
		trimmed[i] = 0xAA
	}

	out := UntrimZeroBlocks(trimmed, 0x200, 0x200, requested)
	require.Len(t, out, requested)

	for i := 0; i < 0x200; i++ {
		assert.Equal(t, byte(0), out[i], "expected zero before trimmed region at %d", i)
	}
	for i := 0x200; i < 0x400; i++ {
		assert.Equal(t, byte(0xAA), out[i], "expected trimmed payload at %d", i)
	}
	for i := 0x400; i < requested; i++ {
		assert.Equal(t, byte(0), out[i], "expected zero after trimmed region at %d", i)
	}
}
