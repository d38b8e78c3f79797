package objects

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataVidOffsetIsMonotonic(t *testing.T) {
	assert.Less(t, DataVidOffset(0), DataVidOffset(1))
	assert.Equal(t, uint64(VidSize), DataVidOffset(1)-DataVidOffset(0))
}

func TestIsVdiObjAndReadonlyBits(t *testing.T) {
	plain := uint64(0x1000)
	vdi := plain | vdiBit
	readonly := plain | readonlyBit

	assert.False(t, IsVdiObj(plain))
	assert.True(t, IsVdiObj(vdi))
	assert.False(t, IsReadonly(plain))
	assert.True(t, IsReadonly(readonly))
}

func TestIsDataVidUpdateRequiresVdiObjAndInRangeOffset(t *testing.T) {
	vdi := uint64(1) | vdiBit
	plain := uint64(1)

	assert.True(t, IsDataVidUpdate(vdi, DataVidOffset(0), VidSize*4))
	assert.False(t, IsDataVidUpdate(plain, DataVidOffset(0), VidSize*4))
	assert.False(t, IsDataVidUpdate(vdi, DataRefOffset(0), RefSize*4))
}

func TestVidRange(t *testing.T) {
	start, n := VidRange(DataVidOffset(10), VidSize*5)
	assert.Equal(t, 10, start)
	assert.Equal(t, 5, n)
}

func TestDecodeGenerationRef(t *testing.T) {
	assert.Equal(t, GenerationRef{}, DecodeGenerationRef(nil))
	assert.Equal(t, GenerationRef{}, DecodeGenerationRef([]byte{1, 2, 3}))

	payload := []byte{0, 0, 0, 7, 0, 0, 0, 9}
	assert.Equal(t, GenerationRef{Generation: 7, Count: 9}, DecodeGenerationRef(payload))
}
