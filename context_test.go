package txengine

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationContext_Clone(t *testing.T) {
	nonce := uint64(5)
	orig := OperationContext{
		NetworkID: "testnet",
		Amount:    big.NewInt(1000),
		Nonce:     &nonce,
		CallData:  []byte{1, 2, 3},
		Metadata:  map[string]string{"k": "v"},
	}

	clone := orig.Clone()
	clone.Amount.SetInt64(99)
	*clone.Nonce = 42
	clone.CallData[0] = 9
	clone.Metadata["k"] = "changed"

	assert.Equal(t, int64(1000), orig.Amount.Int64())
	assert.Equal(t, uint64(5), *orig.Nonce)
	assert.Equal(t, byte(1), orig.CallData[0])
	assert.Equal(t, "v", orig.Metadata["k"])

	// Nil fields survive cloning.
	empty := OperationContext{}.Clone()
	assert.Nil(t, empty.Amount)
	assert.Nil(t, empty.Nonce)
}

func TestOperationContext_With(t *testing.T) {
	orig := OperationContext{FeePrice: 100, CallData: []byte{1}}

	bumped := orig.WithFeePrice(150)
	assert.Equal(t, uint64(150), bumped.FeePrice)
	assert.Equal(t, uint64(100), orig.FeePrice)

	tagged := orig.WithTxID("0xabc")
	assert.Equal(t, "0xabc", tagged.TxID)
	assert.Empty(t, orig.TxID)

	replaced := orig.WithCallData([]byte{7})
	require.Equal(t, []byte{7}, replaced.CallData)
	assert.Equal(t, []byte{1}, orig.CallData)
}

func TestApplyBps(t *testing.T) {
	assert.Equal(t, uint64(6), ApplyBps(5, 12_000))
	assert.Equal(t, uint64(7), ApplyBps(5, 14_000))
	assert.Equal(t, uint64(110), ApplyBps(100, 11_000))
	assert.Equal(t, uint64(100), ApplyBps(100, 10_000))
	assert.Equal(t, uint64(0), ApplyBps(0, 15_000))
	// Truncation is toward zero.
	assert.Equal(t, uint64(1), ApplyBps(1, 15_000))

	// Wei-denominated fees stay exact where a 64-bit intermediate product
	// would wrap.
	fee := uint64(2_000_000_000_000_000_000)
	assert.Equal(t, uint64(3_000_000_000_000_000_000), ApplyBps(fee, 15_000))
	assert.Equal(t, uint64(2_200_000_000_000_000_000), ApplyBps(fee, 11_000))
	assert.GreaterOrEqual(t, ApplyBps(fee, 12_000), fee)

	// Results past the uint64 range saturate instead of wrapping, and 1.0x
	// at the top of the range is exact.
	assert.Equal(t, uint64(math.MaxUint64), ApplyBps(math.MaxUint64, 20_000))
	assert.Equal(t, uint64(math.MaxUint64), ApplyBps(math.MaxUint64, 10_000))
}
