package pevmvm

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/paraxVM/pevm/mvtypes"
)

func TestPushOriginFirstReadAlwaysSucceeds(t *testing.T) {
	var origins mvtypes.ReadOrigins
	err := pushOrigin(&origins, mvtypes.StorageOrigin)
	require.NoError(t, err)
	require.Equal(t, mvtypes.ReadOrigins{mvtypes.StorageOrigin}, origins)
}

func TestPushOriginMismatchIsInconsistent(t *testing.T) {
	origins := mvtypes.ReadOrigins{mvtypes.StorageOrigin}
	err := pushOrigin(&origins, mvtypes.MvMemoryOrigin(mvtypes.TxVersion{TxIdx: 1}))
	require.Error(t, err)
}

func TestAddHashDeltaZeroIsIdentity(t *testing.T) {
	h := common.HexToHash("0x01")
	require.Equal(t, h, addHashDelta(h, new(uint256.Int)))
}

func TestAddHashDeltaAddsToZeroBase(t *testing.T) {
	h := common.Hash{}
	delta := uint256.NewInt(5)
	got := addHashDelta(h, delta)
	want := new(uint256.Int).SetBytes32(got[:])
	require.Equal(t, uint64(5), want.Uint64())
}
