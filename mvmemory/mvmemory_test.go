package mvmemory

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/paraxVM/pevm/mvtypes"
)

func addr(n byte) common.Address {
	var a common.Address
	a[19] = n
	return a
}

func basicValue(balance uint64, nonce uint64) mvtypes.MemoryValue {
	return mvtypes.NewBasicValue(mvtypes.AccountBasic{
		Balance: uint256.NewInt(balance),
		Nonce:   nonce,
	})
}

func TestReadNotFoundBeforeAnyWrite(t *testing.T) {
	mv := New()
	h := mvtypes.Hasher{}.Hash(mvtypes.Basic(addr(1)))
	res := mv.Read(h, 5)
	require.Equal(t, ReadNotFound, res.Kind)
}

func TestRecordThenReadSeesLatestPriorWriter(t *testing.T) {
	mv := New()
	loc := mvtypes.Basic(addr(1))
	h := mvtypes.NewHasher(7).Hash(loc)

	mv.Record(mvtypes.TxVersion{TxIdx: 0, Incarnation: 0},
		mvtypes.WriteSet{{Location: h, Value: basicValue(100, 1)}}, nil)
	mv.Record(mvtypes.TxVersion{TxIdx: 2, Incarnation: 0},
		mvtypes.WriteSet{{Location: h, Value: basicValue(50, 3)}}, nil)

	res := mv.Read(h, 5)
	require.Equal(t, ReadData, res.Kind)
	require.Equal(t, mvtypes.TxIdx(2), res.Version.TxIdx)
	require.Equal(t, uint64(50), res.Value.Basic.Balance.Uint64())

	// A read with an upper bound below tx 2 must see tx 0's write instead.
	res = mv.Read(h, 2)
	require.Equal(t, mvtypes.TxIdx(0), res.Version.TxIdx)
}

func TestMarkEstimateSurfacesAsBlockingDependency(t *testing.T) {
	mv := New()
	loc := mvtypes.Basic(addr(2))
	h := mvtypes.NewHasher(1).Hash(loc)

	mv.Record(mvtypes.TxVersion{TxIdx: 3, Incarnation: 0},
		mvtypes.WriteSet{{Location: h, Value: basicValue(1, 0)}}, nil)
	mv.MarkEstimate(3, []mvtypes.LocationHash{h})

	res := mv.Read(h, 10)
	require.Equal(t, ReadEstimate, res.Kind)
	require.Equal(t, mvtypes.TxIdx(3), res.BlockingTxIdx)
}

func TestRecordDropsLocationsNoLongerWritten(t *testing.T) {
	mv := New()
	locA := mvtypes.NewHasher(1).Hash(mvtypes.Basic(addr(1)))
	locB := mvtypes.NewHasher(1).Hash(mvtypes.Basic(addr(2)))
	v := mvtypes.TxVersion{TxIdx: 0, Incarnation: 0}

	mv.Record(v, mvtypes.WriteSet{
		{Location: locA, Value: basicValue(1, 0)},
		{Location: locB, Value: basicValue(2, 0)},
	}, nil)

	// Re-execution (incarnation 1) only writes locA now.
	v1 := mvtypes.TxVersion{TxIdx: 0, Incarnation: 1}
	mv.Record(v1, mvtypes.WriteSet{
		{Location: locA, Value: basicValue(5, 0)},
	}, []mvtypes.LocationHash{locA, locB})

	require.Equal(t, ReadNotFound, mv.Read(locB, 5).Kind)
	res := mv.Read(locA, 5)
	require.Equal(t, mvtypes.Incarnation(1), res.Version.Incarnation)
}

func TestWroteNewLocationFlag(t *testing.T) {
	mv := New()
	h := mvtypes.NewHasher(1).Hash(mvtypes.Basic(addr(1)))
	wrote := mv.Record(mvtypes.TxVersion{TxIdx: 0}, mvtypes.WriteSet{{Location: h, Value: basicValue(1, 0)}}, nil)
	require.True(t, wrote)
	wrote = mv.Record(mvtypes.TxVersion{TxIdx: 1}, mvtypes.WriteSet{{Location: h, Value: basicValue(2, 0)}}, nil)
	require.False(t, wrote)
}

func TestBytecodeCacheFirstWriteWins(t *testing.T) {
	mv := New()
	var ch [32]byte
	ch[0] = 1
	mv.SetBytecode(ch, []byte{0x60, 0x00})
	mv.SetBytecode(ch, []byte{0xFF})
	code, ok := mv.Bytecode(ch)
	require.True(t, ok)
	require.Equal(t, []byte{0x60, 0x00}, code)
}
