package core

import (
	"testing"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenPositionNativeValue(t *testing.T) {
	bank := newTestBank(t, 3, "BTC")
	bank.DepositIndex = mustFixed(t, "1.5")
	bank.BorrowIndex = mustFixed(t, "2")

	tests := []struct {
		name    string
		indexed string
		want    string
	}{
		{name: "deposit side uses deposit index", indexed: "10", want: "15"},
		{name: "borrow side uses borrow index", indexed: "-10", want: "-20"},
		{name: "empty", indexed: "0", want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &TokenPosition{TokenIndex: 3, IndexedValue: mustFixed(t, tt.indexed), Active: true}
			native, err := p.NativeValue(bank)
			require.NoError(t, err)
			assert.True(t, native.Equal(mustFixed(t, tt.want)), "expected %s, got %s", tt.want, native)
		})
	}
}

func TestTokenPositionZeroInvariance(t *testing.T) {
	// an empty position is worth exactly zero whatever the indices say
	p := &TokenPosition{TokenIndex: 3, Active: true}

	for _, index := range []string{"1", "0", "123456789.123456789"} {
		bank := newTestBank(t, 3, "BTC")
		bank.DepositIndex = mustFixed(t, index)
		bank.BorrowIndex = mustFixed(t, index)

		native, err := p.NativeValue(bank)
		require.NoError(t, err)
		assert.True(t, native.IsZero(), "index %s conjured balance %s", index, native)
	}

	bank := newTestBank(t, 3, "BTC")
	bank.DepositIndex = MaxFixed()
	native, err := p.NativeValue(bank)
	require.NoError(t, err)
	assert.True(t, native.IsZero())
}

func TestTokenPositionBankMismatch(t *testing.T) {
	bank := newTestBank(t, 5, "ETH")
	p := &TokenPosition{TokenIndex: 3, IndexedValue: NewFixedFromInt(10), Active: true}

	_, err := p.NativeValue(bank)
	assert.ErrorIs(t, err, UnknownAsset)
}

func TestTokenPositionSides(t *testing.T) {
	bank := newTestBank(t, 3, "BTC")
	bank.DepositIndex = mustFixed(t, "1.5")
	bank.BorrowIndex = mustFixed(t, "2")

	p := &TokenPosition{TokenIndex: 3, IndexedValue: NewFixedFromInt(-10), Active: true}
	assert.Equal(t, BalanceSideLiabilities, p.Side())

	deposit, err := p.NativeDeposit(bank)
	require.NoError(t, err)
	assert.True(t, deposit.IsZero())

	borrow, err := p.NativeBorrow(bank)
	require.NoError(t, err)
	assert.True(t, borrow.Equal(NewFixedFromInt(-20)))

	p.IndexedValue = NewFixedFromInt(10)
	assert.Equal(t, BalanceSideAssets, p.Side())

	deposit, err = p.NativeDeposit(bank)
	require.NoError(t, err)
	assert.True(t, deposit.Equal(NewFixedFromInt(15)))

	p.IndexedValue = Fixed{}
	assert.Equal(t, BalanceSideEmpty, p.Side())
}

func TestTokenPositionClose(t *testing.T) {
	clk := clock.NewMock()
	p := NewTokenPosition(clk, uuid.Must(uuid.NewV4()), 3)

	p.IndexedValue = NewFixedFromInt(1)
	assert.ErrorIs(t, p.Close(clk), IllegalPositionState)

	p.IndexedValue = Fixed{}
	p.IncrementInUse()
	assert.ErrorIs(t, p.Close(clk), PositionInUse)

	require.NoError(t, p.DecrementInUse())
	require.NoError(t, p.Close(clk))
	assert.False(t, p.Active)

	assert.ErrorIs(t, p.DecrementInUse(), IllegalPositionState)
}

func TestTokenPositionClone(t *testing.T) {
	p := &TokenPosition{TokenIndex: 3, IndexedValue: NewFixedFromInt(10), Active: true, Reserved: []byte{1, 2}}
	clone := p.Clone()

	clone.IndexedValue = NewFixedFromInt(99)
	clone.Reserved[0] = 9

	assert.True(t, p.IndexedValue.Equal(NewFixedFromInt(10)))
	assert.Equal(t, byte(1), p.Reserved[0])
}
