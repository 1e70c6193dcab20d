package core

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type (
	PositionStore interface {
		FindPosition(ctx context.Context, accountId uuid.UUID, tokenIndex uint16) (*TokenPosition, error)
		UpsertPosition(ctx context.Context, position *TokenPosition) error
		ListPositions(ctx context.Context, accountId uuid.UUID) ([]*TokenPosition, error)
	}

	// TokenPosition is one asset's signed indexed balance inside an account.
	// A non-negative indexed value is a deposit-side balance, a negative one
	// a borrow-side balance. The stored units scale with the owning bank's
	// accrual index to yield the current native amount; no per-account
	// settlement ever runs.
	TokenPosition struct {
		AccountId  uuid.UUID `json:"accountId" gorm:"primaryKey;type:text"`
		TokenIndex uint16    `json:"tokenIndex" gorm:"primaryKey"`

		IndexedValue Fixed  `json:"indexedValue"`
		InUseCount   uint16 `json:"inUseCount"`
		Active       bool   `json:"active"`

		// Reserved carries the record's unused tail as opaque padding.
		Reserved []byte `json:"-"`

		LastUpdate int64 `json:"lastUpdate"`
	}
)

func NewTokenPosition(clk clock.Clock, accountId uuid.UUID, tokenIndex uint16) *TokenPosition {
	return &TokenPosition{
		AccountId:    accountId,
		TokenIndex:   tokenIndex,
		IndexedValue: Fixed{},
		InUseCount:   0,
		Active:       true,
		LastUpdate:   clk.Now().Unix(),
	}
}

func FindOrCreatePosition(ctx context.Context, clk clock.Clock, svc MarginService, account *Account, tokenIndex uint16) (*TokenPosition, error) {
	position, err := svc.FindPosition(ctx, account.Id, tokenIndex)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			position = NewTokenPosition(clk, account.Id, tokenIndex)
			if err := svc.UpsertPosition(ctx, position); err != nil {
				return nil, err
			}
			return position, nil
		}
		return nil, err
	}
	return position, nil
}

func (p *TokenPosition) Clone() *TokenPosition {
	clone := *p
	if p.Reserved != nil {
		clone.Reserved = append([]byte(nil), p.Reserved...)
	}
	return &clone
}

// NativeValue converts the indexed balance to the current native amount:
// indexedValue * depositIndex on the deposit side, indexedValue *
// borrowIndex on the borrow side. An empty position yields exactly zero for
// every index value, so a stale or drifted index can never conjure a
// phantom balance on an empty slot.
func (p *TokenPosition) NativeValue(bank *Bank) (Fixed, error) {
	if bank.TokenIndex != p.TokenIndex {
		return Fixed{}, errors.Wrapf(UnknownAsset, "position token %d valued against bank token %d", p.TokenIndex, bank.TokenIndex)
	}
	if p.IndexedValue.IsZero() {
		return Fixed{}, nil
	}
	if p.IndexedValue.IsNegative() {
		return p.IndexedValue.Mul(bank.BorrowIndex)
	}
	return p.IndexedValue.Mul(bank.DepositIndex)
}

// NativeDeposit is the non-negative half of the native value: max(native, 0).
func (p *TokenPosition) NativeDeposit(bank *Bank) (Fixed, error) {
	native, err := p.NativeValue(bank)
	if err != nil {
		return Fixed{}, err
	}
	return native.Max(Fixed{}), nil
}

// NativeBorrow is the non-positive half of the native value: min(native, 0).
func (p *TokenPosition) NativeBorrow(bank *Bank) (Fixed, error) {
	native, err := p.NativeValue(bank)
	if err != nil {
		return Fixed{}, err
	}
	return native.Min(Fixed{}), nil
}

func (p *TokenPosition) Side() BalanceSide {
	switch {
	case p.IndexedValue.IsPositive():
		return BalanceSideAssets
	case p.IndexedValue.IsNegative():
		return BalanceSideLiabilities
	default:
		return BalanceSideEmpty
	}
}

func (p *TokenPosition) IncrementInUse() {
	p.InUseCount++
}

func (p *TokenPosition) DecrementInUse() error {
	if p.InUseCount == 0 {
		return IllegalPositionState
	}
	p.InUseCount--
	return nil
}

// Close deactivates the position slot. The slot may only be reclaimed once
// the indexed value is zero and nothing references it.
func (p *TokenPosition) Close(clk clock.Clock) error {
	if !p.IndexedValue.IsZero() {
		return IllegalPositionState
	}
	if p.InUseCount > 0 {
		return PositionInUse
	}
	p.Active = false
	p.IndexedValue = Fixed{}
	p.LastUpdate = clk.Now().Unix()
	return nil
}
