package core

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
)

type (
	PositionWrapperStore interface {
		StoragePosition(ctx context.Context, wrapper *PositionWrapper) error
		StorageLiquidationResult(ctx context.Context, result *LiquidateResult) error
	}

	// PositionWrapper is the mutation authority over one position and its
	// bank. All balance changes flow through it so the position's indexed
	// value and the bank's indexed totals move together.
	PositionWrapper struct {
		clk clock.Clock `json:"-"`

		Position *TokenPosition `json:"position"`
		Bank     *Bank          `json:"bank"`
	}
)

type OptionFunc func(pw *PositionWrapper)

func WithClock(clk clock.Clock) OptionFunc {
	return func(pw *PositionWrapper) {
		pw.clk = clk
	}
}

func NewPositionWrapper(position *TokenPosition, bank *Bank, opts ...OptionFunc) *PositionWrapper {
	pw := &PositionWrapper{
		Position: position,
		Bank:     bank,
		clk:      clock.New(),
	}
	for _, opt := range opts {
		opt(pw)
	}
	return pw
}

// only fill the position
func FindPositionWrapper(ctx context.Context, svc MarginService, bank *Bank, account *Account, opts ...OptionFunc) (*PositionWrapper, error) {
	position, err := svc.FindPosition(ctx, account.Id, bank.TokenIndex)
	if err != nil {
		return nil, NoPositionFound
	}

	return NewPositionWrapper(position, bank, opts...), nil
}

func FindOrCreatePositionWrapper(ctx context.Context, clk clock.Clock, svc MarginService, bank *Bank, account *Account) (*PositionWrapper, error) {
	position, err := FindOrCreatePosition(ctx, clk, svc, account, bank.TokenIndex)
	if err != nil {
		return nil, err
	}

	return NewPositionWrapper(position, bank, WithClock(clk)), nil
}

type BalanceIncreaseType uint8

const (
	BalanceIncreaseTypeAny BalanceIncreaseType = iota
	BalanceIncreaseTypeRepayOnly
	BalanceIncreaseTypeDepositOnly
	BalanceIncreaseTypeBypassDepositLimit
)

func (t BalanceIncreaseType) String() string {
	switch t {
	case BalanceIncreaseTypeAny:
		return "Any"
	case BalanceIncreaseTypeRepayOnly:
		return "RepayOnly"
	case BalanceIncreaseTypeDepositOnly:
		return "DepositOnly"
	case BalanceIncreaseTypeBypassDepositLimit:
		return "BypassDepositLimit"
	default:
		return "Unknown"
	}
}

type BalanceDecreaseType uint8

const (
	BalanceDecreaseTypeAny BalanceDecreaseType = iota
	BalanceDecreaseTypeWithdrawOnly
	BalanceDecreaseTypeBorrowOnly
	BalanceDecreaseTypeBypassBorrowLimit
)

func (t BalanceDecreaseType) String() string {
	switch t {
	case BalanceDecreaseTypeAny:
		return "Any"
	case BalanceDecreaseTypeWithdrawOnly:
		return "WithdrawOnly"
	case BalanceDecreaseTypeBorrowOnly:
		return "BorrowOnly"
	case BalanceDecreaseTypeBypassBorrowLimit:
		return "BypassBorrowLimit"
	default:
		return "Unknown"
	}
}

func (pw *PositionWrapper) Deposit(log Log, amount Fixed) error {
	return pw.IncreaseBalanceInternal(log, amount, BalanceIncreaseTypeAny)
}

func (pw *PositionWrapper) Repay(log Log, amount Fixed) error {
	return pw.IncreaseBalanceInternal(log, amount, BalanceIncreaseTypeRepayOnly)
}

func (pw *PositionWrapper) Withdraw(log Log, amount Fixed) error {
	return pw.DecreaseBalanceInternal(log, amount, BalanceDecreaseTypeWithdrawOnly)
}

func (pw *PositionWrapper) Borrow(log Log, amount Fixed) error {
	return pw.DecreaseBalanceInternal(log, amount, BalanceDecreaseTypeAny)
}

// ------------ Hybrid operations for seamless repay + deposit / withdraw + borrow

func (pw *PositionWrapper) IncreaseBalance(log Log, amount Fixed) error {
	return pw.IncreaseBalanceInternal(log, amount, BalanceIncreaseTypeAny)
}

func (pw *PositionWrapper) IncreaseBalanceInLiquidation(log Log, amount Fixed) error {
	return pw.IncreaseBalanceInternal(log, amount, BalanceIncreaseTypeBypassDepositLimit)
}

func (pw *PositionWrapper) DecreaseBalanceInLiquidation(log Log, amount Fixed) error {
	return pw.DecreaseBalanceInternal(log, amount, BalanceDecreaseTypeBypassBorrowLimit)
}

// WithdrawAll empties the deposit side and closes the position. Fails when
// any borrow remains or there is nothing to withdraw.
func (pw *PositionWrapper) WithdrawAll(log Log) (Fixed, error) {
	position := pw.Position
	bank := pw.Bank

	if err := bank.AssertOperationalMode(false); err != nil {
		return Fixed{}, err
	}

	native, err := position.NativeValue(bank)
	if err != nil {
		return Fixed{}, err
	}
	if native.IsNegative() {
		return Fixed{}, IllegalPositionState
	}
	if native.IsZero() {
		return Fixed{}, NoPositionFound
	}

	log.Debug().Msgf("withdrawing all: %s", native)

	indexedDecrease, err := Fixed{}.Sub(position.IndexedValue)
	if err != nil {
		return Fixed{}, err
	}
	position.IndexedValue = Fixed{}
	if err := position.Close(pw.clk); err != nil {
		return Fixed{}, err
	}
	if err := bank.ChangeIndexedDeposits(indexedDecrease); err != nil {
		return Fixed{}, err
	}

	return native, nil
}

// RepayAll settles the borrow side in full and closes the position,
// returning the native amount owed. Fails when a deposit remains or there
// is nothing to repay.
func (pw *PositionWrapper) RepayAll(log Log) (Fixed, error) {
	position := pw.Position
	bank := pw.Bank

	if err := bank.AssertOperationalMode(false); err != nil {
		return Fixed{}, err
	}

	native, err := position.NativeValue(bank)
	if err != nil {
		return Fixed{}, err
	}
	if native.IsPositive() {
		return Fixed{}, IllegalPositionState
	}
	if native.IsZero() {
		return Fixed{}, NoPositionFound
	}

	owed, err := native.Abs()
	if err != nil {
		return Fixed{}, err
	}

	log.Debug().Msgf("repaying all: %s", owed)

	indexedDecrease := position.IndexedValue
	position.IndexedValue = Fixed{}
	if err := position.Close(pw.clk); err != nil {
		return Fixed{}, err
	}
	if err := bank.ChangeIndexedBorrows(indexedDecrease); err != nil {
		return Fixed{}, err
	}

	return owed, nil
}

// CloseBalance reclaims an empty position slot.
func (pw *PositionWrapper) CloseBalance(log Log) error {
	if !pw.Position.IndexedValue.IsZero() {
		log.Error().Msgf("position has existing balance")
		return IllegalPositionState
	}
	return pw.Position.Close(pw.clk)
}

// IncreaseBalanceInternal adds a native amount to the position: the repay
// leg settles any outstanding borrow first, the deposit leg absorbs the
// remainder. Bank totals move by the same indexed units as the position.
func (pw *PositionWrapper) IncreaseBalanceInternal(log Log, amount Fixed, operationType BalanceIncreaseType) error {
	if amount.IsNegative() {
		return errors.Wrap(InvalidConfig, "balance increase amount must be non-negative")
	}

	position := pw.Position
	bank := pw.Bank

	borrow, err := position.NativeBorrow(bank)
	if err != nil {
		return err
	}
	currentLiability, err := borrow.Abs()
	if err != nil {
		return err
	}

	liabilityDecrease := currentLiability.Min(amount)
	assetIncrease := Fixed{}
	if amount.GreaterThan(currentLiability) {
		if assetIncrease, err = amount.Sub(currentLiability); err != nil {
			return err
		}
	}

	switch operationType {
	case BalanceIncreaseTypeRepayOnly:
		if !assetIncrease.IsZero() {
			return OperationRepayOnly
		}
	case BalanceIncreaseTypeDepositOnly:
		if !liabilityDecrease.IsZero() {
			return OperationDepositOnly
		}
	default:
	}

	if err := bank.AssertOperationalMode(assetIncrease.IsPositive()); err != nil {
		return err
	}

	liabilityIndexedDecrease, err := liabilityDecrease.Div(bank.BorrowIndex)
	if err != nil {
		return err
	}
	assetIndexedIncrease, err := assetIncrease.Div(bank.DepositIndex)
	if err != nil {
		return err
	}

	// the signed indexed value is in borrow-index units while negative and
	// crosses zero exactly when the repay leg settles the borrow
	indexed, err := position.IndexedValue.Add(liabilityIndexedDecrease)
	if err != nil {
		return err
	}
	if indexed, err = indexed.Add(assetIndexedIncrease); err != nil {
		return err
	}
	position.IndexedValue = indexed
	position.LastUpdate = pw.clk.Now().Unix()

	negLiabilityIndexed, err := Fixed{}.Sub(liabilityIndexedDecrease)
	if err != nil {
		return err
	}
	if err := bank.ChangeIndexedBorrows(negLiabilityIndexed); err != nil {
		return err
	}
	if err := bank.ChangeIndexedDeposits(assetIndexedIncrease); err != nil {
		return err
	}

	return nil
}

// DecreaseBalanceInternal removes a native amount from the position: the
// withdraw leg drains the deposit first, the borrow leg covers the
// remainder.
func (pw *PositionWrapper) DecreaseBalanceInternal(log Log, amount Fixed, operationType BalanceDecreaseType) error {
	log.Info().Msgf("balance decrease: %s (type: %s)", amount, operationType)

	if amount.IsNegative() {
		return errors.Wrap(InvalidConfig, "balance decrease amount must be non-negative")
	}

	position := pw.Position
	bank := pw.Bank

	currentAsset, err := position.NativeDeposit(bank)
	if err != nil {
		return err
	}

	assetDecrease := currentAsset.Min(amount)
	liabilityIncrease := Fixed{}
	if amount.GreaterThan(currentAsset) {
		if liabilityIncrease, err = amount.Sub(currentAsset); err != nil {
			return err
		}
	}

	switch operationType {
	case BalanceDecreaseTypeWithdrawOnly:
		if !liabilityIncrease.IsZero() {
			return OperationWithdrawOnly
		}
	case BalanceDecreaseTypeBorrowOnly:
		if !assetDecrease.IsZero() {
			return OperationBorrowOnly
		}
	default:
	}

	if err := bank.AssertOperationalMode(liabilityIncrease.IsPositive()); err != nil {
		return err
	}

	assetIndexedDecrease, err := assetDecrease.Div(bank.DepositIndex)
	if err != nil {
		return err
	}
	liabilityIndexedIncrease, err := liabilityIncrease.Div(bank.BorrowIndex)
	if err != nil {
		return err
	}

	indexed, err := position.IndexedValue.Sub(assetIndexedDecrease)
	if err != nil {
		return err
	}
	if indexed, err = indexed.Sub(liabilityIndexedIncrease); err != nil {
		return err
	}
	position.IndexedValue = indexed
	position.LastUpdate = pw.clk.Now().Unix()

	negAssetIndexed, err := Fixed{}.Sub(assetIndexedDecrease)
	if err != nil {
		return err
	}
	if err := bank.ChangeIndexedDeposits(negAssetIndexed); err != nil {
		return err
	}
	if err := bank.ChangeIndexedBorrows(liabilityIndexedIncrease); err != nil {
		return err
	}

	return nil
}
