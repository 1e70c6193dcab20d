package core

import (
	"context"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
)

type (
	BankStore interface {
		CreateBank(ctx context.Context, bank *Bank) error
		UpsertBank(ctx context.Context, bank *Bank) error
		GetBankByTokenIndex(ctx context.Context, groupId uuid.UUID, tokenIndex uint16) (*Bank, error)
		ListBanksByGroupId(ctx context.Context, groupId uuid.UUID) ([]*Bank, error)
		UpdateBankConfig(ctx context.Context, groupId uuid.UUID, tokenIndex uint16, bankConfig *BankConfig) error
	}

	// Bank holds the per-asset accrual state and risk parameters. Identity
	// (group, token index, mint) is immutable; the accrual indices grow
	// monotonically under AccrueInterest. Oracle prices are supplied per
	// query, never stored here.
	Bank struct {
		GroupId    uuid.UUID `json:"groupId" gorm:"primaryKey;type:text"`
		TokenIndex uint16    `json:"tokenIndex" gorm:"primaryKey"`
		Name       string    `json:"name"`
		MintId     string    `json:"mintId"`

		DepositIndex Fixed `json:"depositIndex"`
		BorrowIndex  Fixed `json:"borrowIndex"`

		IndexedTotalDeposits Fixed `json:"indexedTotalDeposits"`
		IndexedTotalBorrows  Fixed `json:"indexedTotalBorrows"`

		BankConfig `json:"bankConfig" gorm:"embedded"`

		// Reserved carries the on-chain record's unused tail, preserved as
		// opaque padding and never interpreted.
		Reserved []byte `json:"-"`

		CreatedAt  int64 `json:"createdAt"`
		LastUpdate int64 `json:"lastUpdate"`
	}

	BankConfig struct {
		AssetWeightInit  Fixed `json:"assetWeightInit"`
		AssetWeightMaint Fixed `json:"assetWeightMaint"`

		LiabilityWeightInit  Fixed `json:"liabilityWeightInit"`
		LiabilityWeightMaint Fixed `json:"liabilityWeightMaint"`

		LiquidationFee Fixed `json:"liquidationFee"`

		InterestRateConfig `json:"interestRateConfig" gorm:"embedded"`

		OperationalState BankOperationalState `json:"operationalState"`

		OracleMaxAge int64 `json:"oracleMaxAge"`
	}

	InterestRateConfig struct {
		OptimalUtilizationRate Fixed `json:"optimalUtilizationRate"`
		PlateauInterestRate    Fixed `json:"plateauInterestRate"`
		MaxInterestRate        Fixed `json:"maxInterestRate"`
	}
)

type BankOperationalState uint8

const (
	BankOperationalStatePaused BankOperationalState = iota
	BankOperationalStateOperational
	BankOperationalStateReduceOnly
)

func (bos BankOperationalState) String() string {
	switch bos {
	case BankOperationalStatePaused:
		return "Paused"
	case BankOperationalStateOperational:
		return "Operational"
	case BankOperationalStateReduceOnly:
		return "Reduce Only"
	default:
		return "Unknown"
	}
}

type BalanceSide uint8

const (
	BalanceSideAssets BalanceSide = iota
	BalanceSideLiabilities
	BalanceSideEmpty
)

func (bs BalanceSide) String() string {
	switch bs {
	case BalanceSideAssets:
		return "Assets"
	case BalanceSideLiabilities:
		return "Liabilities"
	case BalanceSideEmpty:
		return "Empty"
	default:
		return "Unknown"
	}
}

func NewBank(clk clock.Clock, groupId uuid.UUID, tokenIndex uint16, name string, mintId string, bankConfig BankConfig) *Bank {
	return NewBankWithCreateTime(groupId, tokenIndex, name, mintId, bankConfig, clk.Now())
}

func NewBankWithCreateTime(groupId uuid.UUID, tokenIndex uint16, name string, mintId string, bankConfig BankConfig, createTime time.Time) *Bank {
	return &Bank{
		GroupId:              groupId,
		TokenIndex:           tokenIndex,
		Name:                 name,
		MintId:               mintId,
		DepositIndex:         ONE,
		BorrowIndex:          ONE,
		IndexedTotalDeposits: Fixed{},
		IndexedTotalBorrows:  Fixed{},
		BankConfig:           bankConfig,
		CreatedAt:            createTime.Unix(),
		LastUpdate:           createTime.Unix(),
	}
}

func (b *Bank) Clone() *Bank {
	clone := *b
	if b.Reserved != nil {
		clone.Reserved = append([]byte(nil), b.Reserved...)
	}
	return &clone
}

// GetWeights returns the (assetWeight, liabilityWeight) column selected by
// the requirement type.
func (bc *BankConfig) GetWeights(requirementType RequirementType) (Fixed, Fixed) {
	switch requirementType {
	case Initial:
		return bc.AssetWeightInit, bc.LiabilityWeightInit
	case Maintenance:
		return bc.AssetWeightMaint, bc.LiabilityWeightMaint
	case Equity:
		return ONE, ONE
	default:
		return Fixed{}, Fixed{}
	}
}

func (bc *BankConfig) GetWeight(requirementType RequirementType, balanceSide BalanceSide) Fixed {
	assetWeight, liabilityWeight := bc.GetWeights(requirementType)
	switch balanceSide {
	case BalanceSideAssets:
		return assetWeight
	case BalanceSideLiabilities:
		return liabilityWeight
	default:
		return Fixed{}
	}
}

func (bc *BankConfig) Validate() error {
	assetInitW := bc.AssetWeightInit
	assetMaintW := bc.AssetWeightMaint

	if !(assetInitW.GreaterThanOrEqual(Fixed{}) && assetInitW.LessThanOrEqual(ONE)) {
		return InvalidConfig
	}
	if !assetMaintW.GreaterThanOrEqual(assetInitW) || assetMaintW.GreaterThan(ONE) {
		return InvalidConfig
	}

	liabInitW := bc.LiabilityWeightInit
	liabMaintW := bc.LiabilityWeightMaint
	if liabInitW.LessThan(ONE) {
		return InvalidConfig
	}
	if liabMaintW.GreaterThan(liabInitW) || liabMaintW.LessThan(ONE) {
		return InvalidConfig
	}

	if bc.LiquidationFee.IsNegative() {
		return InvalidConfig
	}

	return bc.InterestRateConfig.Validate()
}

func (i *InterestRateConfig) Validate() error {
	optimalUr := i.OptimalUtilizationRate
	plateauIr := i.PlateauInterestRate
	maxIr := i.MaxInterestRate

	if optimalUr.LessThanOrEqual(Fixed{}) || optimalUr.GreaterThanOrEqual(ONE) {
		return InvalidConfig
	}
	if plateauIr.LessThanOrEqual(Fixed{}) {
		return InvalidConfig
	}
	if maxIr.LessThanOrEqual(Fixed{}) {
		return InvalidConfig
	}
	if plateauIr.GreaterThanOrEqual(maxIr) {
		return InvalidConfig
	}
	return nil
}

// InterestRateCurve maps a utilization ratio onto a borrow base rate: linear
// up to the optimal utilization, then linear to the max rate at full
// utilization.
func (i *InterestRateConfig) InterestRateCurve(utilizationRatio Fixed) (Fixed, error) {
	optimalUr := i.OptimalUtilizationRate
	plateauIr := i.PlateauInterestRate
	maxIr := i.MaxInterestRate

	if utilizationRatio.LessThanOrEqual(optimalUr) {
		// ur / optimal_ur * plateau_ir
		scaled, err := utilizationRatio.Mul(plateauIr)
		if err != nil {
			return Fixed{}, err
		}
		return scaled.Div(optimalUr)
	}

	// (ur - optimal_ur) / (1 - optimal_ur) * (max_ir - plateau_ir) + plateau_ir
	oneMinusOptimalUr, err := ONE.Sub(optimalUr)
	if err != nil {
		return Fixed{}, err
	}
	maxIrMinusPlateau, err := maxIr.Sub(plateauIr)
	if err != nil {
		return Fixed{}, err
	}
	urMinusOptimal, err := utilizationRatio.Sub(optimalUr)
	if err != nil {
		return Fixed{}, err
	}
	slope, err := urMinusOptimal.Div(oneMinusOptimalUr)
	if err != nil {
		return Fixed{}, err
	}
	scaled, err := slope.Mul(maxIrMinusPlateau)
	if err != nil {
		return Fixed{}, err
	}
	return scaled.Add(plateauIr)
}

// CalcInterestRate returns the (lendingRate, borrowingRate) pair for a
// utilization ratio. Lending accrues the base rate scaled by utilization so
// that deposit interest never exceeds borrow interest collected.
func (i *InterestRateConfig) CalcInterestRate(utilizationRatio Fixed) (Fixed, Fixed, error) {
	baseRate, err := i.InterestRateCurve(utilizationRatio)
	if err != nil {
		return Fixed{}, Fixed{}, err
	}
	lendingRate, err := baseRate.Mul(utilizationRatio)
	if err != nil {
		return Fixed{}, Fixed{}, err
	}
	if lendingRate.IsNegative() || baseRate.IsNegative() {
		return Fixed{}, Fixed{}, ErrNegativeInterestRate
	}
	return lendingRate, baseRate, nil
}

// NativeTotalDeposits returns the bank-wide deposits in native units,
// including accrued interest.
func (b *Bank) NativeTotalDeposits() (Fixed, error) {
	return b.IndexedTotalDeposits.Mul(b.DepositIndex)
}

// NativeTotalBorrows returns the bank-wide borrows in native units,
// including accrued interest.
func (b *Bank) NativeTotalBorrows() (Fixed, error) {
	return b.IndexedTotalBorrows.Mul(b.BorrowIndex)
}

func (b *Bank) ComputeUtilizationRate() (Fixed, error) {
	totalDeposits, err := b.NativeTotalDeposits()
	if err != nil {
		return Fixed{}, err
	}
	if totalDeposits.IsZero() {
		return Fixed{}, nil
	}
	totalBorrows, err := b.NativeTotalBorrows()
	if err != nil {
		return Fixed{}, err
	}
	return totalBorrows.Div(totalDeposits)
}

// AccrueInterest advances both accrual indices to currentTimestamp. The
// indices are monotonically non-decreasing: rates are validated non-negative
// and the elapsed period is clamped at zero.
func (b *Bank) AccrueInterest(log Log, currentTimestamp int64) error {
	timeDelta := currentTimestamp - b.LastUpdate
	if timeDelta <= 0 {
		return nil
	}
	b.LastUpdate = currentTimestamp

	if b.IndexedTotalDeposits.IsZero() || b.IndexedTotalBorrows.IsZero() {
		return nil
	}

	utilizationRate, err := b.ComputeUtilizationRate()
	if err != nil {
		return err
	}
	lendingRate, borrowingRate, err := b.InterestRateConfig.CalcInterestRate(utilizationRate)
	if err != nil {
		return err
	}

	log.Info().Msgf("bank %d accrual: timeDelta: %d, utilizationRate: %s, lendingRate: %s, borrowingRate: %s",
		b.TokenIndex, timeDelta, utilizationRate, lendingRate, borrowingRate)

	depositIndex, err := accrueIndex(b.DepositIndex, lendingRate, timeDelta)
	if err != nil {
		return err
	}
	borrowIndex, err := accrueIndex(b.BorrowIndex, borrowingRate, timeDelta)
	if err != nil {
		return err
	}

	b.DepositIndex = depositIndex
	b.BorrowIndex = borrowIndex
	return nil
}

// accrueIndex computes index * (1 + rate * dt / secondsPerYear).
func accrueIndex(index Fixed, rate Fixed, timeDelta int64) (Fixed, error) {
	scaled, err := rate.Mul(NewFixedFromInt(timeDelta))
	if err != nil {
		return Fixed{}, err
	}
	ratePerPeriod, err := scaled.Div(NewFixedFromInt(SECONDS_PER_YEAR))
	if err != nil {
		return Fixed{}, err
	}
	growth, err := ONE.Add(ratePerPeriod)
	if err != nil {
		return Fixed{}, err
	}
	return index.Mul(growth)
}

func (b *Bank) AssertOperationalMode(isAssetOrLiabilityAmountIncreasing bool) error {
	switch b.BankConfig.OperationalState {
	case BankOperationalStatePaused:
		return BankPaused
	case BankOperationalStateReduceOnly:
		if isAssetOrLiabilityAmountIncreasing {
			return BankReduceOnly
		}
		return nil
	default:
		return nil
	}
}

// ChangeIndexedDeposits adjusts the bank-wide indexed deposit total by delta
// indexed units.
func (b *Bank) ChangeIndexedDeposits(delta Fixed) error {
	total, err := b.IndexedTotalDeposits.Add(delta)
	if err != nil {
		return err
	}
	if total.IsNegative() {
		return IllegalPositionState
	}
	b.IndexedTotalDeposits = total
	return nil
}

// ChangeIndexedBorrows adjusts the bank-wide indexed borrow total by delta
// indexed units.
func (b *Bank) ChangeIndexedBorrows(delta Fixed) error {
	total, err := b.IndexedTotalBorrows.Add(delta)
	if err != nil {
		return err
	}
	if total.IsNegative() {
		return IllegalPositionState
	}
	b.IndexedTotalBorrows = total
	return nil
}
