package core

import (
	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
)

type LiquidationBalances struct {
	LiquidatorAssetPosition     *TokenPosition `json:"liquidatorAssetPosition"`
	LiquidatorLiabilityPosition *TokenPosition `json:"liquidatorLiabilityPosition"`
	LiquidateeAssetPosition     *TokenPosition `json:"liquidateeAssetPosition"`
	LiquidateeLiabilityPosition *TokenPosition `json:"liquidateeLiabilityPosition"`
}

type LiquidateResult struct {
	PreBalances          *LiquidationBalances `json:"preBalances"`
	PostBalances         *LiquidationBalances `json:"postBalances"`
	LiquidateePreHealth  Fixed                `json:"liquidateePreHealth"`
	LiquidateePostHealth Fixed                `json:"liquidateePostHealth"`

	AssetBank     *Bank `json:"assetBank"`
	LiabilityBank *Bank `json:"liabilityBank"`

	RepaidAmount Fixed `json:"repaidAmount"`
	SeizedAmount Fixed `json:"seizedAmount"`
}

// CheckPreLiquidationCondition verifies the account is eligible for
// liquidation against the named liability token: the position must be
// borrow-side and maintenance health must be at or below zero. Returns the
// pre-liquidation health for the post check.
func (e *RiskEngine) CheckPreLiquidationCondition(liabilityIndex uint16) (Fixed, error) {
	position, ok := e.Account.FindToken(liabilityIndex)
	if !ok {
		return Fixed{}, NoPositionFound
	}
	if position.Side() != BalanceSideLiabilities {
		return Fixed{}, IllegalLiquidation
	}

	health, err := e.Health(Maintenance)
	if err != nil {
		return Fixed{}, err
	}
	if health.IsPositive() {
		return Fixed{}, ErrAccountNotUnhealthy
	}
	return health, nil
}

// CheckPostLiquidationCondition verifies the liquidation was neither
// pointless nor excessive: the position must not have flipped to the asset
// side, health must have strictly improved, and the account must
// still be at or below the maintenance requirement. Repaying past the
// requirement would seize more collateral than the deficit justifies.
func (e *RiskEngine) CheckPostLiquidationCondition(liabilityIndex uint16, preLiquidationHealth Fixed) (Fixed, error) {
	position, ok := e.Account.FindToken(liabilityIndex)
	if !ok {
		return Fixed{}, NoPositionFound
	}
	if position.Side() == BalanceSideAssets {
		return Fixed{}, IllegalLiquidation
	}

	health, err := e.Health(Maintenance)
	if err != nil {
		return Fixed{}, err
	}
	if health.IsPositive() {
		return Fixed{}, ErrAccountNotUnhealthy
	}
	if !health.GreaterThan(preLiquidationHealth) {
		return Fixed{}, IllegalLiquidation
	}
	return health, nil
}

// MaxLiquidatableLiability returns the native amount of the liability token
// that restores maintenance health to exactly zero, capped at the amount
// owed. Each repaid unit of quote value removes liabilityWeight of
// liability and hands the liquidator (1 + liquidationFee) of collateral
// value, so health per repaid unit improves by
// liabilityWeight - assetWeight*(1+fee).
func (e *RiskEngine) MaxLiquidatableLiability(assetIndex, liabilityIndex uint16) (Fixed, error) {
	health, err := e.Health(Maintenance)
	if err != nil {
		return Fixed{}, err
	}
	if health.IsPositive() {
		return Fixed{}, ErrAccountNotUnhealthy
	}

	assetBank, err := e.Group.GetBank(assetIndex)
	if err != nil {
		return Fixed{}, err
	}
	liabilityBank, err := e.Group.GetBank(liabilityIndex)
	if err != nil {
		return Fixed{}, err
	}
	liabilityPrice, err := e.Prices.Price(liabilityIndex)
	if err != nil {
		return Fixed{}, err
	}
	if liabilityPrice.IsZero() {
		return Fixed{}, ErrUndefined
	}

	assetWeight := assetBank.GetWeight(Maintenance, BalanceSideAssets)
	liabilityWeight := liabilityBank.GetWeight(Maintenance, BalanceSideLiabilities)

	feeMultiplier, err := ONE.Add(liabilityBank.LiquidationFee)
	if err != nil {
		return Fixed{}, err
	}
	seizedWeight, err := assetWeight.Mul(feeMultiplier)
	if err != nil {
		return Fixed{}, err
	}
	healthGainPerUnit, err := liabilityWeight.Sub(seizedWeight)
	if err != nil {
		return Fixed{}, err
	}
	if !healthGainPerUnit.IsPositive() {
		// repaying this pair can never improve health
		return Fixed{}, ErrUndefined
	}

	deficit, err := health.Abs()
	if err != nil {
		return Fixed{}, err
	}
	repayValue, err := deficit.Div(healthGainPerUnit)
	if err != nil {
		return Fixed{}, err
	}

	owedValue := Fixed{}
	if position, ok := e.Account.FindToken(liabilityIndex); ok {
		borrow, err := position.NativeBorrow(liabilityBank)
		if err != nil {
			return Fixed{}, err
		}
		owed, err := borrow.Abs()
		if err != nil {
			return Fixed{}, err
		}
		if owedValue, err = owed.Mul(liabilityPrice); err != nil {
			return Fixed{}, err
		}
	}

	return repayValue.Min(owedValue).Div(liabilityPrice)
}

// Liquidate repays part of the liquidatee's borrow in the liability token
// out of the liquidator's balance and moves the matching collateral value,
// grossed up by the liquidation fee, from the liquidatee to the liquidator.
// The pre and post condition checks bound the transfer on both sides.
func Liquidate(log Log, clk clock.Clock, group *Group, prices PriceSource,
	liquidator, liquidatee *Account, assetIndex, liabilityIndex uint16, repayAmount Fixed) (*LiquidateResult, error) {

	if liquidator.Id == liquidatee.Id {
		return nil, errors.Wrap(IllegalLiquidation, "account cannot liquidate itself")
	}
	if !repayAmount.IsPositive() {
		return nil, errors.Wrap(IllegalLiquidation, "repay amount must be positive")
	}

	assetBank, err := group.GetBank(assetIndex)
	if err != nil {
		return nil, err
	}
	liabilityBank, err := group.GetBank(liabilityIndex)
	if err != nil {
		return nil, err
	}
	assetPrice, err := prices.Price(assetIndex)
	if err != nil {
		return nil, err
	}
	liabilityPrice, err := prices.Price(liabilityIndex)
	if err != nil {
		return nil, err
	}
	if assetPrice.IsZero() {
		return nil, errors.Wrap(IllegalLiquidation, "seized asset has no value")
	}

	preEngine, err := NewRiskEngine(liquidatee, group, prices)
	if err != nil {
		return nil, err
	}
	preHealth, err := preEngine.CheckPreLiquidationCondition(liabilityIndex)
	if err != nil {
		return nil, err
	}

	maxRepay, err := preEngine.MaxLiquidatableLiability(assetIndex, liabilityIndex)
	if err != nil {
		return nil, err
	}
	if repayAmount.GreaterThan(maxRepay) {
		return nil, errors.Wrap(IllegalLiquidation, "repay amount exceeds liquidatable liability")
	}

	// collateral seized = repaid value grossed up by the fee
	repayValue, err := repayAmount.Mul(liabilityPrice)
	if err != nil {
		return nil, err
	}
	feeMultiplier, err := ONE.Add(liabilityBank.LiquidationFee)
	if err != nil {
		return nil, err
	}
	seizedValue, err := repayValue.Mul(feeMultiplier)
	if err != nil {
		return nil, err
	}
	seizedAmount, err := seizedValue.Div(assetPrice)
	if err != nil {
		return nil, err
	}

	liquidateeAsset := NewPositionWrapper(liquidatee.EnsureToken(assetIndex), assetBank, WithClock(clk))
	liquidateeLiability := NewPositionWrapper(liquidatee.EnsureToken(liabilityIndex), liabilityBank, WithClock(clk))
	liquidatorAsset := NewPositionWrapper(liquidator.EnsureToken(assetIndex), assetBank, WithClock(clk))
	liquidatorLiability := NewPositionWrapper(liquidator.EnsureToken(liabilityIndex), liabilityBank, WithClock(clk))

	preBalances := &LiquidationBalances{
		LiquidatorAssetPosition:     liquidatorAsset.Position.Clone(),
		LiquidatorLiabilityPosition: liquidatorLiability.Position.Clone(),
		LiquidateeAssetPosition:     liquidateeAsset.Position.Clone(),
		LiquidateeLiabilityPosition: liquidateeLiability.Position.Clone(),
	}

	if err := liquidateeAsset.DecreaseBalanceInLiquidation(log, seizedAmount); err != nil {
		return nil, err
	}
	if err := liquidatorAsset.IncreaseBalanceInLiquidation(log, seizedAmount); err != nil {
		return nil, err
	}
	if err := liquidatorLiability.DecreaseBalanceInLiquidation(log, repayAmount); err != nil {
		return nil, err
	}
	if err := liquidateeLiability.IncreaseBalanceInLiquidation(log, repayAmount); err != nil {
		return nil, err
	}

	postEngine, err := NewRiskEngine(liquidatee, group, prices)
	if err != nil {
		return nil, err
	}
	postHealth, err := postEngine.CheckPostLiquidationCondition(liabilityIndex, preHealth)
	if err != nil {
		return nil, err
	}

	log.Info().Msgf("liquidation: repaid %s of token %d, seized %s of token %d, health %s -> %s",
		repayAmount, liabilityIndex, seizedAmount, assetIndex, preHealth, postHealth)

	return &LiquidateResult{
		PreBalances: preBalances,
		PostBalances: &LiquidationBalances{
			LiquidatorAssetPosition:     liquidatorAsset.Position.Clone(),
			LiquidatorLiabilityPosition: liquidatorLiability.Position.Clone(),
			LiquidateeAssetPosition:     liquidateeAsset.Position.Clone(),
			LiquidateeLiabilityPosition: liquidateeLiability.Position.Clone(),
		},
		LiquidateePreHealth:  preHealth,
		LiquidateePostHealth: postHealth,
		AssetBank:            assetBank,
		LiabilityBank:        liabilityBank,
		RepaidAmount:         repayAmount,
		SeizedAmount:         seizedAmount,
	}, nil
}
