package core

import "github.com/pkg/errors"

type (
	// RiskEngine evaluates one account against one registry and price
	// snapshot. Construction resolves every position and auxiliary
	// contribution to its bank and price up front, so an unregistered token
	// index fails the whole engine rather than being silently skipped — a
	// skipped liability would overstate health.
	//
	// The engine is a read-only projection: no entry point mutates the
	// account, the banks, or the prices. Snapshot consistency is the
	// caller's concern; queries against the same snapshot may run in
	// parallel without coordination.
	RiskEngine struct {
		Account *Account
		Group   *Group
		Prices  PriceSource

		entries []positionEntry
		aux     []auxEntry
	}

	positionEntry struct {
		Position *TokenPosition
		Bank     *Bank
		Price    Fixed
	}

	auxEntry struct {
		Bank  *Bank
		Value Fixed
	}

	// TokenDelta is a hypothetical native-amount adjustment for what-if
	// health checks.
	TokenDelta struct {
		TokenIndex  uint16 `json:"tokenIndex"`
		NativeDelta Fixed  `json:"nativeDelta"`
	}
)

func NewRiskEngine(account *Account, group *Group, prices PriceSource) (*RiskEngine, error) {
	engine := &RiskEngine{
		Account: account,
		Group:   group,
		Prices:  prices,
	}

	for _, position := range account.Positions {
		if !position.Active {
			continue
		}
		bank, err := group.GetBank(position.TokenIndex)
		if err != nil {
			return nil, err
		}
		price, err := prices.Price(position.TokenIndex)
		if err != nil {
			return nil, err
		}
		engine.entries = append(engine.entries, positionEntry{
			Position: position,
			Bank:     bank,
			Price:    price,
		})
	}

	for _, contribution := range account.Aux {
		bank, err := group.GetBank(contribution.TokenIndex)
		if err != nil {
			return nil, err
		}
		engine.aux = append(engine.aux, auxEntry{
			Bank:  bank,
			Value: contribution.Value,
		})
	}

	return engine, nil
}

// weightedValues returns the entry's contribution to (assets, liabilities)
// under the requirement type. Deposits contribute native * price *
// assetWeight, borrows contribute |native| * price * liabilityWeight.
func (entry *positionEntry) weightedValues(requirementType RequirementType) (Fixed, Fixed, error) {
	native, err := entry.Position.NativeValue(entry.Bank)
	if err != nil {
		return Fixed{}, Fixed{}, err
	}
	if native.IsZero() {
		return Fixed{}, Fixed{}, nil
	}

	assetWeight, liabilityWeight := entry.Bank.GetWeights(requirementType)

	if native.IsNegative() {
		borrowed, err := native.Abs()
		if err != nil {
			return Fixed{}, Fixed{}, err
		}
		value, err := borrowed.Mul(entry.Price)
		if err != nil {
			return Fixed{}, Fixed{}, err
		}
		liabs, err := value.Mul(liabilityWeight)
		if err != nil {
			return Fixed{}, Fixed{}, err
		}
		return Fixed{}, liabs, nil
	}

	value, err := native.Mul(entry.Price)
	if err != nil {
		return Fixed{}, Fixed{}, err
	}
	assets, err := value.Mul(assetWeight)
	if err != nil {
		return Fixed{}, Fixed{}, err
	}
	return assets, Fixed{}, nil
}

// weightedValues splits an auxiliary contribution by sign and applies the
// referenced bank's weight class. The value is already quote-denominated;
// no price is applied.
func (entry *auxEntry) weightedValues(requirementType RequirementType) (Fixed, Fixed, error) {
	if entry.Value.IsZero() {
		return Fixed{}, Fixed{}, nil
	}

	assetWeight, liabilityWeight := entry.Bank.GetWeights(requirementType)

	if entry.Value.IsNegative() {
		magnitude, err := entry.Value.Abs()
		if err != nil {
			return Fixed{}, Fixed{}, err
		}
		liabs, err := magnitude.Mul(liabilityWeight)
		if err != nil {
			return Fixed{}, Fixed{}, err
		}
		return Fixed{}, liabs, nil
	}

	assets, err := entry.Value.Mul(assetWeight)
	if err != nil {
		return Fixed{}, Fixed{}, err
	}
	return assets, Fixed{}, nil
}

// HealthComponents returns the weighted (assets, liabilities) totals for
// the requirement type.
func (e *RiskEngine) HealthComponents(requirementType RequirementType) (Fixed, Fixed, error) {
	totalAssets := Fixed{}
	totalLiabilities := Fixed{}

	for i := range e.entries {
		assets, liabs, err := e.entries[i].weightedValues(requirementType)
		if err != nil {
			return Fixed{}, Fixed{}, err
		}
		if totalAssets, err = totalAssets.Add(assets); err != nil {
			return Fixed{}, Fixed{}, err
		}
		if totalLiabilities, err = totalLiabilities.Add(liabs); err != nil {
			return Fixed{}, Fixed{}, err
		}
	}

	for i := range e.aux {
		assets, liabs, err := e.aux[i].weightedValues(requirementType)
		if err != nil {
			return Fixed{}, Fixed{}, err
		}
		if totalAssets, err = totalAssets.Add(assets); err != nil {
			return Fixed{}, Fixed{}, err
		}
		if totalLiabilities, err = totalLiabilities.Add(liabs); err != nil {
			return Fixed{}, Fixed{}, err
		}
	}

	return totalAssets, totalLiabilities, nil
}

func (e *RiskEngine) AssetsValue(requirementType RequirementType) (Fixed, error) {
	assets, _, err := e.HealthComponents(requirementType)
	return assets, err
}

func (e *RiskEngine) LiabsValue(requirementType RequirementType) (Fixed, error) {
	_, liabs, err := e.HealthComponents(requirementType)
	return liabs, err
}

// Health is weighted assets value minus weighted liabilities value. A
// non-negative result satisfies the regime's requirement; a negative one
// makes the account ineligible for new risk under Initial and liquidatable
// under Maintenance.
func (e *RiskEngine) Health(requirementType RequirementType) (Fixed, error) {
	assets, liabs, err := e.HealthComponents(requirementType)
	if err != nil {
		return Fixed{}, err
	}
	return assets.Sub(liabs)
}

// Equity is the unweighted net value of the account: both sides at weight 1
// regardless of regime.
func (e *RiskEngine) Equity() (Fixed, error) {
	return e.Health(Equity)
}

// HealthRatio normalizes health as a percentage of weighted assets value.
// With no weighted assets and non-negative health it returns the
// MaxHealthRatio sentinel; with no weighted assets and negative health
// (possible only through auxiliary contributions) the ratio has no finite
// well-formed answer.
func (e *RiskEngine) HealthRatio(requirementType RequirementType) (Fixed, error) {
	assets, liabs, err := e.HealthComponents(requirementType)
	if err != nil {
		return Fixed{}, err
	}
	health, err := assets.Sub(liabs)
	if err != nil {
		return Fixed{}, err
	}

	if assets.IsZero() {
		if health.IsNegative() {
			return Fixed{}, ErrUndefined
		}
		return MaxHealthRatio, nil
	}

	scaled, err := health.Mul(HUNDRED)
	if err != nil {
		return Fixed{}, err
	}
	return scaled.Div(assets)
}

// CheckAccountHealth fails when the account does not satisfy the regime's
// requirement.
func (e *RiskEngine) CheckAccountHealth(requirementType RequirementType) error {
	health, err := e.Health(requirementType)
	if err != nil {
		return err
	}
	if health.IsNegative() {
		return RiskEngineInitRejected
	}
	return nil
}

// MaxWithdrawWithBorrow returns the largest native amount of the token that
// can be removed, borrowing once the deposit is exhausted, while health
// under the requirement type stays at or above zero. Health is linear in
// the withdrawal on each side of the sign crossing, so the root is solved
// directly from the two per-unit sensitivities — no iteration.
func (e *RiskEngine) MaxWithdrawWithBorrow(requirementType RequirementType, tokenIndex uint16) (Fixed, error) {
	health, err := e.Health(requirementType)
	if err != nil {
		return Fixed{}, err
	}
	if !health.IsPositive() {
		return Fixed{}, nil
	}

	bank, err := e.Group.GetBank(tokenIndex)
	if err != nil {
		return Fixed{}, err
	}
	price, err := e.Prices.Price(tokenIndex)
	if err != nil {
		return Fixed{}, err
	}
	if price.IsZero() {
		// removing a zero-priced asset never reduces health
		return Fixed{}, ErrUndefined
	}

	assetWeight, liabilityWeight := bank.GetWeights(requirementType)

	deposit := Fixed{}
	if position, ok := e.Account.FindToken(tokenIndex); ok {
		deposit, err = position.NativeDeposit(bank)
		if err != nil {
			return Fixed{}, err
		}
	}

	// health lost per native unit while a deposit remains
	assetRate, err := price.Mul(assetWeight)
	if err != nil {
		return Fixed{}, err
	}
	depositCost, err := deposit.Mul(assetRate)
	if err != nil {
		return Fixed{}, err
	}

	if assetRate.IsPositive() && depositCost.GreaterThanOrEqual(health) {
		return health.Div(assetRate)
	}

	// the whole deposit comes out; the remainder is borrowed
	remaining, err := health.Sub(depositCost)
	if err != nil {
		return Fixed{}, err
	}
	liabilityRate, err := price.Mul(liabilityWeight)
	if err != nil {
		return Fixed{}, err
	}
	borrow, err := remaining.Div(liabilityRate)
	if err != nil {
		return Fixed{}, err
	}
	return deposit.Add(borrow)
}

// MaxSourceForTokenSwap returns the largest native amount of the source
// token convertible into the target token, at the oracle price ratio
// degraded by the slippage multiplier, while health under the requirement
// type stays at or above zero.
//
// Health is piecewise linear in the swapped amount with at most two sign
// crossings (source deposit exhausted, target borrow repaid), and each
// crossing only steepens the loss, so the segments are walked in order and
// the root taken from the first segment that drains the remaining health.
func (e *RiskEngine) MaxSourceForTokenSwap(requirementType RequirementType, sourceIndex, targetIndex uint16, slippage Fixed) (Fixed, error) {
	if sourceIndex == targetIndex {
		return Fixed{}, errors.Wrap(InvalidConfig, "swap source and target are the same token")
	}
	if !slippage.IsPositive() || slippage.GreaterThan(ONE) {
		return Fixed{}, errors.Wrap(InvalidConfig, "slippage multiplier must be in (0, 1]")
	}

	health, err := e.Health(requirementType)
	if err != nil {
		return Fixed{}, err
	}
	if !health.IsPositive() {
		return Fixed{}, nil
	}

	sourceBank, err := e.Group.GetBank(sourceIndex)
	if err != nil {
		return Fixed{}, err
	}
	targetBank, err := e.Group.GetBank(targetIndex)
	if err != nil {
		return Fixed{}, err
	}
	sourcePrice, err := e.Prices.Price(sourceIndex)
	if err != nil {
		return Fixed{}, err
	}
	targetPrice, err := e.Prices.Price(targetIndex)
	if err != nil {
		return Fixed{}, err
	}
	if sourcePrice.IsZero() {
		// selling a zero-priced asset never costs health
		return Fixed{}, ErrUndefined
	}

	sourceAssetW, sourceLiabW := sourceBank.GetWeights(requirementType)
	targetAssetW, targetLiabW := targetBank.GetWeights(requirementType)

	// quote value moved per native unit of source sold
	outValue := sourcePrice
	inValue, err := sourcePrice.Mul(slippage)
	if err != nil {
		return Fixed{}, err
	}

	// breakpoint where the source deposit is exhausted
	sourceFlip := Fixed{}
	if position, ok := e.Account.FindToken(sourceIndex); ok {
		sourceFlip, err = position.NativeDeposit(sourceBank)
		if err != nil {
			return Fixed{}, err
		}
	}

	// breakpoint where the target borrow is fully repaid; a zero target
	// price leaves the target side worthless on both sides of zero
	targetFlip := Fixed{}
	targetValueless := targetPrice.IsZero()
	if !targetValueless {
		if position, ok := e.Account.FindToken(targetIndex); ok {
			borrow, err := position.NativeBorrow(targetBank)
			if err != nil {
				return Fixed{}, err
			}
			borrowAbs, err := borrow.Abs()
			if err != nil {
				return Fixed{}, err
			}
			owedValue, err := borrowAbs.Mul(targetPrice)
			if err != nil {
				return Fixed{}, err
			}
			targetFlip, err = owedValue.Div(inValue)
			if err != nil {
				return Fixed{}, err
			}
		}
	}

	slopeAt := func(amount Fixed) (Fixed, error) {
		outWeight := sourceLiabW
		if amount.LessThan(sourceFlip) {
			outWeight = sourceAssetW
		}
		cost, err := outValue.Mul(outWeight)
		if err != nil {
			return Fixed{}, err
		}

		gain := Fixed{}
		if !targetValueless {
			inWeight := targetAssetW
			if amount.LessThan(targetFlip) {
				inWeight = targetLiabW
			}
			gain, err = inValue.Mul(inWeight)
			if err != nil {
				return Fixed{}, err
			}
		}
		return gain.Sub(cost)
	}

	breakpoints := []Fixed{sourceFlip.Min(targetFlip), sourceFlip.Max(targetFlip)}

	amount := Fixed{}
	remaining := health
	for _, end := range breakpoints {
		if !end.GreaterThan(amount) {
			continue
		}
		slope, err := slopeAt(amount)
		if err != nil {
			return Fixed{}, err
		}
		span, err := end.Sub(amount)
		if err != nil {
			return Fixed{}, err
		}
		// a positive-slope segment (repaying an expensive borrow with
		// cheaper collateral) adds to the health budget
		segmentDelta, err := span.Mul(slope)
		if err != nil {
			return Fixed{}, err
		}
		if slope.IsNegative() {
			loss, err := segmentDelta.Abs()
			if err != nil {
				return Fixed{}, err
			}
			if loss.GreaterThanOrEqual(remaining) {
				rate, err := slope.Abs()
				if err != nil {
					return Fixed{}, err
				}
				extra, err := remaining.Div(rate)
				if err != nil {
					return Fixed{}, err
				}
				return amount.Add(extra)
			}
		}
		if remaining, err = remaining.Add(segmentDelta); err != nil {
			return Fixed{}, err
		}
		amount = end
	}

	slope, err := slopeAt(amount)
	if err != nil {
		return Fixed{}, err
	}
	if !slope.IsNegative() {
		// health never decreases past the last breakpoint
		return Fixed{}, ErrUndefined
	}
	loss, err := slope.Abs()
	if err != nil {
		return Fixed{}, err
	}
	extra, err := remaining.Div(loss)
	if err != nil {
		return Fixed{}, err
	}
	return amount.Add(extra)
}

// SimulateHealth applies hypothetical native deltas to a scratch copy of
// the account and returns its health. The evaluated account is never
// touched; an empty delta list reproduces Health exactly.
func (e *RiskEngine) SimulateHealth(requirementType RequirementType, deltas []TokenDelta) (Fixed, error) {
	scratch := e.Account.Clone()
	for _, delta := range deltas {
		bank, err := e.Group.GetBank(delta.TokenIndex)
		if err != nil {
			return Fixed{}, err
		}
		if err := scratch.ApplyNativeDelta(bank, delta.NativeDelta); err != nil {
			return Fixed{}, err
		}
	}
	simulated, err := NewRiskEngine(scratch, e.Group, e.Prices)
	if err != nil {
		return Fixed{}, err
	}
	return simulated.Health(requirementType)
}
