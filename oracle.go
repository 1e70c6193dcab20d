package core

import "github.com/pkg/errors"

// PriceSource supplies oracle prices in the common quote unit, as of a
// specific caller-chosen instant. The engine never fetches prices itself; a
// zero price is legal and values the asset at nothing on both sides.
type PriceSource interface {
	Price(tokenIndex uint16) (Fixed, error)
}

// PriceMap is a static price snapshot keyed by token index.
type PriceMap map[uint16]Fixed

func (m PriceMap) Price(tokenIndex uint16) (Fixed, error) {
	price, ok := m[tokenIndex]
	if !ok {
		return Fixed{}, errors.Wrapf(UnknownAsset, "no oracle price for token index %d", tokenIndex)
	}
	if price.IsNegative() {
		return Fixed{}, errors.Wrapf(InvalidConfig, "negative oracle price for token index %d", tokenIndex)
	}
	return price, nil
}
