package exchange

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BpsDenominator is the basis-point scale for fee and royalty rates.
const BpsDenominator = 10000

// FeeSplit is the outcome of dividing a payment between treasury, royalty
// receiver and seller. Fee + Royalty + Net always equals Price exactly;
// truncation remainders accrue to Net, never to fee or royalty.
type FeeSplit struct {
	Price           *big.Int
	Fee             *big.Int
	Royalty         *big.Int
	RoyaltyReceiver common.Address
	Net             *big.Int
}

// RoyaltyFeeCalculator turns a payment amount into a FeeSplit using the
// commodity's royalty data and the engine's treasury configuration.
type RoyaltyFeeCalculator struct{}

// Compute queries the commodity registry for royalty data, validates it and
// derives the split. Royalty data comes from a third-party asset and is
// never clamped: a rate outside the basis-point range, or a combined
// royalty+fee exceeding the price, aborts with ErrInvalidRoyalty.
func (RoyaltyFeeCalculator) Compute(price *big.Int, royalties RoyaltySource, commodityID *big.Int, cfg TreasuryConfig) (*FeeSplit, error) {
	receiver, rateBps, err := royalties.RoyaltyOf(commodityID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoyalty, err)
	}

	royalty := big.NewInt(0)
	if receiver != (common.Address{}) {
		if rateBps == nil || rateBps.Sign() < 0 || rateBps.Cmp(big.NewInt(BpsDenominator)) > 0 {
			return nil, fmt.Errorf("%w: royalty rate %v out of range", ErrInvalidRoyalty, rateBps)
		}
		royalty = new(big.Int).Mul(price, rateBps)
		royalty.Div(royalty, big.NewInt(BpsDenominator))
	} else {
		receiver = common.Address{}
	}

	fee := big.NewInt(0)
	if cfg.FeeBps > 0 && cfg.Treasury != (common.Address{}) {
		fee = new(big.Int).Mul(price, new(big.Int).SetUint64(cfg.FeeBps))
		fee.Div(fee, big.NewInt(BpsDenominator))
	}

	// Re-checked at settlement time rather than trusted at configuration
	// time: royalty and fee rates together must not exceed the price.
	deducted := new(big.Int).Add(royalty, fee)
	if deducted.Cmp(price) > 0 {
		return nil, fmt.Errorf("%w: fee %s + royalty %s exceed price %s",
			ErrInvalidRoyalty, fee, royalty, price)
	}

	return &FeeSplit{
		Price:           new(big.Int).Set(price),
		Fee:             fee,
		Royalty:         royalty,
		RoyaltyReceiver: receiver,
		Net:             new(big.Int).Sub(price, deducted),
	}, nil
}
