package exchange

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetTransferRouter dispatches typed asset movements to the correct
// registry call. The kind set is closed, so dispatch is a plain switch
// rather than an interface hierarchy.
//
// Transfers are never silently skipped: every path either succeeds fully or
// reports a typed error, and the engine treats any failure as fatal to the
// whole settlement.
type AssetTransferRouter struct {
	registries RegistrySet
	spender    common.Address // the engine, as approved operator
}

func NewAssetTransferRouter(registries RegistrySet, spender common.Address) *AssetTransferRouter {
	return &AssetTransferRouter{registries: registries, spender: spender}
}

// HasApproval reports whether owner already granted the engine a standing
// approval sufficient to move asset. Used to decide whether a supplied
// permit needs to be executed at all.
func (r *AssetTransferRouter) HasApproval(asset Asset, owner common.Address) (bool, error) {
	switch asset.Kind {
	case Fungible:
		reg, err := r.registries.Fungible(asset.Token)
		if err != nil {
			return false, err
		}
		return reg.Allowance(owner, r.spender).Cmp(asset.Amount) >= 0, nil

	case Unique:
		reg, err := r.registries.Unique(asset.Token)
		if err != nil {
			return false, err
		}
		if reg.IsApprovedForAll(owner, r.spender) {
			return true, nil
		}
		return reg.GetApproved(asset.ID) == r.spender, nil

	case SemiFungible:
		reg, err := r.registries.SemiFungible(asset.Token)
		if err != nil {
			return false, err
		}
		return reg.IsApprovedForAll(owner, r.spender), nil

	case Native:
		// Attached value needs no approval.
		return true, nil

	default:
		return false, fmt.Errorf("%w: unknown asset kind %d", ErrInvalidCommodity, asset.Kind)
	}
}

// Preflight verifies, without mutating anything, that Transfer(asset, from,
// to) would succeed: ownership, balance, allowance and operator state. The
// engine preflights every leg of a settlement before moving the first one,
// which is what makes the call all-or-nothing.
func (r *AssetTransferRouter) Preflight(asset Asset, from common.Address) error {
	switch asset.Kind {
	case Fungible:
		reg, err := r.registries.Fungible(asset.Token)
		if err != nil {
			return err
		}
		if reg.Allowance(from, r.spender).Cmp(asset.Amount) < 0 {
			return fmt.Errorf("%w: fungible %s", ErrInsufficientAllowance, asset.Token.Hex())
		}
		if reg.BalanceOf(from).Cmp(asset.Amount) < 0 {
			return fmt.Errorf("%w: fungible %s", ErrInsufficientBalance, asset.Token.Hex())
		}
		return nil

	case Unique:
		reg, err := r.registries.Unique(asset.Token)
		if err != nil {
			return err
		}
		owner, err := reg.OwnerOf(asset.ID)
		if err != nil || owner != from {
			return fmt.Errorf("%w: id %s", ErrNotOwnerOrApproved, asset.ID)
		}
		if !reg.IsApprovedForAll(from, r.spender) && reg.GetApproved(asset.ID) != r.spender {
			return fmt.Errorf("%w: id %s", ErrNotOwnerOrApproved, asset.ID)
		}
		return nil

	case SemiFungible:
		reg, err := r.registries.SemiFungible(asset.Token)
		if err != nil {
			return err
		}
		if !reg.IsApprovedForAll(from, r.spender) {
			return fmt.Errorf("%w: semi-fungible %s", ErrNotApproved, asset.Token.Hex())
		}
		if reg.BalanceOf(from, asset.ID).Cmp(asset.Amount) < 0 {
			return fmt.Errorf("%w: semi-fungible %s id %s", ErrInsufficientBalance, asset.Token.Hex(), asset.ID)
		}
		return nil

	case Native:
		if r.registries.Native().BalanceOf(from).Cmp(asset.Amount) < 0 {
			return fmt.Errorf("%w: native", ErrInsufficientValue)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown asset kind %d", ErrInvalidCommodity, asset.Kind)
	}
}

// Transfer moves asset from `from` to `to` through the owning registry.
func (r *AssetTransferRouter) Transfer(asset Asset, from, to common.Address) error {
	// Zero-amount legs are skipped rather than routed; callers rely on
	// this for empty fee and royalty cuts.
	if asset.Kind != Unique && asset.Amount.Sign() == 0 {
		return nil
	}

	switch asset.Kind {
	case Fungible:
		reg, err := r.registries.Fungible(asset.Token)
		if err != nil {
			return err
		}
		return reg.TransferFrom(from, to, asset.Amount)

	case Unique:
		reg, err := r.registries.Unique(asset.Token)
		if err != nil {
			return err
		}
		return reg.TransferFrom(from, to, asset.ID)

	case SemiFungible:
		reg, err := r.registries.SemiFungible(asset.Token)
		if err != nil {
			return err
		}
		return reg.SafeTransferFrom(from, to, asset.ID, asset.Amount)

	case Native:
		return r.registries.Native().Transfer(from, to, asset.Amount)

	default:
		return fmt.Errorf("%w: unknown asset kind %d", ErrInvalidCommodity, asset.Kind)
	}
}

// withAmount returns a copy of asset carrying a different amount, used for
// fee and royalty sub-transfers of the payment leg.
func withAmount(asset Asset, amount *big.Int) Asset {
	out := asset
	out.Amount = amount
	return out
}
