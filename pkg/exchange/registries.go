package exchange

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nftxcards/exchange/pkg/crypto"
)

// The engine never does balance or ownership bookkeeping itself. The four
// asset registries are external collaborators consumed strictly through
// these interfaces; pkg/registry ships in-process implementations.

// RoyaltySource exposes the per-asset royalty data attached to a commodity
// registry. Queried on every settlement, never mutated by the engine and
// never trusted: validation happens in the fee calculator.
type RoyaltySource interface {
	RoyaltyOf(id *big.Int) (receiver common.Address, rateBps *big.Int, err error)
}

// FungibleRegistry is an ERC20-style balance/allowance ledger with a
// signed-permit entry point.
type FungibleRegistry interface {
	BalanceOf(owner common.Address) *big.Int
	Allowance(owner, spender common.Address) *big.Int
	TransferFrom(owner, to common.Address, amount *big.Int) error

	// Permit converts a signed allowance authorization into a standing
	// allowance, consuming the owner's one-shot nonce.
	Permit(owner, spender common.Address, value *big.Int, deadline uint64, sig crypto.Signature) error
	PermitNonce(owner common.Address) uint64
}

// UniqueRegistry is an ERC721-style single-owner item registry.
type UniqueRegistry interface {
	RoyaltySource

	OwnerOf(id *big.Int) (common.Address, error)
	GetApproved(id *big.Int) common.Address
	IsApprovedForAll(owner, operator common.Address) bool
	TransferFrom(owner, to common.Address, id *big.Int) error

	Permit(owner, spender common.Address, id *big.Int, deadline uint64, sig crypto.Signature) error
	PermitAll(owner, operator common.Address, deadline uint64, sig crypto.Signature) error
	PermitNonce(owner common.Address) uint64
}

// SemiFungibleRegistry is an ERC1155-style batch registry. Its permit
// variant is approve-for-all only.
type SemiFungibleRegistry interface {
	RoyaltySource

	BalanceOf(owner common.Address, id *big.Int) *big.Int
	IsApprovedForAll(owner, operator common.Address) bool
	SafeTransferFrom(owner, to common.Address, id, amount *big.Int) error

	PermitAll(owner, operator common.Address, deadline uint64, sig crypto.Signature) error
	PermitNonce(owner common.Address) uint64
}

// NativeLedger models the host ledger's native currency. Value attached to
// a settlement call is escrowed under the engine's account and paid out
// from there within the same call.
type NativeLedger interface {
	BalanceOf(addr common.Address) *big.Int
	Transfer(from, to common.Address, amount *big.Int) error
}

// RegistrySet resolves an asset's contract reference to its registry.
type RegistrySet interface {
	Fungible(token common.Address) (FungibleRegistry, error)
	Unique(token common.Address) (UniqueRegistry, error)
	SemiFungible(token common.Address) (SemiFungibleRegistry, error)
	Native() NativeLedger
}
