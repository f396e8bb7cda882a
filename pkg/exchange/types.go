package exchange

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/nftxcards/exchange/pkg/crypto"
)

// AssetKind tags the four asset classes the router knows how to move.
// Numbering matches the signed wire format.
type AssetKind uint8

const (
	Fungible     AssetKind = iota // ERC20-style balances
	Unique                        // ERC721-style single-owner items
	SemiFungible                  // ERC1155-style per-id batches
	Native                        // ledger native currency, attached to the call
)

func (k AssetKind) String() string {
	switch k {
	case Fungible:
		return "fungible"
	case Unique:
		return "unique"
	case SemiFungible:
		return "semi_fungible"
	case Native:
		return "native"
	default:
		return "unknown"
	}
}

// Asset describes one leg of a trade. ID is meaningful only for Unique and
// SemiFungible; Amount only for Fungible, SemiFungible and Native (a Unique
// asset implicitly moves one item).
type Asset struct {
	Kind   AssetKind      `json:"assetType"`
	Token  common.Address `json:"token"`
	ID     *big.Int       `json:"id"`
	Amount *big.Int       `json:"amount"`
}

func (a Asset) typedData() crypto.AssetData {
	return crypto.AssetData{
		Kind:   uint8(a.Kind),
		Token:  a.Token,
		ID:     a.ID,
		Amount: a.Amount,
	}
}

// Side determines asset direction: a Sell maker supplies the commodity and
// wants payment; a Buy maker supplies payment and wants the commodity.
type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Order is a signed description of a proposed bilateral trade. Immutable
// once signed; identified by its EIP-712 content hash.
type Order struct {
	Account   common.Address `json:"account"`
	Side      Side           `json:"side"`
	Commodity Asset          `json:"commodity"`
	Payment   Asset          `json:"payment"`

	// Taker restricts who may accept the order; zero means anyone.
	Taker common.Address `json:"taker"`

	Start  uint64 `json:"start"`
	Expiry uint64 `json:"expiry"`
	Nonce  uint64 `json:"nonce"`

	Signature crypto.Signature `json:"orderSig"`

	// Permit optionally carries the maker's signed just-in-time approval
	// for the leg the maker supplies. Empty means a standing approval is
	// expected to exist.
	Permit hexutil.Bytes `json:"permitSig,omitempty"`
}

func (o *Order) typedData() crypto.OrderData {
	return crypto.OrderData{
		Account:   o.Account,
		Side:      uint8(o.Side),
		Commodity: o.Commodity.typedData(),
		Payment:   o.Payment.typedData(),
		Taker:     o.Taker,
		Start:     o.Start,
		Expiry:    o.Expiry,
		Nonce:     o.Nonce,
	}
}

// OrderStatus is the replay-protection state of an order hash.
// Open is the unset default; Filled and Cancelled are terminal.
type OrderStatus uint8

const (
	Open OrderStatus = iota
	Filled
	Cancelled
)

func (s OrderStatus) String() string {
	switch s {
	case Open:
		return "open"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// SettlementRecord is emitted once per successful match and consumed by
// off-channel indexers. The engine never re-reads it.
type SettlementRecord struct {
	OrderHash common.Hash    `json:"orderHash"`
	Account   common.Address `json:"account"`
	Taker     common.Address `json:"taker"`
	Side      string         `json:"side"`

	Commodity Asset `json:"commodity"`
	Payment   Asset `json:"payment"`

	Price           *big.Int       `json:"price"`
	Fee             *big.Int       `json:"fee"`
	Royalty         *big.Int       `json:"royalty"`
	RoyaltyReceiver common.Address `json:"royaltyReceiver"`
	SellerProceeds  *big.Int       `json:"sellerProceeds"`

	Timestamp int64 `json:"timestamp"`
}

// TreasuryConfig is the process-wide fee configuration, mutable only
// through the engine's admin surface and read on every settlement.
type TreasuryConfig struct {
	Treasury common.Address `json:"treasury"`
	FeeBps   uint64         `json:"feeBps"`
}
