package api

// Request and response types for REST endpoints and WebSocket messages

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/nftxcards/exchange/pkg/exchange"
)

// ==============================
// REST Request Types
// ==============================

// MatchRequest is the payload for POST /api/v1/orders/match. The order
// carries the maker's signature and optional maker permit; TakerPermit is
// the caller's own just-in-time approval, Value the native currency the
// caller attaches to the settlement.
type MatchRequest struct {
	Caller      common.Address `json:"caller"`
	Order       exchange.Order `json:"order"`
	TakerPermit hexutil.Bytes  `json:"takerPermit,omitempty"`
	Value       *big.Int       `json:"value,omitempty"`
}

// CancelRequest is the payload for POST /api/v1/orders/cancel. The full
// order is resubmitted so the relayer can recompute its hash; only the
// order's account may cancel.
type CancelRequest struct {
	Caller common.Address `json:"caller"`
	Order  exchange.Order `json:"order"`
}

// ==============================
// REST Response Types
// ==============================

// MatchResponse is returned from a successful settlement.
type MatchResponse struct {
	Status     string                     `json:"status"` // "settled"
	Settlement *exchange.SettlementRecord `json:"settlement"`
}

// CancelResponse is returned from a successful cancellation.
type CancelResponse struct {
	Status    string      `json:"status"` // "cancelled"
	OrderHash common.Hash `json:"orderHash"`
}

// OrderStatusResponse reports the ledger state of an order hash.
type OrderStatusResponse struct {
	OrderHash common.Hash `json:"orderHash"`
	Status    string      `json:"status"` // "open" | "filled" | "cancelled"
}

// ConfigResponse exposes the deployment identity makers need to produce
// valid EIP-712 signatures, plus the current fee configuration.
type ConfigResponse struct {
	ChainID       *big.Int       `json:"chainId"`
	Contract      common.Address `json:"contract"`
	DomainName    string         `json:"domainName"`
	DomainVersion string         `json:"domainVersion"`
	Treasury      common.Address `json:"treasury"`
	FeeBps        uint64         `json:"feeBps"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["settlements"]
}

// SettlementUpdate is broadcast on the "settlements" channel after every
// successful match.
type SettlementUpdate struct {
	Type       string                     `json:"type"` // "settlement"
	Settlement *exchange.SettlementRecord `json:"settlement"`
}
