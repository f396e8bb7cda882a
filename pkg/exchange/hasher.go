package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nftxcards/exchange/pkg/crypto"
)

// OrderHasher produces the domain-separated digest an order is identified
// and signed by. The same order hashed under a different chain id or
// deployment address yields a different digest, so cross-deployment replay
// is impossible by construction.
type OrderHasher struct {
	domain crypto.Domain
}

func NewOrderHasher(domain crypto.Domain) *OrderHasher {
	return &OrderHasher{domain: domain}
}

// Hash returns the EIP-712 digest of order. Pure function.
func (h *OrderHasher) Hash(order *Order) (common.Hash, error) {
	digest, err := crypto.HashOrder(h.domain, order.typedData())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash order: %w", err)
	}
	return digest, nil
}
