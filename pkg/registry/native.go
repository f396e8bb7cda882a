package registry

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nftxcards/exchange/pkg/exchange"
)

// NativeCurrency is the host ledger's value ledger. The engine escrows
// value attached to a settlement call under its own account and pays the
// split out from there within the same call.
type NativeCurrency struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
}

func NewNativeCurrency() *NativeCurrency {
	return &NativeCurrency{balances: make(map[common.Address]*big.Int)}
}

// Mint credits amount to addr. Genesis/test helper.
func (n *NativeCurrency) Mint(addr common.Address, amount *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.balances[addr] = new(big.Int).Add(n.balanceLocked(addr), amount)
}

func (n *NativeCurrency) BalanceOf(addr common.Address) *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return new(big.Int).Set(n.balanceLocked(addr))
}

func (n *NativeCurrency) Transfer(from, to common.Address, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	balance := n.balanceLocked(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance %s < amount %s", exchange.ErrInsufficientValue, balance, amount)
	}

	n.balances[from] = new(big.Int).Sub(balance, amount)
	n.balances[to] = new(big.Int).Add(n.balanceLocked(to), amount)
	return nil
}

func (n *NativeCurrency) balanceLocked(addr common.Address) *big.Int {
	if b, ok := n.balances[addr]; ok {
		return b
	}
	return big.NewInt(0)
}
