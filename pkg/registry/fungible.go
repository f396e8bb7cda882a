// Package registry ships in-process implementations of the asset
// registries the settlement engine consumes: an ERC20-style fungible
// ledger, an ERC721-style unique-item registry, an ERC1155-style
// semi-fungible registry and a native currency ledger. Each carries the
// signed-permit entry points the PermitGateway drives.
package registry

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nftxcards/exchange/pkg/crypto"
	"github.com/nftxcards/exchange/pkg/exchange"
	"github.com/nftxcards/exchange/pkg/util"
)

// Fungible is an ERC20-style balance/allowance ledger with EIP-2612-style
// permits. Transfers initiated by the settlement engine consume the
// allowance the owner granted to the engine.
type Fungible struct {
	mu sync.Mutex

	token    common.Address
	operator common.Address // the settlement engine
	domain   crypto.Domain
	clock    util.Clock

	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
	nonces     map[common.Address]uint64
}

func NewFungible(token common.Address, chainID *big.Int, operator common.Address, clock util.Clock) *Fungible {
	return &Fungible{
		token:    token,
		operator: operator,
		domain: crypto.Domain{
			Name:              "ERC20Permit",
			Version:           "1",
			ChainID:           chainID,
			VerifyingContract: token,
		},
		clock:      clock,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
		nonces:     make(map[common.Address]uint64),
	}
}

func (f *Fungible) Address() common.Address { return f.token }

// Mint credits amount to addr. Genesis/test helper.
func (f *Fungible) Mint(addr common.Address, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[addr] = new(big.Int).Add(f.balanceLocked(addr), amount)
}

// Approve sets a standing allowance, the pre-permit authorization path.
func (f *Fungible) Approve(owner, spender common.Address, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setAllowanceLocked(owner, spender, amount)
}

func (f *Fungible) BalanceOf(owner common.Address) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.balanceLocked(owner))
}

func (f *Fungible) Allowance(owner, spender common.Address) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.allowanceLocked(owner, spender))
}

func (f *Fungible) PermitNonce(owner common.Address) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonces[owner]
}

// TransferFrom moves amount from owner to `to`, spending the allowance the
// owner granted to the settlement engine.
func (f *Fungible) TransferFrom(owner, to common.Address, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	allowance := f.allowanceLocked(owner, f.operator)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: allowance %s < amount %s", exchange.ErrInsufficientAllowance, allowance, amount)
	}
	balance := f.balanceLocked(owner)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance %s < amount %s", exchange.ErrInsufficientBalance, balance, amount)
	}

	f.setAllowanceLocked(owner, f.operator, new(big.Int).Sub(allowance, amount))
	f.balances[owner] = new(big.Int).Sub(balance, amount)
	f.balances[to] = new(big.Int).Add(f.balanceLocked(to), amount)
	return nil
}

// Permit verifies a signed allowance authorization and, if valid, leaves a
// standing allowance of exactly the granted amount. One-shot: the owner's
// nonce advances on success so the payload can never be executed twice.
func (f *Fungible) Permit(owner, spender common.Address, value *big.Int, deadline uint64, sig crypto.Signature) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if uint64(f.clock.Now().Unix()) > deadline {
		return fmt.Errorf("%w: deadline %d", exchange.ErrPermitExpired, deadline)
	}

	nonce := f.nonces[owner]
	digestAt := func(n uint64) (common.Hash, error) {
		return crypto.HashFungiblePermit(f.domain, owner, spender, value, deadline, n)
	}
	if err := verifyPermitSig(owner, nonce, sig, digestAt); err != nil {
		return err
	}

	f.nonces[owner] = nonce + 1
	f.setAllowanceLocked(owner, spender, new(big.Int).Set(value))
	return nil
}

func (f *Fungible) balanceLocked(addr common.Address) *big.Int {
	if b, ok := f.balances[addr]; ok {
		return b
	}
	return big.NewInt(0)
}

func (f *Fungible) allowanceLocked(owner, spender common.Address) *big.Int {
	if m, ok := f.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return a
		}
	}
	return big.NewInt(0)
}

func (f *Fungible) setAllowanceLocked(owner, spender common.Address, amount *big.Int) {
	m, ok := f.allowances[owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		f.allowances[owner] = m
	}
	m[spender] = amount
}

// verifyPermitSig checks that sig over the digest at the owner's current
// nonce recovers to owner. A signature that instead matches an earlier
// nonce is a replay; anything else is a wrong signer. The backward scan is
// bounded by the owner's executed-permit count.
func verifyPermitSig(owner common.Address, nonce uint64, sig crypto.Signature, digestAt func(uint64) (common.Hash, error)) error {
	digest, err := digestAt(nonce)
	if err != nil {
		return err
	}
	recovered, err := crypto.Recover(digest.Bytes(), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", exchange.ErrPermitInvalidSigner, err)
	}
	if recovered == owner {
		return nil
	}

	for n := uint64(0); n < nonce; n++ {
		d, err := digestAt(n)
		if err != nil {
			return err
		}
		if r, err := crypto.Recover(d.Bytes(), sig); err == nil && r == owner {
			return fmt.Errorf("%w: nonce %d already consumed", exchange.ErrPermitReplayed, n)
		}
	}

	return fmt.Errorf("%w: recovered %s, owner %s", exchange.ErrPermitInvalidSigner, recovered.Hex(), owner.Hex())
}
