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

// Unique is an ERC721-style single-owner item registry with per-id and
// for-all approvals, signed permits for both, and a flat royalty attached
// at construction time.
type Unique struct {
	mu sync.Mutex

	token    common.Address
	operator common.Address
	domain   crypto.Domain
	clock    util.Clock

	owners    map[string]common.Address          // id → owner
	approved  map[string]common.Address          // id → approved spender
	operators map[common.Address]map[common.Address]bool
	nonces    map[common.Address]uint64

	royaltyReceiver common.Address
	royaltyBps      *big.Int
}

func NewUnique(token common.Address, chainID *big.Int, operator common.Address, clock util.Clock, royaltyReceiver common.Address, royaltyBps *big.Int) *Unique {
	if royaltyBps == nil {
		royaltyBps = big.NewInt(0)
	}
	return &Unique{
		token:    token,
		operator: operator,
		domain: crypto.Domain{
			Name:              "ERC721Permit",
			Version:           "1",
			ChainID:           chainID,
			VerifyingContract: token,
		},
		clock:           clock,
		owners:          make(map[string]common.Address),
		approved:        make(map[string]common.Address),
		operators:       make(map[common.Address]map[common.Address]bool),
		nonces:          make(map[common.Address]uint64),
		royaltyReceiver: royaltyReceiver,
		royaltyBps:      royaltyBps,
	}
}

func (u *Unique) Address() common.Address { return u.token }

// Mint assigns a fresh item id to `to`. Genesis/test helper.
func (u *Unique) Mint(to common.Address, id *big.Int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.owners[id.String()] = to
}

func (u *Unique) OwnerOf(id *big.Int) (common.Address, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	owner, ok := u.owners[id.String()]
	if !ok {
		return common.Address{}, fmt.Errorf("unique %s: token %s does not exist", u.token.Hex(), id)
	}
	return owner, nil
}

func (u *Unique) GetApproved(id *big.Int) common.Address {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.approved[id.String()]
}

func (u *Unique) IsApprovedForAll(owner, operator common.Address) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.operators[owner][operator]
}

// Approve grants a per-id approval. Test/demo helper.
func (u *Unique) Approve(id *big.Int, spender common.Address) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.approved[id.String()] = spender
}

// SetApprovalForAll toggles a blanket operator approval.
func (u *Unique) SetApprovalForAll(owner, operator common.Address, approved bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	m, ok := u.operators[owner]
	if !ok {
		m = make(map[common.Address]bool)
		u.operators[owner] = m
	}
	m[operator] = approved
}

// TransferFrom moves the identified item from owner to `to`. The
// settlement engine must hold either the item-level approval or a blanket
// operator approval from the owner. Per-id approval clears on transfer.
func (u *Unique) TransferFrom(owner, to common.Address, id *big.Int) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	key := id.String()
	current, ok := u.owners[key]
	if !ok || current != owner {
		return fmt.Errorf("%w: id %s", exchange.ErrNotOwnerOrApproved, id)
	}
	if !u.operators[owner][u.operator] && u.approved[key] != u.operator {
		return fmt.Errorf("%w: id %s", exchange.ErrNotOwnerOrApproved, id)
	}

	u.owners[key] = to
	delete(u.approved, key)
	return nil
}

func (u *Unique) RoyaltyOf(id *big.Int) (common.Address, *big.Int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.royaltyReceiver, new(big.Int).Set(u.royaltyBps), nil
}

// Permit executes a signed single-id approval.
func (u *Unique) Permit(owner, spender common.Address, id *big.Int, deadline uint64, sig crypto.Signature) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if uint64(u.clock.Now().Unix()) > deadline {
		return fmt.Errorf("%w: deadline %d", exchange.ErrPermitExpired, deadline)
	}

	nonce := u.nonces[owner]
	digestAt := func(n uint64) (common.Hash, error) {
		return crypto.HashUniquePermit(u.domain, owner, spender, id, deadline, n)
	}
	if err := verifyPermitSig(owner, nonce, sig, digestAt); err != nil {
		return err
	}

	u.nonces[owner] = nonce + 1
	u.approved[id.String()] = spender
	return nil
}

// PermitAll executes a signed approve-for-all authorization.
func (u *Unique) PermitAll(owner, operator common.Address, deadline uint64, sig crypto.Signature) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if uint64(u.clock.Now().Unix()) > deadline {
		return fmt.Errorf("%w: deadline %d", exchange.ErrPermitExpired, deadline)
	}

	nonce := u.nonces[owner]
	digestAt := func(n uint64) (common.Hash, error) {
		return crypto.HashPermitForAll(u.domain, owner, operator, deadline, n)
	}
	if err := verifyPermitSig(owner, nonce, sig, digestAt); err != nil {
		return err
	}

	u.nonces[owner] = nonce + 1
	m, ok := u.operators[owner]
	if !ok {
		m = make(map[common.Address]bool)
		u.operators[owner] = m
	}
	m[operator] = true
	return nil
}

func (u *Unique) PermitNonce(owner common.Address) uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.nonces[owner]
}
