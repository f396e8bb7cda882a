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

// SemiFungible is an ERC1155-style batch registry: many units share one
// type id, balances are additive per owner. Approval is for-all only, as is
// its permit variant.
type SemiFungible struct {
	mu sync.Mutex

	token    common.Address
	operator common.Address
	domain   crypto.Domain
	clock    util.Clock

	balances  map[string]map[common.Address]*big.Int // id → owner → units
	operators map[common.Address]map[common.Address]bool
	nonces    map[common.Address]uint64

	royaltyReceiver common.Address
	royaltyBps      *big.Int
}

func NewSemiFungible(token common.Address, chainID *big.Int, operator common.Address, clock util.Clock, royaltyReceiver common.Address, royaltyBps *big.Int) *SemiFungible {
	if royaltyBps == nil {
		royaltyBps = big.NewInt(0)
	}
	return &SemiFungible{
		token:    token,
		operator: operator,
		domain: crypto.Domain{
			Name:              "ERC1155Permit",
			Version:           "1",
			ChainID:           chainID,
			VerifyingContract: token,
		},
		clock:           clock,
		balances:        make(map[string]map[common.Address]*big.Int),
		operators:       make(map[common.Address]map[common.Address]bool),
		nonces:          make(map[common.Address]uint64),
		royaltyReceiver: royaltyReceiver,
		royaltyBps:      royaltyBps,
	}
}

func (s *SemiFungible) Address() common.Address { return s.token }

// Mint credits amount units of type id to `to`. Genesis/test helper.
func (s *SemiFungible) Mint(to common.Address, id, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setBalanceLocked(id, to, new(big.Int).Add(s.balanceLocked(id, to), amount))
}

func (s *SemiFungible) BalanceOf(owner common.Address, id *big.Int) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(big.Int).Set(s.balanceLocked(id, owner))
}

func (s *SemiFungible) IsApprovedForAll(owner, operator common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operators[owner][operator]
}

// SetApprovalForAll toggles a blanket operator approval.
func (s *SemiFungible) SetApprovalForAll(owner, operator common.Address, approved bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.operators[owner]
	if !ok {
		m = make(map[common.Address]bool)
		s.operators[owner] = m
	}
	m[operator] = approved
}

// SafeTransferFrom moves amount units of type id from owner to `to`; the
// settlement engine must hold a blanket approval from the owner.
func (s *SemiFungible) SafeTransferFrom(owner, to common.Address, id, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.operators[owner][s.operator] {
		return fmt.Errorf("%w: %s", exchange.ErrNotApproved, s.token.Hex())
	}
	balance := s.balanceLocked(id, owner)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance %s < amount %s", exchange.ErrInsufficientBalance, balance, amount)
	}

	s.setBalanceLocked(id, owner, new(big.Int).Sub(balance, amount))
	s.setBalanceLocked(id, to, new(big.Int).Add(s.balanceLocked(id, to), amount))
	return nil
}

func (s *SemiFungible) RoyaltyOf(id *big.Int) (common.Address, *big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.royaltyReceiver, new(big.Int).Set(s.royaltyBps), nil
}

// PermitAll executes a signed approve-for-all authorization, the only
// permit variant semi-fungible registries support.
func (s *SemiFungible) PermitAll(owner, operator common.Address, deadline uint64, sig crypto.Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if uint64(s.clock.Now().Unix()) > deadline {
		return fmt.Errorf("%w: deadline %d", exchange.ErrPermitExpired, deadline)
	}

	nonce := s.nonces[owner]
	digestAt := func(n uint64) (common.Hash, error) {
		return crypto.HashSemiFungiblePermit(s.domain, owner, operator, deadline, n)
	}
	if err := verifyPermitSig(owner, nonce, sig, digestAt); err != nil {
		return err
	}

	s.nonces[owner] = nonce + 1
	m, ok := s.operators[owner]
	if !ok {
		m = make(map[common.Address]bool)
		s.operators[owner] = m
	}
	m[operator] = true
	return nil
}

func (s *SemiFungible) PermitNonce(owner common.Address) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonces[owner]
}

func (s *SemiFungible) balanceLocked(id *big.Int, owner common.Address) *big.Int {
	if m, ok := s.balances[id.String()]; ok {
		if b, ok := m[owner]; ok {
			return b
		}
	}
	return big.NewInt(0)
}

func (s *SemiFungible) setBalanceLocked(id *big.Int, owner common.Address, amount *big.Int) {
	m, ok := s.balances[id.String()]
	if !ok {
		m = make(map[common.Address]*big.Int)
		s.balances[id.String()] = m
	}
	m[owner] = amount
}
