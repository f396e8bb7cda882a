package registry

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nftxcards/exchange/pkg/exchange"
)

// Set resolves asset contract references to registry instances.
// Implements exchange.RegistrySet.
type Set struct {
	mu           sync.RWMutex
	fungibles    map[common.Address]exchange.FungibleRegistry
	uniques      map[common.Address]exchange.UniqueRegistry
	semiFungible map[common.Address]exchange.SemiFungibleRegistry
	native       exchange.NativeLedger
}

func NewSet(native exchange.NativeLedger) *Set {
	return &Set{
		fungibles:    make(map[common.Address]exchange.FungibleRegistry),
		uniques:      make(map[common.Address]exchange.UniqueRegistry),
		semiFungible: make(map[common.Address]exchange.SemiFungibleRegistry),
		native:       native,
	}
}

func (s *Set) RegisterFungible(token common.Address, reg exchange.FungibleRegistry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fungibles[token] = reg
}

func (s *Set) RegisterUnique(token common.Address, reg exchange.UniqueRegistry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uniques[token] = reg
}

func (s *Set) RegisterSemiFungible(token common.Address, reg exchange.SemiFungibleRegistry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.semiFungible[token] = reg
}

func (s *Set) Fungible(token common.Address) (exchange.FungibleRegistry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.fungibles[token]
	if !ok {
		return nil, fmt.Errorf("%w: fungible %s", exchange.ErrUnknownRegistry, token.Hex())
	}
	return reg, nil
}

func (s *Set) Unique(token common.Address) (exchange.UniqueRegistry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.uniques[token]
	if !ok {
		return nil, fmt.Errorf("%w: unique %s", exchange.ErrUnknownRegistry, token.Hex())
	}
	return reg, nil
}

func (s *Set) SemiFungible(token common.Address) (exchange.SemiFungibleRegistry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.semiFungible[token]
	if !ok {
		return nil, fmt.Errorf("%w: semi-fungible %s", exchange.ErrUnknownRegistry, token.Hex())
	}
	return reg, nil
}

func (s *Set) Native() exchange.NativeLedger {
	return s.native
}
