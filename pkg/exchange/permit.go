package exchange

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/nftxcards/exchange/pkg/crypto"
	"github.com/nftxcards/exchange/pkg/util"
)

// Permit payloads travel as ABI-encoded blobs so a maker can embed one in
// the order they sign and a taker can attach one to the settlement call.
// Layouts per asset kind:
//
//	Fungible:     (uint256 amount, uint256 deadline, (uint8 v, bytes32 r, bytes32 s))
//	Unique:       (bool forAll, uint256 tokenId, uint256 deadline, (uint8 v, bytes32 r, bytes32 s))
//	SemiFungible: (uint256 deadline, (uint8 v, bytes32 r, bytes32 s))

type sigTuple struct {
	V uint8    `abi:"v"`
	R [32]byte `abi:"r"`
	S [32]byte `abi:"s"`
}

func (t sigTuple) signature() crypto.Signature {
	return crypto.Signature{V: t.V, R: t.R, S: t.S}
}

var (
	uint256Ty, _ = abi.NewType("uint256", "", nil)
	boolTy, _    = abi.NewType("bool", "", nil)
	sigTy, _     = abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "v", Type: "uint8"},
		{Name: "r", Type: "bytes32"},
		{Name: "s", Type: "bytes32"},
	})

	fungiblePermitArgs = abi.Arguments{
		{Name: "amount", Type: uint256Ty},
		{Name: "deadline", Type: uint256Ty},
		{Name: "sig", Type: sigTy},
	}
	uniquePermitArgs = abi.Arguments{
		{Name: "forAll", Type: boolTy},
		{Name: "tokenId", Type: uint256Ty},
		{Name: "deadline", Type: uint256Ty},
		{Name: "sig", Type: sigTy},
	}
	semiFungiblePermitArgs = abi.Arguments{
		{Name: "deadline", Type: uint256Ty},
		{Name: "sig", Type: sigTy},
	}
)

// EncodeFungiblePermit packs an allowance permit payload.
func EncodeFungiblePermit(amount *big.Int, deadline uint64, sig crypto.Signature) ([]byte, error) {
	return fungiblePermitArgs.Pack(amount, new(big.Int).SetUint64(deadline), sigTuple{V: sig.V, R: sig.R, S: sig.S})
}

// EncodeUniquePermit packs a single-id or for-all unique-token permit payload.
func EncodeUniquePermit(forAll bool, tokenID *big.Int, deadline uint64, sig crypto.Signature) ([]byte, error) {
	if tokenID == nil {
		tokenID = big.NewInt(0)
	}
	return uniquePermitArgs.Pack(forAll, tokenID, new(big.Int).SetUint64(deadline), sigTuple{V: sig.V, R: sig.R, S: sig.S})
}

// EncodeSemiFungiblePermit packs a semi-fungible for-all permit payload.
func EncodeSemiFungiblePermit(deadline uint64, sig crypto.Signature) ([]byte, error) {
	return semiFungiblePermitArgs.Pack(new(big.Int).SetUint64(deadline), sigTuple{V: sig.V, R: sig.R, S: sig.S})
}

// PermitGateway converts a signed, time-bounded authorization into a
// standing on-ledger approval immediately before the dependent transfer.
// Ephemeral by design: the payload is consumed once, the registry's
// per-owner nonce advances, and the resulting approval is what the
// subsequent transfer spends.
type PermitGateway struct {
	registries RegistrySet
	spender    common.Address // the engine's deployed identity
	clock      util.Clock
}

func NewPermitGateway(registries RegistrySet, spender common.Address, clock util.Clock) *PermitGateway {
	return &PermitGateway{registries: registries, spender: spender, clock: clock}
}

// Apply decodes payload for the given asset kind and executes it against
// the asset's registry, granting the engine exactly the scope the owner
// signed. An empty payload is not an error: it means the engine relies on a
// pre-existing approval and the transfer step will fail if none exists.
func (g *PermitGateway) Apply(asset Asset, owner common.Address, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}

	switch asset.Kind {
	case Fungible:
		return g.applyFungible(asset, owner, payload)
	case Unique:
		return g.applyUnique(asset, owner, payload)
	case SemiFungible:
		return g.applySemiFungible(asset, owner, payload)
	case Native:
		// Native value needs no approval; a payload here is caller error.
		return fmt.Errorf("%w: native asset takes no permit", ErrBadPermit)
	default:
		return fmt.Errorf("%w: unknown asset kind %d", ErrBadPermit, asset.Kind)
	}
}

func (g *PermitGateway) applyFungible(asset Asset, owner common.Address, payload []byte) error {
	vals, err := fungiblePermitArgs.Unpack(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadPermit, err)
	}
	amount := vals[0].(*big.Int)
	deadline := vals[1].(*big.Int).Uint64()
	sig := abi.ConvertType(vals[2], new(sigTuple)).(*sigTuple)

	if err := g.checkDeadline(deadline); err != nil {
		return err
	}

	reg, err := g.registries.Fungible(asset.Token)
	if err != nil {
		return err
	}
	return reg.Permit(owner, g.spender, amount, deadline, sig.signature())
}

func (g *PermitGateway) applyUnique(asset Asset, owner common.Address, payload []byte) error {
	vals, err := uniquePermitArgs.Unpack(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadPermit, err)
	}
	forAll := vals[0].(bool)
	tokenID := vals[1].(*big.Int)
	deadline := vals[2].(*big.Int).Uint64()
	sig := abi.ConvertType(vals[3], new(sigTuple)).(*sigTuple)

	if err := g.checkDeadline(deadline); err != nil {
		return err
	}

	reg, err := g.registries.Unique(asset.Token)
	if err != nil {
		return err
	}
	if forAll {
		return reg.PermitAll(owner, g.spender, deadline, sig.signature())
	}
	return reg.Permit(owner, g.spender, tokenID, deadline, sig.signature())
}

func (g *PermitGateway) applySemiFungible(asset Asset, owner common.Address, payload []byte) error {
	vals, err := semiFungiblePermitArgs.Unpack(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadPermit, err)
	}
	deadline := vals[0].(*big.Int).Uint64()
	sig := abi.ConvertType(vals[1], new(sigTuple)).(*sigTuple)

	if err := g.checkDeadline(deadline); err != nil {
		return err
	}

	reg, err := g.registries.SemiFungible(asset.Token)
	if err != nil {
		return err
	}
	return reg.PermitAll(owner, g.spender, deadline, sig.signature())
}

func (g *PermitGateway) checkDeadline(deadline uint64) error {
	if now := uint64(g.clock.Now().Unix()); now > deadline {
		return fmt.Errorf("%w: deadline %d", ErrPermitExpired, deadline)
	}
	return nil
}
