package crypto

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Domain is the EIP-712 domain separator for typed-data signing.
// Folding the chain id and deployment address into every digest prevents
// replay of the same order against a different deployment or ledger.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// ExchangeDomain returns the settlement engine's signing domain.
func ExchangeDomain(chainID *big.Int, contract common.Address) Domain {
	return Domain{
		Name:              "Exchange",
		Version:           "1",
		ChainID:           chainID,
		VerifyingContract: contract,
	}
}

func (d Domain) typedDomain() apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              d.Name,
		Version:           d.Version,
		ChainId:           (*math.HexOrDecimal256)(d.ChainID),
		VerifyingContract: d.VerifyingContract.Hex(),
	}
}

var eip712DomainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// AssetData mirrors the nested Asset struct of the signed order. The hash
// of this sub-structure is folded into the order digest, so the layout here
// must match what makers' wallets hash or signatures never validate.
type AssetData struct {
	Kind   uint8
	Token  common.Address
	ID     *big.Int
	Amount *big.Int
}

// OrderData is the typed-data view of an order, the exact structure a maker
// signs in their wallet.
type OrderData struct {
	Account   common.Address
	Side      uint8
	Commodity AssetData
	Payment   AssetData
	Taker     common.Address
	Start     uint64
	Expiry    uint64
	Nonce     uint64
}

func assetMessage(a AssetData) apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"assetType": fmt.Sprintf("%d", a.Kind),
		"token":     a.Token.Hex(),
		"id":        a.ID.String(),
		"amount":    a.Amount.String(),
	}
}

// HashOrder computes the EIP-712 digest of an order under domain.
// Pure: identical input always produces the identical digest.
func HashOrder(domain Domain, order OrderData) (common.Hash, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": eip712DomainType,
			"Order": []apitypes.Type{
				{Name: "account", Type: "address"},
				{Name: "side", Type: "uint8"},
				{Name: "commodity", Type: "Asset"},
				{Name: "payment", Type: "Asset"},
				{Name: "taker", Type: "address"},
				{Name: "start", Type: "uint64"},
				{Name: "expiry", Type: "uint64"},
				{Name: "nonce", Type: "uint64"},
			},
			"Asset": []apitypes.Type{
				{Name: "assetType", Type: "uint8"},
				{Name: "token", Type: "address"},
				{Name: "id", Type: "uint256"},
				{Name: "amount", Type: "uint256"},
			},
		},
		PrimaryType: "Order",
		Domain:      domain.typedDomain(),
		Message: apitypes.TypedDataMessage{
			"account":   order.Account.Hex(),
			"side":      fmt.Sprintf("%d", order.Side),
			"commodity": map[string]interface{}(assetMessage(order.Commodity)),
			"payment":   map[string]interface{}(assetMessage(order.Payment)),
			"taker":     order.Taker.Hex(),
			"start":     fmt.Sprintf("%d", order.Start),
			"expiry":    fmt.Sprintf("%d", order.Expiry),
			"nonce":     fmt.Sprintf("%d", order.Nonce),
		},
	}

	return digest(typedData)
}

// HashFungiblePermit computes the digest of an allowance permit under the
// fungible registry's "ERC20Permit" domain.
func HashFungiblePermit(domain Domain, owner, spender common.Address, value *big.Int, deadline, nonce uint64) (common.Hash, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": eip712DomainType,
			"Permit": []apitypes.Type{
				{Name: "owner", Type: "address"},
				{Name: "spender", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
			},
		},
		PrimaryType: "Permit",
		Domain:      domain.typedDomain(),
		Message: apitypes.TypedDataMessage{
			"owner":    owner.Hex(),
			"spender":  spender.Hex(),
			"value":    value.String(),
			"deadline": fmt.Sprintf("%d", deadline),
			"nonce":    fmt.Sprintf("%d", nonce),
		},
	}

	return digest(typedData)
}

// HashUniquePermit computes the digest of a single-id permit under the
// unique registry's "ERC721Permit" domain.
func HashUniquePermit(domain Domain, owner, spender common.Address, tokenID *big.Int, deadline, nonce uint64) (common.Hash, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": eip712DomainType,
			"Permit": []apitypes.Type{
				{Name: "owner", Type: "address"},
				{Name: "spender", Type: "address"},
				{Name: "tokenId", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
			},
		},
		PrimaryType: "Permit",
		Domain:      domain.typedDomain(),
		Message: apitypes.TypedDataMessage{
			"owner":    owner.Hex(),
			"spender":  spender.Hex(),
			"tokenId":  tokenID.String(),
			"deadline": fmt.Sprintf("%d", deadline),
			"nonce":    fmt.Sprintf("%d", nonce),
		},
	}

	return digest(typedData)
}

// HashPermitForAll computes the digest of an approve-for-all permit
// ("PermitAll" on unique registries).
func HashPermitForAll(domain Domain, owner, operator common.Address, deadline, nonce uint64) (common.Hash, error) {
	return hashOperatorPermit(domain, "PermitAll", owner, operator, deadline, nonce)
}

// HashSemiFungiblePermit computes the digest of a semi-fungible operator
// permit ("Permit" on ERC1155-style registries, for-all only).
func HashSemiFungiblePermit(domain Domain, owner, operator common.Address, deadline, nonce uint64) (common.Hash, error) {
	return hashOperatorPermit(domain, "Permit", owner, operator, deadline, nonce)
}

func hashOperatorPermit(domain Domain, primary string, owner, operator common.Address, deadline, nonce uint64) (common.Hash, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": eip712DomainType,
			primary: []apitypes.Type{
				{Name: "owner", Type: "address"},
				{Name: "spender", Type: "address"},
				{Name: "deadline", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
			},
		},
		PrimaryType: primary,
		Domain:      domain.typedDomain(),
		Message: apitypes.TypedDataMessage{
			"owner":    owner.Hex(),
			"spender":  operator.Hex(),
			"deadline": fmt.Sprintf("%d", deadline),
			"nonce":    fmt.Sprintf("%d", nonce),
		},
	}

	return digest(typedData)
}

// digest finishes the EIP-712 computation:
// keccak256("\x19\x01" || domainSeparator || hashStruct(message))
func digest(typedData apitypes.TypedData) (common.Hash, error) {
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash message: %w", err)
	}

	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256Hash(rawData), nil
}
