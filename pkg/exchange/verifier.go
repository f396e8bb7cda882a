package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nftxcards/exchange/pkg/crypto"
)

// SignatureVerifier checks that an order was authorized by its account.
// Malformed signatures (recovery id out of range, bad curve point) surface
// as ErrMalformedSignature; well-formed signatures by the wrong key as
// ErrInvalidSignature, so a caller can tell bad input from bad authority.
type SignatureVerifier struct {
	registries RegistrySet
}

func NewSignatureVerifier(registries RegistrySet) *SignatureVerifier {
	return &SignatureVerifier{registries: registries}
}

// VerifyOrder recovers the signer of digest and checks it authorizes order.
// The account itself is always accepted. For Unique commodities the account
// is also accepted when the recovered signer granted it a blanket operator
// approval on the commodity registry: an approved operator may circulate
// orders on the owner's behalf.
func (v *SignatureVerifier) VerifyOrder(order *Order, digest common.Hash) error {
	recovered, err := crypto.Recover(digest.Bytes(), order.Signature)
	if err != nil {
		return fmt.Errorf("recover order signer: %w", err)
	}

	if recovered == order.Account {
		return nil
	}

	if order.Commodity.Kind == Unique {
		reg, err := v.registries.Unique(order.Commodity.Token)
		if err != nil {
			return err
		}
		if reg.IsApprovedForAll(recovered, order.Account) {
			return nil
		}
	}

	return fmt.Errorf("%w: recovered %s, account %s",
		ErrInvalidSignature, recovered.Hex(), order.Account.Hex())
}
