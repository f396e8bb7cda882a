package exchange_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nftxcards/exchange/pkg/crypto"
	"github.com/nftxcards/exchange/pkg/exchange"
)

func permitDomain(name string, token common.Address) crypto.Domain {
	return crypto.Domain{Name: name, Version: "1", ChainID: chainID, VerifyingContract: token}
}

// uniquePermit signs and packs a permit payload for the NFT collection at
// the signer's current nonce.
func (f *fixture) uniquePermit(t *testing.T, signer *crypto.Signer, forAll bool, id *big.Int, deadline uint64) []byte {
	t.Helper()
	domain := permitDomain("ERC721Permit", nftToken)
	nonce := f.nft.PermitNonce(signer.Address())

	var digest common.Hash
	var err error
	if forAll {
		digest, err = crypto.HashPermitForAll(domain, signer.Address(), contractAddr, deadline, nonce)
	} else {
		digest, err = crypto.HashUniquePermit(domain, signer.Address(), contractAddr, id, deadline, nonce)
	}
	if err != nil {
		t.Fatalf("permit digest: %v", err)
	}

	sig, err := signer.Sign(digest.Bytes())
	if err != nil {
		t.Fatalf("sign permit: %v", err)
	}
	payload, err := exchange.EncodeUniquePermit(forAll, id, deadline, sig)
	if err != nil {
		t.Fatalf("encode permit: %v", err)
	}
	return payload
}

func (f *fixture) fungiblePermit(t *testing.T, signer *crypto.Signer, value *big.Int, deadline uint64) []byte {
	t.Helper()
	domain := permitDomain("ERC20Permit", payToken)
	nonce := f.pay.PermitNonce(signer.Address())

	digest, err := crypto.HashFungiblePermit(domain, signer.Address(), contractAddr, value, deadline, nonce)
	if err != nil {
		t.Fatalf("permit digest: %v", err)
	}
	sig, err := signer.Sign(digest.Bytes())
	if err != nil {
		t.Fatalf("sign permit: %v", err)
	}
	payload, err := exchange.EncodeFungiblePermit(value, deadline, sig)
	if err != nil {
		t.Fatalf("encode permit: %v", err)
	}
	return payload
}

func (f *fixture) editionPermit(t *testing.T, signer *crypto.Signer, deadline uint64) []byte {
	t.Helper()
	domain := permitDomain("ERC1155Permit", editionToken)
	nonce := f.edition.PermitNonce(signer.Address())

	digest, err := crypto.HashSemiFungiblePermit(domain, signer.Address(), contractAddr, deadline, nonce)
	if err != nil {
		t.Fatalf("permit digest: %v", err)
	}
	sig, err := signer.Sign(digest.Bytes())
	if err != nil {
		t.Fatalf("sign permit: %v", err)
	}
	payload, err := exchange.EncodeSemiFungiblePermit(deadline, sig)
	if err != nil {
		t.Fatalf("encode permit: %v", err)
	}
	return payload
}

func (f *fixture) deadline() uint64 {
	return uint64(f.clock.Now().Add(time.Hour).Unix())
}

func TestMatch_MakerSingleIDPermit(t *testing.T) {
	f := newFixture(t)
	f.pay.Approve(f.taker.Address(), contractAddr, big.NewInt(1000))

	// No standing approval: the maker's permit rides along with the order.
	order := f.sellNFT()
	order.Permit = f.uniquePermit(t, f.maker, false, big.NewInt(1), f.deadline())
	f.sign(t, f.maker, order)

	if _, err := f.engine.MatchOrder(f.taker.Address(), order, nil, nil); err != nil {
		t.Fatalf("MatchOrder: %v", err)
	}

	owner, _ := f.nft.OwnerOf(big.NewInt(1))
	if owner != f.taker.Address() {
		t.Errorf("nft owner = %s, want taker", owner.Hex())
	}
	if n := f.nft.PermitNonce(f.maker.Address()); n != 1 {
		t.Errorf("maker permit nonce = %d, want 1", n)
	}
}

func TestMatch_MakerForAllPermit(t *testing.T) {
	f := newFixture(t)
	f.pay.Approve(f.taker.Address(), contractAddr, big.NewInt(1000))

	order := f.sellNFT()
	order.Permit = f.uniquePermit(t, f.maker, true, big.NewInt(0), f.deadline())
	f.sign(t, f.maker, order)

	if _, err := f.engine.MatchOrder(f.taker.Address(), order, nil, nil); err != nil {
		t.Fatalf("MatchOrder: %v", err)
	}
	if !f.nft.IsApprovedForAll(f.maker.Address(), contractAddr) {
		t.Error("for-all permit did not leave a standing operator approval")
	}
}

func TestMatch_TakerFungiblePermit(t *testing.T) {
	f := newFixture(t)
	f.nft.SetApprovalForAll(f.maker.Address(), contractAddr, true)

	order := f.sellNFT()
	f.sign(t, f.maker, order)

	takerPermit := f.fungiblePermit(t, f.taker, big.NewInt(1000), f.deadline())
	if _, err := f.engine.MatchOrder(f.taker.Address(), order, takerPermit, nil); err != nil {
		t.Fatalf("MatchOrder: %v", err)
	}

	// The permit granted exactly the price and the transfer consumed it all.
	wantBalance(t, "residual allowance", f.pay.Allowance(f.taker.Address(), contractAddr), 0)
	wantBalance(t, "maker", f.pay.BalanceOf(f.maker.Address()), 800)
}

func TestMatch_SemiFungiblePermit(t *testing.T) {
	f := newFixture(t)
	f.pay.Approve(f.taker.Address(), contractAddr, big.NewInt(500))

	order := f.sellNFT()
	order.Commodity = exchange.Asset{Kind: exchange.SemiFungible, Token: editionToken, ID: big.NewInt(1), Amount: big.NewInt(10)}
	order.Payment.Amount = big.NewInt(500)
	order.Permit = f.editionPermit(t, f.maker, f.deadline())
	f.sign(t, f.maker, order)

	if _, err := f.engine.MatchOrder(f.taker.Address(), order, nil, nil); err != nil {
		t.Fatalf("MatchOrder: %v", err)
	}
	wantBalance(t, "taker units", f.edition.BalanceOf(f.taker.Address(), big.NewInt(1)), 10)
}

func TestMatch_PermitSkippedWhenApproved(t *testing.T) {
	f := newFixture(t)
	f.approveAll()

	// A standing approval exists, so the attached permit is never executed
	// and its one-shot nonce survives for later use.
	order := f.sellNFT()
	order.Permit = f.uniquePermit(t, f.maker, false, big.NewInt(1), f.deadline())
	f.sign(t, f.maker, order)

	if _, err := f.engine.MatchOrder(f.taker.Address(), order, nil, nil); err != nil {
		t.Fatalf("MatchOrder: %v", err)
	}
	if n := f.nft.PermitNonce(f.maker.Address()); n != 0 {
		t.Errorf("maker permit nonce = %d, want 0 (permit preserved)", n)
	}
}

func TestMatch_ExpiredPermit(t *testing.T) {
	f := newFixture(t)
	f.pay.Approve(f.taker.Address(), contractAddr, big.NewInt(1000))

	order := f.sellNFT()
	order.Permit = f.uniquePermit(t, f.maker, false, big.NewInt(1), uint64(f.clock.Now().Unix()))
	f.sign(t, f.maker, order)
	f.clock.Advance(time.Minute)

	if _, err := f.engine.MatchOrder(f.taker.Address(), order, nil, nil); !errors.Is(err, exchange.ErrPermitExpired) {
		t.Fatalf("err = %v, want ErrPermitExpired", err)
	}
	if st := f.statusOf(t, order); st != exchange.Open {
		t.Errorf("status = %s, want open", st)
	}
	if owner, _ := f.nft.OwnerOf(big.NewInt(1)); owner != f.maker.Address() {
		t.Error("commodity moved on expired permit")
	}
}

func TestMatch_PermitWrongSigner(t *testing.T) {
	f := newFixture(t)
	f.pay.Approve(f.taker.Address(), contractAddr, big.NewInt(1000))

	// The taker signs a permit over the maker's asset.
	order := f.sellNFT()
	order.Permit = f.uniquePermit(t, f.taker, false, big.NewInt(1), f.deadline())
	f.sign(t, f.maker, order)

	if _, err := f.engine.MatchOrder(f.taker.Address(), order, nil, nil); !errors.Is(err, exchange.ErrPermitInvalidSigner) {
		t.Errorf("err = %v, want ErrPermitInvalidSigner", err)
	}
}

func TestMatch_UndecodablePermit(t *testing.T) {
	f := newFixture(t)
	f.pay.Approve(f.taker.Address(), contractAddr, big.NewInt(1000))

	order := f.sellNFT()
	order.Permit = []byte{0x01, 0x02, 0x03}
	f.sign(t, f.maker, order)

	if _, err := f.engine.MatchOrder(f.taker.Address(), order, nil, nil); !errors.Is(err, exchange.ErrBadPermit) {
		t.Errorf("err = %v, want ErrBadPermit", err)
	}
}

func TestGateway_NativeTakesNoPermit(t *testing.T) {
	f := newFixture(t)
	gw := exchange.NewPermitGateway(f.registries, contractAddr, f.clock)

	asset := exchange.Asset{Kind: exchange.Native, ID: big.NewInt(0), Amount: big.NewInt(1000)}
	if err := gw.Apply(asset, f.taker.Address(), []byte{0x01}); !errors.Is(err, exchange.ErrBadPermit) {
		t.Errorf("err = %v, want ErrBadPermit", err)
	}

	// An empty payload is explicitly not an error.
	if err := gw.Apply(asset, f.taker.Address(), nil); err != nil {
		t.Errorf("empty payload: %v", err)
	}
}

func TestGateway_PermitGrantsExactScope(t *testing.T) {
	f := newFixture(t)
	gw := exchange.NewPermitGateway(f.registries, contractAddr, f.clock)

	payload := f.fungiblePermit(t, f.taker, big.NewInt(750), f.deadline())
	asset := exchange.Asset{Kind: exchange.Fungible, Token: payToken, ID: big.NewInt(0), Amount: big.NewInt(750)}
	if err := gw.Apply(asset, f.taker.Address(), payload); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	wantBalance(t, "allowance", f.pay.Allowance(f.taker.Address(), contractAddr), 750)
	if n := f.pay.PermitNonce(f.taker.Address()); n != 1 {
		t.Errorf("nonce = %d, want 1", n)
	}
}
