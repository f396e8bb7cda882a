package registry

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nftxcards/exchange/pkg/crypto"
	"github.com/nftxcards/exchange/pkg/exchange"
	"github.com/nftxcards/exchange/pkg/util"
)

var (
	testChainID  = big.NewInt(1337)
	testEngine   = common.HexToAddress("0x00000000000000000000000000000000e0c0a0de")
	testToken    = common.HexToAddress("0x00000000000000000000000000000000000fab1e")
	testArtist   = common.HexToAddress("0x0000000000000000000000000000000000a97157")
	testReceiver = common.HexToAddress("0x0000000000000000000000000000000000000123")
)

func testClock() *util.FakeClock {
	return util.NewFakeClock(time.Unix(1_700_000_000, 0))
}

func signFungiblePermit(t *testing.T, f *Fungible, signer *crypto.Signer, value *big.Int, deadline, nonce uint64) crypto.Signature {
	t.Helper()
	domain := crypto.Domain{Name: "ERC20Permit", Version: "1", ChainID: testChainID, VerifyingContract: f.Address()}
	digest, err := crypto.HashFungiblePermit(domain, signer.Address(), testEngine, value, deadline, nonce)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	sig, err := signer.Sign(digest.Bytes())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

func TestFungible_TransferConsumesAllowance(t *testing.T) {
	f := NewFungible(testToken, testChainID, testEngine, testClock())
	owner, _ := crypto.GenerateKey()

	f.Mint(owner.Address(), big.NewInt(1000))
	f.Approve(owner.Address(), testEngine, big.NewInt(600))

	if err := f.TransferFrom(owner.Address(), testReceiver, big.NewInt(400)); err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}
	if got := f.Allowance(owner.Address(), testEngine); got.Cmp(big.NewInt(200)) != 0 {
		t.Errorf("allowance = %s, want 200", got)
	}
	if got := f.BalanceOf(testReceiver); got.Cmp(big.NewInt(400)) != 0 {
		t.Errorf("receiver balance = %s, want 400", got)
	}

	// Remaining allowance no longer covers this transfer.
	if err := f.TransferFrom(owner.Address(), testReceiver, big.NewInt(300)); !errors.Is(err, exchange.ErrInsufficientAllowance) {
		t.Errorf("err = %v, want ErrInsufficientAllowance", err)
	}
}

func TestFungible_TransferInsufficientBalance(t *testing.T) {
	f := NewFungible(testToken, testChainID, testEngine, testClock())
	owner, _ := crypto.GenerateKey()

	f.Mint(owner.Address(), big.NewInt(100))
	f.Approve(owner.Address(), testEngine, big.NewInt(1000))

	if err := f.TransferFrom(owner.Address(), testReceiver, big.NewInt(500)); !errors.Is(err, exchange.ErrInsufficientBalance) {
		t.Errorf("err = %v, want ErrInsufficientBalance", err)
	}
}

func TestFungible_PermitLifecycle(t *testing.T) {
	clock := testClock()
	f := NewFungible(testToken, testChainID, testEngine, clock)
	owner, _ := crypto.GenerateKey()
	deadline := uint64(clock.Now().Add(time.Hour).Unix())

	sig := signFungiblePermit(t, f, owner, big.NewInt(500), deadline, 0)
	if err := f.Permit(owner.Address(), testEngine, big.NewInt(500), deadline, sig); err != nil {
		t.Fatalf("Permit: %v", err)
	}
	if got := f.Allowance(owner.Address(), testEngine); got.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("allowance = %s, want 500", got)
	}
	if f.PermitNonce(owner.Address()) != 1 {
		t.Errorf("nonce = %d, want 1", f.PermitNonce(owner.Address()))
	}

	// The same payload can never execute twice: the signature matches a
	// consumed nonce and is reported as a replay, not a bad signer.
	if err := f.Permit(owner.Address(), testEngine, big.NewInt(500), deadline, sig); !errors.Is(err, exchange.ErrPermitReplayed) {
		t.Errorf("replay: err = %v, want ErrPermitReplayed", err)
	}

	// A fresh signature at the advanced nonce works.
	sig2 := signFungiblePermit(t, f, owner, big.NewInt(900), deadline, 1)
	if err := f.Permit(owner.Address(), testEngine, big.NewInt(900), deadline, sig2); err != nil {
		t.Fatalf("second permit: %v", err)
	}
	if got := f.Allowance(owner.Address(), testEngine); got.Cmp(big.NewInt(900)) != 0 {
		t.Errorf("allowance = %s, want 900", got)
	}
}

func TestFungible_PermitWrongSigner(t *testing.T) {
	clock := testClock()
	f := NewFungible(testToken, testChainID, testEngine, clock)
	owner, _ := crypto.GenerateKey()
	mallory, _ := crypto.GenerateKey()
	deadline := uint64(clock.Now().Add(time.Hour).Unix())

	sig := signFungiblePermit(t, f, mallory, big.NewInt(500), deadline, 0)
	if err := f.Permit(owner.Address(), testEngine, big.NewInt(500), deadline, sig); !errors.Is(err, exchange.ErrPermitInvalidSigner) {
		t.Errorf("err = %v, want ErrPermitInvalidSigner", err)
	}
	if f.PermitNonce(owner.Address()) != 0 {
		t.Error("nonce advanced on rejected permit")
	}
}

func TestFungible_PermitExpired(t *testing.T) {
	clock := testClock()
	f := NewFungible(testToken, testChainID, testEngine, clock)
	owner, _ := crypto.GenerateKey()
	deadline := uint64(clock.Now().Unix())

	sig := signFungiblePermit(t, f, owner, big.NewInt(500), deadline, 0)
	clock.Advance(time.Minute)

	if err := f.Permit(owner.Address(), testEngine, big.NewInt(500), deadline, sig); !errors.Is(err, exchange.ErrPermitExpired) {
		t.Errorf("err = %v, want ErrPermitExpired", err)
	}
}

func TestUnique_TransferAuthorization(t *testing.T) {
	u := NewUnique(testToken, testChainID, testEngine, testClock(), testArtist, big.NewInt(500))
	owner, _ := crypto.GenerateKey()
	u.Mint(owner.Address(), big.NewInt(1))

	// No approval at all.
	if err := u.TransferFrom(owner.Address(), testReceiver, big.NewInt(1)); !errors.Is(err, exchange.ErrNotOwnerOrApproved) {
		t.Errorf("err = %v, want ErrNotOwnerOrApproved", err)
	}

	// Per-id approval moves the item and clears on transfer.
	u.Approve(big.NewInt(1), testEngine)
	if err := u.TransferFrom(owner.Address(), testReceiver, big.NewInt(1)); err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}
	got, err := u.OwnerOf(big.NewInt(1))
	if err != nil {
		t.Fatalf("OwnerOf: %v", err)
	}
	if got != testReceiver {
		t.Errorf("owner = %s, want receiver", got.Hex())
	}
	if u.GetApproved(big.NewInt(1)) != (common.Address{}) {
		t.Error("per-id approval survived the transfer")
	}

	// Previous owner can no longer move it.
	if err := u.TransferFrom(owner.Address(), testEngine, big.NewInt(1)); !errors.Is(err, exchange.ErrNotOwnerOrApproved) {
		t.Errorf("stale owner: err = %v, want ErrNotOwnerOrApproved", err)
	}
}

func TestUnique_OwnerOfMissing(t *testing.T) {
	u := NewUnique(testToken, testChainID, testEngine, testClock(), testArtist, big.NewInt(500))
	if _, err := u.OwnerOf(big.NewInt(42)); err == nil {
		t.Error("expected error for unminted id")
	}
}

func TestUnique_PermitAll(t *testing.T) {
	clock := testClock()
	u := NewUnique(testToken, testChainID, testEngine, clock, testArtist, big.NewInt(500))
	owner, _ := crypto.GenerateKey()
	u.Mint(owner.Address(), big.NewInt(1))
	deadline := uint64(clock.Now().Add(time.Hour).Unix())

	domain := crypto.Domain{Name: "ERC721Permit", Version: "1", ChainID: testChainID, VerifyingContract: testToken}
	digest, err := crypto.HashPermitForAll(domain, owner.Address(), testEngine, deadline, 0)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	sig, _ := owner.Sign(digest.Bytes())

	if err := u.PermitAll(owner.Address(), testEngine, deadline, sig); err != nil {
		t.Fatalf("PermitAll: %v", err)
	}
	if !u.IsApprovedForAll(owner.Address(), testEngine) {
		t.Error("operator approval not set")
	}

	// The nonce advanced, so executing the same payload again is a replay.
	if err := u.PermitAll(owner.Address(), testEngine, deadline, sig); !errors.Is(err, exchange.ErrPermitReplayed) {
		t.Errorf("replay: err = %v, want ErrPermitReplayed", err)
	}
}

func TestUnique_Royalty(t *testing.T) {
	u := NewUnique(testToken, testChainID, testEngine, testClock(), testArtist, big.NewInt(500))
	receiver, rate, err := u.RoyaltyOf(big.NewInt(1))
	if err != nil {
		t.Fatalf("RoyaltyOf: %v", err)
	}
	if receiver != testArtist || rate.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("royalty = (%s, %s), want (artist, 500)", receiver.Hex(), rate)
	}
}

func TestSemiFungible_Transfer(t *testing.T) {
	s := NewSemiFungible(testToken, testChainID, testEngine, testClock(), testArtist, big.NewInt(250))
	owner, _ := crypto.GenerateKey()
	s.Mint(owner.Address(), big.NewInt(1), big.NewInt(100))

	if err := s.SafeTransferFrom(owner.Address(), testReceiver, big.NewInt(1), big.NewInt(10)); !errors.Is(err, exchange.ErrNotApproved) {
		t.Errorf("no approval: err = %v, want ErrNotApproved", err)
	}

	s.SetApprovalForAll(owner.Address(), testEngine, true)
	if err := s.SafeTransferFrom(owner.Address(), testReceiver, big.NewInt(1), big.NewInt(10)); err != nil {
		t.Fatalf("SafeTransferFrom: %v", err)
	}
	if got := s.BalanceOf(testReceiver, big.NewInt(1)); got.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("receiver units = %s, want 10", got)
	}
	if got := s.BalanceOf(owner.Address(), big.NewInt(1)); got.Cmp(big.NewInt(90)) != 0 {
		t.Errorf("owner units = %s, want 90", got)
	}

	if err := s.SafeTransferFrom(owner.Address(), testReceiver, big.NewInt(1), big.NewInt(1000)); !errors.Is(err, exchange.ErrInsufficientBalance) {
		t.Errorf("overdraw: err = %v, want ErrInsufficientBalance", err)
	}
}

func TestNative_Transfer(t *testing.T) {
	n := NewNativeCurrency()
	alice := common.HexToAddress("0x000000000000000000000000000000000000a11c")

	n.Mint(alice, big.NewInt(1000))
	if err := n.Transfer(alice, testReceiver, big.NewInt(400)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got := n.BalanceOf(alice); got.Cmp(big.NewInt(600)) != 0 {
		t.Errorf("alice = %s, want 600", got)
	}
	if err := n.Transfer(alice, testReceiver, big.NewInt(601)); !errors.Is(err, exchange.ErrInsufficientValue) {
		t.Errorf("overdraw: err = %v, want ErrInsufficientValue", err)
	}
}

func TestSet_UnknownRegistry(t *testing.T) {
	set := NewSet(NewNativeCurrency())

	if _, err := set.Fungible(testToken); !errors.Is(err, exchange.ErrUnknownRegistry) {
		t.Errorf("fungible: err = %v, want ErrUnknownRegistry", err)
	}
	if _, err := set.Unique(testToken); !errors.Is(err, exchange.ErrUnknownRegistry) {
		t.Errorf("unique: err = %v, want ErrUnknownRegistry", err)
	}
	if _, err := set.SemiFungible(testToken); !errors.Is(err, exchange.ErrUnknownRegistry) {
		t.Errorf("semi-fungible: err = %v, want ErrUnknownRegistry", err)
	}

	f := NewFungible(testToken, testChainID, testEngine, testClock())
	set.RegisterFungible(testToken, f)
	reg, err := set.Fungible(testToken)
	if err != nil {
		t.Fatalf("Fungible: %v", err)
	}
	if reg != f {
		t.Error("registered instance not returned")
	}
}
