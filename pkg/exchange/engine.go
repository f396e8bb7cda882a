package exchange

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/nftxcards/exchange/pkg/crypto"
	"github.com/nftxcards/exchange/pkg/util"
)

// EngineConfig is the deployment identity and fee configuration of the
// settlement engine.
type EngineConfig struct {
	ChainID  *big.Int
	Contract common.Address
	Admin    common.Address
	Treasury common.Address
	FeeBps   uint64
}

// Engine is the matching and settlement orchestrator. One mutex serializes
// settlement calls end to end, reproducing the host ledger's
// one-call-at-a-time execution model: within a call every step is
// synchronous, and two calls on the same order hash are strictly ordered.
type Engine struct {
	mu sync.Mutex

	self   common.Address // deployed identity; also the native escrow account
	admin  common.Address
	treas  TreasuryConfig
	domain crypto.Domain

	hasher     *OrderHasher
	verifier   *SignatureVerifier
	permits    *PermitGateway
	router     *AssetTransferRouter
	fees       RoyaltyFeeCalculator
	ledger     *OrderLedger
	registries RegistrySet
	clock      util.Clock
	log        *zap.SugaredLogger

	subsMu sync.RWMutex
	subs   []chan *SettlementRecord
}

func NewEngine(cfg EngineConfig, ledger *OrderLedger, registries RegistrySet, clock util.Clock, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	domain := crypto.ExchangeDomain(cfg.ChainID, cfg.Contract)
	return &Engine{
		self:       cfg.Contract,
		admin:      cfg.Admin,
		treas:      TreasuryConfig{Treasury: cfg.Treasury, FeeBps: cfg.FeeBps},
		domain:     domain,
		hasher:     NewOrderHasher(domain),
		verifier:   NewSignatureVerifier(registries),
		permits:    NewPermitGateway(registries, cfg.Contract, clock),
		router:     NewAssetTransferRouter(registries, cfg.Contract),
		ledger:     ledger,
		registries: registries,
		clock:      clock,
		log:        log,
	}
}

// Domain returns the engine's EIP-712 signing domain, for maker tooling.
func (e *Engine) Domain() crypto.Domain { return e.domain }

// OrderHash returns the digest identifying order under this deployment.
func (e *Engine) OrderHash(order *Order) (common.Hash, error) {
	return e.hasher.Hash(order)
}

// Status reports the ledger state of an order hash.
func (e *Engine) Status(hash common.Hash) (OrderStatus, error) {
	return e.ledger.Status(hash)
}

// Settlements returns up to limit settlement records, oldest first.
func (e *Engine) Settlements(limit int) ([]*SettlementRecord, error) {
	return e.ledger.Settlements(limit)
}

// TreasuryConfig returns the current fee configuration.
func (e *Engine) TreasuryConfig() TreasuryConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.treas
}

// SetFee updates the protocol fee rate. Admin only.
func (e *Engine) SetFee(caller common.Address, bps uint64) error {
	if caller != e.admin {
		return ErrNotAdmin
	}
	if bps > BpsDenominator {
		return fmt.Errorf("%w: fee rate %d exceeds %d bps", ErrInvalidRoyalty, bps, BpsDenominator)
	}
	e.mu.Lock()
	e.treas.FeeBps = bps
	e.mu.Unlock()
	e.log.Infow("fee_updated", "bps", bps)
	return nil
}

// SetTreasury updates the fee recipient. Admin only.
func (e *Engine) SetTreasury(caller, treasury common.Address) error {
	if caller != e.admin {
		return ErrNotAdmin
	}
	e.mu.Lock()
	e.treas.Treasury = treasury
	e.mu.Unlock()
	e.log.Infow("treasury_updated", "treasury", treasury.Hex())
	return nil
}

// Subscribe returns a channel receiving every settlement record the engine
// emits. Slow consumers drop records rather than stalling settlement.
func (e *Engine) Subscribe() <-chan *SettlementRecord {
	ch := make(chan *SettlementRecord, 64)
	e.subsMu.Lock()
	e.subs = append(e.subs, ch)
	e.subsMu.Unlock()
	return ch
}

func (e *Engine) publish(rec *SettlementRecord) {
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()
	for _, ch := range e.subs {
		select {
		case ch <- rec:
		default:
		}
	}
}

// MatchOrder settles order against caller. takerPermit optionally carries
// the caller's just-in-time approval for the leg the caller supplies;
// value is the native currency attached to the call (nil means none).
//
// The whole call is one atomic unit: validation, fee computation, permit
// application and a full preflight of every leg happen before the first
// transfer, the Filled transition commits after the last transfer, and the
// settlement record is emitted only after the transition. Any failure
// before that leaves order state and balances untouched.
func (e *Engine) MatchOrder(caller common.Address, order *Order, takerPermit []byte, value *big.Int) (*SettlementRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	normalizeOrder(order)
	if value == nil {
		value = big.NewInt(0)
	}

	// 1. Structural validation: the commodity leg must be an item, the
	// payment leg consideration.
	switch order.Commodity.Kind {
	case Unique:
	case SemiFungible:
		if order.Commodity.Amount.Sign() <= 0 {
			return nil, fmt.Errorf("%w: zero semi-fungible amount", ErrInvalidCommodity)
		}
	default:
		return nil, fmt.Errorf("%w: got %s", ErrInvalidCommodity, order.Commodity.Kind)
	}
	switch order.Payment.Kind {
	case Fungible:
	case Native:
		if order.Side == Buy {
			// A Buy maker supplies payment but cannot attach value to a
			// call made by the taker.
			return nil, fmt.Errorf("%w: buy orders cannot pay in native currency", ErrInvalidPayment)
		}
	default:
		return nil, fmt.Errorf("%w: got %s", ErrInvalidPayment, order.Payment.Kind)
	}

	// 2. Timing.
	now := e.clock.Now().Unix()
	if uint64(now) < order.Start {
		return nil, fmt.Errorf("%w: starts at %d", ErrNotStarted, order.Start)
	}
	if uint64(now) >= order.Expiry {
		return nil, fmt.Errorf("%w: expired at %d", ErrExpired, order.Expiry)
	}

	// 3. Price.
	price := order.Payment.Amount
	if price.Sign() <= 0 {
		return nil, ErrZeroPrice
	}

	// 4. Fixed counterparty.
	if order.Taker != (common.Address{}) && caller != order.Taker {
		return nil, fmt.Errorf("%w: order reserved for %s", ErrInvalidTaker, order.Taker.Hex())
	}

	// 5. Hash and verify maker signature.
	hash, err := e.hasher.Hash(order)
	if err != nil {
		return nil, err
	}
	if err := e.verifier.VerifyOrder(order, hash); err != nil {
		return nil, err
	}

	// 6. Replay protection. Checked here, committed after the transfers:
	// under the engine mutex nothing can interleave, so check-then-commit
	// behaves as one provisional transition.
	status, err := e.ledger.Status(hash)
	if err != nil {
		return nil, err
	}
	if status != Open {
		return nil, fmt.Errorf("%w: %s", ErrWrongState, status)
	}

	// 7. Determine legs by side.
	var commodityFrom, commodityTo, payer, seller common.Address
	if order.Side == Sell {
		commodityFrom, commodityTo = order.Account, caller
		payer, seller = caller, order.Account
	} else {
		commodityFrom, commodityTo = caller, order.Account
		payer, seller = order.Account, caller
	}

	// 8. Just-in-time permits, maker's first. A permit is executed only
	// when the leg's source lacks a standing approval; its one-shot nonce
	// is preserved otherwise.
	makerAsset, takerAsset := order.Commodity, withAmount(order.Payment, price)
	if order.Side == Buy {
		makerAsset, takerAsset = takerAsset, makerAsset
	}
	if err := e.applyPermitIfNeeded(makerAsset, order.Account, order.Permit); err != nil {
		return nil, err
	}
	if err := e.applyPermitIfNeeded(takerAsset, caller, takerPermit); err != nil {
		return nil, err
	}

	// Fee and royalty split is computed before any transfer so malformed
	// royalty data aborts with no state change.
	split, err := e.fees.Compute(price, e.royaltySource(order.Commodity), order.Commodity.ID, e.treas)
	if err != nil {
		return nil, err
	}

	// 9. Native payment requires sufficient attached value. Excess value
	// is escrowed, not refunded.
	if order.Payment.Kind == Native {
		if value.Cmp(price) < 0 {
			return nil, fmt.Errorf("%w: attached %s, price %s", ErrInsufficientValue, value, price)
		}
	}

	// Preflight every leg; the first failure aborts before any movement.
	if err := e.router.Preflight(order.Commodity, commodityFrom); err != nil {
		return nil, err
	}
	if order.Payment.Kind == Native {
		if err := e.router.Preflight(withAmount(order.Payment, value), caller); err != nil {
			return nil, err
		}
	} else {
		if err := e.router.Preflight(withAmount(order.Payment, price), payer); err != nil {
			return nil, err
		}
	}

	// 10. Execute: commodity leg, then the payment split (treasury,
	// royalty receiver, seller; zero legs skipped inside the router).
	if err := e.router.Transfer(order.Commodity, commodityFrom, commodityTo); err != nil {
		return nil, err
	}
	paymentSource := payer
	if order.Payment.Kind == Native {
		// Attached value moves into the engine escrow first; payouts
		// leave escrow within the same call.
		if err := e.router.Transfer(withAmount(order.Payment, value), caller, e.self); err != nil {
			return nil, err
		}
		paymentSource = e.self
	}
	if err := e.router.Transfer(withAmount(order.Payment, split.Fee), paymentSource, e.treas.Treasury); err != nil {
		return nil, err
	}
	if err := e.router.Transfer(withAmount(order.Payment, split.Royalty), paymentSource, split.RoyaltyReceiver); err != nil {
		return nil, err
	}
	if err := e.router.Transfer(withAmount(order.Payment, split.Net), paymentSource, seller); err != nil {
		return nil, err
	}

	// Commit the terminal state before anything becomes externally
	// observable.
	if err := e.ledger.TryTransition(hash, Open, Filled, now); err != nil {
		return nil, err
	}

	// 11. Emit the settlement record.
	rec := &SettlementRecord{
		OrderHash:       hash,
		Account:         order.Account,
		Taker:           caller,
		Side:            order.Side.String(),
		Commodity:       order.Commodity,
		Payment:         order.Payment,
		Price:           split.Price,
		Fee:             split.Fee,
		Royalty:         split.Royalty,
		RoyaltyReceiver: split.RoyaltyReceiver,
		SellerProceeds:  split.Net,
		Timestamp:       now,
	}
	if err := e.ledger.SaveSettlement(rec); err != nil {
		e.log.Errorw("settlement_archive_failed", "order", hash.Hex(), "err", err)
	}
	e.publish(rec)

	e.log.Infow("order_matched",
		"order", hash.Hex(),
		"account", order.Account.Hex(),
		"taker", caller.Hex(),
		"side", order.Side.String(),
		"commodity", order.Commodity.Kind.String(),
		"price", price.String(),
		"fee", split.Fee.String(),
		"royalty", split.Royalty.String(),
	)

	return rec, nil
}

// CancelOrder invalidates an open order. Authorization is by direct caller
// identity, so no signature check is needed.
func (e *Engine) CancelOrder(caller common.Address, order *Order) (common.Hash, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	normalizeOrder(order)
	if caller != order.Account {
		return common.Hash{}, ErrNotOrderOwner
	}

	hash, err := e.hasher.Hash(order)
	if err != nil {
		return common.Hash{}, err
	}

	if err := e.ledger.TryTransition(hash, Open, Cancelled, e.clock.Now().Unix()); err != nil {
		return common.Hash{}, err
	}

	e.log.Infow("order_cancelled", "order", hash.Hex(), "account", order.Account.Hex())
	return hash, nil
}

func (e *Engine) applyPermitIfNeeded(asset Asset, owner common.Address, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	approved, err := e.router.HasApproval(asset, owner)
	if err != nil {
		return err
	}
	if approved {
		return nil
	}
	return e.permits.Apply(asset, owner, payload)
}

func (e *Engine) royaltySource(commodity Asset) RoyaltySource {
	if commodity.Kind == Unique {
		if reg, err := e.registries.Unique(commodity.Token); err == nil {
			return reg
		}
	} else {
		if reg, err := e.registries.SemiFungible(commodity.Token); err == nil {
			return reg
		}
	}
	return noRoyalty{}
}

type noRoyalty struct{}

func (noRoyalty) RoyaltyOf(*big.Int) (common.Address, *big.Int, error) {
	return common.Address{}, big.NewInt(0), nil
}

// normalizeOrder defaults nil big.Int fields to zero so callers over JSON
// cannot crash validation.
func normalizeOrder(order *Order) {
	if order.Commodity.ID == nil {
		order.Commodity.ID = big.NewInt(0)
	}
	if order.Commodity.Amount == nil {
		order.Commodity.Amount = big.NewInt(0)
	}
	if order.Payment.ID == nil {
		order.Payment.ID = big.NewInt(0)
	}
	if order.Payment.Amount == nil {
		order.Payment.Amount = big.NewInt(0)
	}
}
