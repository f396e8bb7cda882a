package exchange

import (
	"errors"

	"github.com/nftxcards/exchange/pkg/crypto"
)

// Every failure mode is a sentinel so callers can discriminate with
// errors.Is. The taxonomy matters: input errors mean "correct and resubmit",
// authorization errors mean "not yours to settle", state conflicts mean
// "never retry this order", resource errors mean "retry after funding".

// Input errors.
var (
	ErrInvalidCommodity   = errors.New("exchange: commodity must be a unique or semi-fungible asset")
	ErrInvalidPayment     = errors.New("exchange: payment must be a fungible or native asset")
	ErrZeroPrice          = errors.New("exchange: zero price")
	ErrMalformedSignature = crypto.ErrMalformedSignature
)

// Authorization errors.
var (
	ErrInvalidSignature    = errors.New("exchange: order signature does not match account")
	ErrInvalidTaker        = errors.New("exchange: sender is not the fixed counterparty")
	ErrNotOrderOwner       = errors.New("exchange: sender is not order account")
	ErrNotStarted          = errors.New("exchange: order not started")
	ErrExpired             = errors.New("exchange: order expired")
	ErrPermitExpired       = errors.New("exchange: permit deadline passed")
	ErrPermitInvalidSigner = errors.New("exchange: permit signer is not asset owner")
	ErrPermitReplayed      = errors.New("exchange: permit nonce already used")
	ErrNotAdmin            = errors.New("exchange: sender is not admin")
)

// State conflict errors.
var (
	ErrWrongState = errors.New("exchange: order is in wrong state")
)

// Resource errors.
var (
	ErrInsufficientBalance   = errors.New("exchange: insufficient balance")
	ErrInsufficientAllowance = errors.New("exchange: insufficient allowance")
	ErrInsufficientValue     = errors.New("exchange: attached value too low")
	ErrNotOwnerOrApproved    = errors.New("exchange: transfer caller is not owner nor approved")
	ErrNotApproved           = errors.New("exchange: operator not approved")
)

// Invariant violations.
var (
	ErrInvalidRoyalty  = errors.New("exchange: invalid royalty")
	ErrUnknownRegistry = errors.New("exchange: no registry for token")
	ErrBadPermit       = errors.New("exchange: undecodable permit payload")
)
