package crypto

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrMalformedSignature marks signatures that are structurally invalid
// (bad length, recovery id out of range, point not on curve). Distinct from
// a well-formed signature made by the wrong key, which recovers to a
// different address and is an authorization failure at the caller.
var ErrMalformedSignature = errors.New("crypto: malformed signature")

// Signature is a secp256k1 signature split into its recovery and scalar
// components, the form counterparties exchange off-channel.
// V is 27 or 28 (legacy Ethereum convention); 0 and 1 are also accepted.
type Signature struct {
	V uint8
	R [32]byte
	S [32]byte
}

type signatureJSON struct {
	V uint8       `json:"v"`
	R common.Hash `json:"r"`
	S common.Hash `json:"s"`
}

// MarshalJSON encodes R and S as 0x-prefixed hex.
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(signatureJSON{V: s.V, R: s.R, S: s.S})
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	var aux signatureJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.V = aux.V
	s.R = aux.R
	s.S = aux.S
	return nil
}

// SignatureFromBytes parses a 65-byte [R || S || V] signature.
func SignatureFromBytes(b []byte) (Signature, error) {
	if len(b) != 65 {
		return Signature{}, fmt.Errorf("%w: length %d", ErrMalformedSignature, len(b))
	}
	var sig Signature
	copy(sig.R[:], b[:32])
	copy(sig.S[:], b[32:64])
	sig.V = b[64]
	return sig, nil
}

// Bytes returns the signature in [R || S || V] wire form.
func (s Signature) Bytes() []byte {
	out := make([]byte, 65)
	copy(out[:32], s.R[:])
	copy(out[32:64], s.S[:])
	out[64] = s.V
	return out
}

// recoveryID normalizes V to the 0/1 range Ecrecover expects.
func (s Signature) recoveryID() (uint8, error) {
	switch s.V {
	case 0, 1:
		return s.V, nil
	case 27, 28:
		return s.V - 27, nil
	default:
		return 0, fmt.Errorf("%w: recovery id %d", ErrMalformedSignature, s.V)
	}
}

// Signer manages an ECDSA key pair for signing orders and permits.
// Uses secp256k1 curve (Ethereum-compatible)
type Signer struct {
	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey
	address    common.Address
}

// GenerateKey creates a new random secp256k1 key pair
func GenerateKey() (*Signer, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to cast public key to ECDSA")
	}

	return &Signer{
		privateKey: privateKey,
		publicKey:  publicKey,
		address:    crypto.PubkeyToAddress(*publicKey),
	}, nil
}

// FromPrivateKeyHex creates a Signer from a hex-encoded private key
// (64 hex chars, no 0x prefix).
func FromPrivateKeyHex(hexKey string) (*Signer, error) {
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to cast public key to ECDSA")
	}

	return &Signer{
		privateKey: privateKey,
		publicKey:  publicKey,
		address:    crypto.PubkeyToAddress(*publicKey),
	}, nil
}

// Address returns the Ethereum address derived from the public key
func (s *Signer) Address() common.Address {
	return s.address
}

// PrivateKeyHex returns the private key as hex string (WITHOUT 0x prefix)
// WARNING: Keep this secret! Never expose to users or logs
func (s *Signer) PrivateKeyHex() string {
	return fmt.Sprintf("%x", crypto.FromECDSA(s.privateKey))
}

// Sign signs a 32-byte digest and returns the RSV signature with V in
// the 27/28 convention.
func (s *Signer) Sign(digest []byte) (Signature, error) {
	if len(digest) != 32 {
		return Signature{}, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}

	raw, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return Signature{}, fmt.Errorf("failed to sign: %w", err)
	}

	sig, err := SignatureFromBytes(raw)
	if err != nil {
		return Signature{}, err
	}
	sig.V += 27
	return sig, nil
}

// Recover recovers the signer address of digest from sig.
// Returns ErrMalformedSignature for structurally invalid signatures.
func Recover(digest []byte, sig Signature) (common.Address, error) {
	if len(digest) != 32 {
		return common.Address{}, fmt.Errorf("invalid digest length: %d", len(digest))
	}

	v, err := sig.recoveryID()
	if err != nil {
		return common.Address{}, err
	}

	raw := sig.Bytes()
	raw[64] = v

	publicKeyBytes, err := crypto.Ecrecover(digest, raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}

	publicKey, err := crypto.UnmarshalPubkey(publicKeyBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}

	return crypto.PubkeyToAddress(*publicKey), nil
}

// Verify reports whether sig over digest was produced by address.
func Verify(address common.Address, digest []byte, sig Signature) bool {
	recovered, err := Recover(digest, sig)
	if err != nil {
		return false
	}
	return recovered == address
}
