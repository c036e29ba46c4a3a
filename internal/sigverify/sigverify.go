package sigverify

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// signatureLength is the compact signature size: 1 recovery byte + R + S.
const signatureLength = 65

// Verify recovers the signer of message from signature and compares it to
// the claimed identity, case-insensitively. It is a pure check: malformed
// input of any kind yields false, never an error, so callers can treat a
// bad signature as an ordinary validation outcome.
func Verify(identity string, message interface{}, signature string) bool {
	hash, err := HashMessage(message)
	if err != nil {
		return false
	}
	recovered, err := RecoverAddress(hash, signature)
	if err != nil {
		return false
	}
	return strings.EqualFold(recovered, identity)
}

// RecoverAddress recovers the signing address from a hex compact signature
// over the given digest.
func RecoverAddress(hash []byte, signature string) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != signatureLength {
		return "", fmt.Errorf("signature must be %d bytes, got %d", signatureLength, len(sig))
	}
	pub, _, err := secpecdsa.RecoverCompact(sig, hash)
	if err != nil {
		return "", fmt.Errorf("recover pubkey: %w", err)
	}
	return PubkeyToAddress(pub), nil
}

// PubkeyToAddress derives the hex address from a public key: the last 20
// bytes of the Keccak-256 hash of the uncompressed key without its prefix
// byte.
func PubkeyToAddress(pub *secp256k1.PublicKey) string {
	raw := pub.SerializeUncompressed()
	return "0x" + hex.EncodeToString(Keccak256(raw[1:])[12:])
}

// Signer signs canonical payloads with a secp256k1 private key. The
// attestation pipeline uses one for the validator identity; tests use them
// for synthetic agents.
type Signer struct {
	key *secp256k1.PrivateKey
}

// NewSigner parses a hex-encoded private key.
func NewSigner(hexKey string) (*Signer, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(raw))
	}
	return &Signer{key: secp256k1.PrivKeyFromBytes(raw)}, nil
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	return &Signer{key: key}, nil
}

// Address returns the signer's hex address.
func (s *Signer) Address() string {
	return PubkeyToAddress(s.key.PubKey())
}

// Sign canonically encodes message and returns the hex compact signature
// over its Keccak-256 digest.
func (s *Signer) Sign(message interface{}) (string, error) {
	hash, err := HashMessage(message)
	if err != nil {
		return "", err
	}
	sig := secpecdsa.SignCompact(s.key, hash, false)
	return "0x" + hex.EncodeToString(sig), nil
}
