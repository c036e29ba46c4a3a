// Package sigverify implements the signature scheme shared by agents and
// validators: canonical JSON encoding, Keccak-256 digests, and compact
// secp256k1 signatures carrying a recovery id.
package sigverify

import (
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// CanonicalJSON encodes v as compact UTF-8 JSON with lexicographically
// sorted object keys. Signer and verifier must produce byte-identical
// encodings, so the value is round-tripped through a generic decode: Go's
// encoding/json emits map keys in sorted order, which fixes the encoding
// regardless of struct field order.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("normalize payload: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("re-marshal payload: %w", err)
	}
	return out, nil
}

// Keccak256 returns the legacy Keccak-256 hash of the input data.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// HashMessage canonically encodes v and returns its Keccak-256 digest.
func HashMessage(v interface{}) ([]byte, error) {
	enc, err := CanonicalJSON(v)
	if err != nil {
		return nil, err
	}
	return Keccak256(enc), nil
}
