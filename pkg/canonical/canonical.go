// Package canonical provides RFC 8785 (JSON Canonicalization Scheme)
// serialization and SHA-256 hashing for proof bundles. Hash inputs must be
// byte-stable across processes, so all hashing goes through Transform.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// GenesisHash is the previous-hash value of the first proof in a chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Marshal returns the RFC 8785 canonical JSON encoding of v:
// keys sorted by UTF-16 code units, no insignificant whitespace,
// no HTML escaping.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}

	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical: transform: %w", err)
	}

	return out, nil
}

// Hash returns the hex SHA-256 digest of the canonical encoding of v.
func Hash(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the hex SHA-256 digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
