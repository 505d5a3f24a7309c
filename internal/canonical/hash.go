package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix enables future
// algorithm migration without ambiguity against old hashes.
const (
	DomainRow      = "si/row/v1"
	DomainRelation = "si/relation/v1"
)

// HashWithDomain computes SHA256(domain + 0x00 + data). The null byte
// separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashPayload normalizes raw JSON and hashes the canonical bytes under the
// row domain. Equal payloads hash equal regardless of key order or string
// normalization form in the input.
func HashPayload(raw []byte) (string, error) {
	c, err := Normalize(raw)
	if err != nil {
		return "", fmt.Errorf("hash payload: %w", err)
	}
	return HashWithDomain(DomainRow, c), nil
}
