package vatr

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hash computes the SHA-256 of the canonical JSON serialization of v.
// Canonicalization (lexicographically sorted object keys) is mandatory:
// an order-dependent serialization would break verification across
// implementations. The round trip through an untyped value forces
// encoding/json's sorted map-key output for every object, including
// struct fields.
func Hash(v any) (string, error) {
	canonical, err := canonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("vatr: marshal: %w", err)
	}
	var norm any
	if err := json.Unmarshal(raw, &norm); err != nil {
		return nil, fmt.Errorf("vatr: normalize: %w", err)
	}
	canonical, err := json.Marshal(norm)
	if err != nil {
		return nil, fmt.Errorf("vatr: canonical marshal: %w", err)
	}
	return canonical, nil
}
