package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/chazu/kerf/pkg/feature"
)

// keyInput is the canonical document hashed by Key. Struct field order is
// fixed and encoding/json sorts map keys, so equal inputs encode equally.
type keyInput struct {
	Element  feature.Element   `json:"element"`
	Features []feature.Feature `json:"features"`
}

// Key derives the cache key for applying fs to el.
// Format: geom:<elementID>:<hash>
// where hash is the first 32 hex characters of SHA-256(canonical JSON).
// Features are put in canonical order first, so any permutation of fs
// yields the same key.
func Key(el feature.Element, fs []feature.Feature) (string, error) {
	sorted, err := feature.Sorted(fs)
	if err != nil {
		return "", fmt.Errorf("cache: failed to order features: %w", err)
	}
	canonical, err := json.Marshal(keyInput{Element: el, Features: sorted})
	if err != nil {
		return "", fmt.Errorf("cache: failed to canonicalize input: %w", err)
	}
	hash := sha256.Sum256(canonical)
	return fmt.Sprintf("geom:%s:%s", el.ID, hex.EncodeToString(hash[:16])), nil
}
