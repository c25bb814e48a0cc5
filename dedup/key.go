package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Key derives the coalescing key of a generation from the backend identity
// and the normalized input parts. Parts are JSON encoded, so map keys are
// ordered and struct field order is stable.
func Key(backend string, parts ...any) (string, error) {
	body, err := json.Marshal(struct {
		Backend string `json:"backend"`
		Parts   []any  `json:"parts"`
	}{Backend: backend, Parts: parts})
	if err != nil {
		return "", fmt.Errorf("encode dedup key: %w", err)
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}
