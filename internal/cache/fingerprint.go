package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/tradecoach-platform/tradecoach/internal/provider"
)

// Fingerprint deterministically hashes the ordered (role, content) message
// list. Any change to content, role, or message order produces a different
// fingerprint; identical histories always produce the same one.
func Fingerprint(messages []provider.Message) string {
	// provider.Message has fixed field order, so json.Marshal is
	// deterministic for the same input.
	data, _ := json.Marshal(messages)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
