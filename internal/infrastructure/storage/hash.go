package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"MedMonitor/internal/domain"
)

// fieldSeparator keeps hashed components from bleeding into each other.
const fieldSeparator = "␟"

// URLHash is the durable identity key of a record: a deterministic hash of
// the canonical URL. At most one row per URL ever exists.
func URLHash(url string) string {
	return hashText(strings.ToLower(strings.TrimSpace(url)))
}

// ContentHash detects meaningful changes at a stable URL; it is a
// change-detector, not an identity key.
func ContentHash(title, summary, content string) string {
	parts := []string{
		strings.TrimSpace(title),
		strings.TrimSpace(summary),
		strings.TrimSpace(content),
	}
	return hashText(strings.Join(parts, fieldSeparator))
}

// Decide resolves the write policy for one incoming record against the
// existing row state: same URL and same content is a no-op duplicate, same
// URL with changed content is an update, and a previously unseen URL whose
// content already exists elsewhere is a cross-URL duplicate.
func Decide(urlRowFound bool, existingContentHash, incomingContentHash string, contentSeenElsewhere bool) domain.InsertOutcome {
	if urlRowFound {
		if existingContentHash == incomingContentHash {
			return domain.OutcomeDuplicate
		}
		return domain.OutcomeUpdated
	}
	if contentSeenElsewhere {
		return domain.OutcomeDuplicate
	}
	return domain.OutcomeInserted
}

func hashText(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
