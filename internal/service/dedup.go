package service

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const dedupDescriptionMax = 100

// DedupKeys identifies one upstream transaction for duplicate detection.
// Genuine is false when ExternalID was synthesized from the content.
type DedupKeys struct {
	ExternalID string
	DedupKey   string
	Genuine    bool
}

// ComputeDedupKeys derives the external id and dedup key for a record.
func ComputeDedupKeys(upstreamID string, date time.Time, amount decimal.Decimal, description string) DedupKeys {
	day := date.UTC().Format(time.DateOnly)
	abs := amount.Abs().StringFixed(2)
	if id := strings.TrimSpace(upstreamID); id != "" {
		return DedupKeys{ExternalID: id, DedupKey: "ext:" + id, Genuine: true}
	}
	norm := normalizeDedupDescription(description)
	return DedupKeys{
		ExternalID: "syn:" + hashSource(day, abs, norm),
		DedupKey:   "comp:" + day + "|" + abs + "|" + norm,
	}
}

// normalizeDedupDescription lowercases, trims, collapses whitespace and
// truncates to 100 characters.
func normalizeDedupDescription(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	if utf8.RuneCountInString(s) <= dedupDescriptionMax {
		return s
	}
	return string([]rune(s)[:dedupDescriptionMax])
}

func hashSource(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%x", sum[:16])
}

// DuplicateIndex answers the two tenant-scoped existence queries.
type DuplicateIndex interface {
	ExistsByExternalID(ctx context.Context, organizationID, externalID string) (bool, error)
	ExistsByDedupKey(ctx context.Context, organizationID, dedupKey string) (bool, error)
}

// IsDuplicate checks the external id first, then the dedup key.
func IsDuplicate(ctx context.Context, idx DuplicateIndex, organizationID string, keys DedupKeys) (bool, error) {
	found, err := idx.ExistsByExternalID(ctx, organizationID, keys.ExternalID)
	if err != nil || found {
		return found, err
	}
	return idx.ExistsByDedupKey(ctx, organizationID, keys.DedupKey)
}
