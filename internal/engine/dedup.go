package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

// KeyFunc derives the identity key of a record. An empty key means the
// record has no identity and is discarded.
type KeyFunc func(rec *types.ProductRecord) string

// NormalizedName keys records by their lowercased, whitespace-collapsed name.
func NormalizedName(rec *types.ProductRecord) string {
	return strings.Join(strings.Fields(strings.ToLower(rec.Name)), " ")
}

// Deduplicator tracks record keys that have already been emitted.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]struct{}
	key  KeyFunc
}

// NewDeduplicator creates a new deduplicator. A nil key defaults to
// NormalizedName.
func NewDeduplicator(expectedSize int, key KeyFunc) *Deduplicator {
	if key == nil {
		key = NormalizedName
	}
	return &Deduplicator{
		seen: make(map[string]struct{}, expectedSize),
		key:  key,
	}
}

// MarkSeen registers rec and reports whether it was new. Records without a
// key are never new.
func (d *Deduplicator) MarkSeen(rec *types.ProductRecord) bool {
	k := d.key(rec)
	if k == "" {
		return false
	}
	h := hashKey(k)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[h]; ok {
		return false
	}
	d.seen[h] = struct{}{}
	return true
}

// Dedupe returns one record per key, keeping the most recently captured
// one. The result is ordered newest first; ties keep their input order.
// The returned records are clones, so neither the input slice nor its
// pointed-to values are shared with the result.
func Dedupe(records []types.ProductRecord, key KeyFunc) []types.ProductRecord {
	sorted := make([]types.ProductRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CapturedAt.After(sorted[j].CapturedAt)
	})

	d := NewDeduplicator(len(sorted), key)
	out := make([]types.ProductRecord, 0, len(sorted))
	for i := range sorted {
		if d.MarkSeen(&sorted[i]) {
			out = append(out, sorted[i].Clone())
		}
	}
	return out
}

func hashKey(k string) string {
	h := sha256.Sum256([]byte(k))
	return hex.EncodeToString(h[:16])
}
