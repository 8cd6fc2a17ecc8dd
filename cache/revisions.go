package cache

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saiset-co/kodespace/types"
)

const (
	revisionPrefix = "rev:"
	revisionTTL    = 24 * time.Hour
)

// Revisions tracks a version token per dependency name in a CacheStore.
// Response cache keys embed the tokens of their dependencies, so bumping a
// dependency makes every entry built on it unreachable.
type Revisions struct {
	store types.CacheStore
}

func NewRevisions(store types.CacheStore) *Revisions {
	return &Revisions{store: store}
}

// Current returns the tokens of deps in sorted dependency order, joined by
// commas. Unknown dependencies contribute "0".
func (r *Revisions) Current(deps []string) string {
	if len(deps) == 0 {
		return ""
	}

	sorted := append([]string(nil), deps...)
	sort.Strings(sorted)

	parts := make([]string, 0, len(sorted))
	for _, dep := range sorted {
		token, ok := GetAs[string](r.store, revisionPrefix+dep)
		if !ok {
			token = "0"
		}
		parts = append(parts, dep+"="+token)
	}

	return strings.Join(parts, ",")
}

func (r *Revisions) Bump(deps ...string) {
	for _, dep := range deps {
		r.store.Set(revisionPrefix+dep, uuid.NewString(), revisionTTL)
	}
}
