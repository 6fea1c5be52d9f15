package authority

import (
	"context"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// suggestLimit caps SuggestSubjects results.
const suggestLimit = 10

// suggestCacheSize bounds the suggestion cache. Usage counts shift on every
// normalization, so the cache is purged on write rather than expired.
const suggestCacheSize = 256

// Service is the authority control service: it canonicalizes labels against
// the built-in synonym table and the authority store, and answers subject
// suggestions.
type Service struct {
	store       *Store
	suggestions *lru.Cache[string, []string]
}

// NewService creates the authority service over a store.
func NewService(store *Store) *Service {
	cache, _ := lru.New[string, []string](suggestCacheSize)
	return &Service{store: store, suggestions: cache}
}

// NormalizeSubject canonicalizes a raw subject label. Resolution order:
// built-in synonym table, stored canonical or variant, then title-casing
// with small-word exceptions. In every path the canonical is persisted with
// the raw form as a variant, and the usage count is incremented once per
// call (callers deduplicate per resource tag).
func (s *Service) NormalizeSubject(ctx context.Context, raw string) (string, error) {
	cleaned := cleanLabel(raw)
	if cleaned == "" {
		return "", nil
	}

	canonical, ok := lookupSynonym(cleaned)
	if !ok {
		var err error
		canonical, ok, err = s.store.Lookup(ctx, cleaned)
		if err != nil {
			return "", err
		}
	}
	if !ok {
		canonical = titleCase(cleaned)
	}

	if err := s.store.Record(ctx, canonical, cleaned, true); err != nil {
		return "", err
	}
	s.suggestions.Purge()
	return canonical, nil
}

// NormalizeSubjects canonicalizes a tag list, deduplicating canonicals
// while preserving first-seen order.
func (s *Service) NormalizeSubjects(ctx context.Context, raws []string) ([]string, error) {
	seen := make(map[string]bool, len(raws))
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		canonical, err := s.NormalizeSubject(ctx, raw)
		if err != nil {
			return nil, err
		}
		if canonical == "" || seen[canonical] {
			continue
		}
		seen[canonical] = true
		out = append(out, canonical)
	}
	return out, nil
}

// SuggestSubjects returns up to 10 canonical labels matching the prefix as
// a substring: the union of built-in synonym targets and stored canonicals,
// ordered by usage count descending then canonical ascending.
func (s *Service) SuggestSubjects(ctx context.Context, prefix string) ([]string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return []string{}, nil
	}
	needle := strings.ToLower(prefix)

	if cached, ok := s.suggestions.Get(needle); ok {
		return cached, nil
	}

	merged := make(map[string]int)

	stored, err := s.store.Search(ctx, prefix, suggestLimit*2)
	if err != nil {
		return nil, err
	}
	for _, sg := range stored {
		merged[sg.Canonical] = sg.UsageCount
	}

	for abbrev, canonical := range builtinSynonyms {
		if !strings.Contains(strings.ToLower(canonical), needle) &&
			!strings.Contains(abbrev, needle) {
			continue
		}
		if _, ok := merged[canonical]; !ok {
			count, err := s.store.UsageCount(ctx, canonical)
			if err != nil {
				return nil, err
			}
			merged[canonical] = count
		}
	}

	type entry struct {
		canonical string
		count     int
	}
	entries := make([]entry, 0, len(merged))
	for c, n := range merged {
		entries = append(entries, entry{c, n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].canonical < entries[j].canonical
	})

	out := make([]string, 0, suggestLimit)
	for _, e := range entries {
		out = append(out, e.canonical)
		if len(out) == suggestLimit {
			break
		}
	}
	s.suggestions.Add(needle, out)
	return out, nil
}
