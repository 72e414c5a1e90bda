// Package vocabulary implements the Vocabulary Extractor (spec §4.J):
// derives the Strong Head / Qualified Head / Qualifier sets downstream
// NLP matchers consume from a Master taxonomy's hierarchy. Concurrent
// fan-out across node pages is grounded on the gnames-gndb
// hierarchy-builder's errgroup pattern (other_examples).
package vocabulary

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/healthtax/taxcore/internal/storage"
	"github.com/healthtax/taxcore/internal/types"
)

// seedTerms are the generic profession-family words every Qualified
// Head is built from (spec §4.J).
var seedTerms = []string{
	"nurse", "therapist", "counselor", "specialist", "coordinator",
	"manager", "worker", "navigator", "assistant", "associate",
}

const (
	strongHeadMinLevel    = 4
	strongHeadMinTokens   = 2
	qualifiedHeadMinLevel = 3
	qualifierMaxLevel     = 3
	pageSize              = 256
)

// Extractor builds and caches VocabularySets per master-taxonomy-id.
type Extractor struct {
	store storage.Store
	ttl   time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	set       types.VocabularySet
	expiresAt time.Time
}

// NewExtractor constructs an Extractor. ttl is how long a
// master-taxonomy-id's set is reused before being rebuilt from
// storage; a non-positive ttl disables caching.
func NewExtractor(store storage.Store, ttl time.Duration) *Extractor {
	return &Extractor{store: store, ttl: ttl, cache: make(map[string]cacheEntry)}
}

// Extract returns the vocabulary set for masterTaxonomyID, rebuilding
// it from the current active node set when absent or expired.
func (e *Extractor) Extract(ctx context.Context, masterTaxonomyID string) (types.VocabularySet, error) {
	if e.ttl > 0 {
		e.mu.Lock()
		entry, ok := e.cache[masterTaxonomyID]
		e.mu.Unlock()
		if ok && time.Now().Before(entry.expiresAt) {
			return entry.set, nil
		}
	}

	nodes, err := e.store.MasterNodesForVocabulary(ctx, e.store.Pool(), masterTaxonomyID)
	if err != nil {
		return types.VocabularySet{}, fmt.Errorf("load master nodes for vocabulary: %w", err)
	}

	set, err := build(ctx, nodes)
	if err != nil {
		return types.VocabularySet{}, err
	}

	if e.ttl > 0 {
		e.mu.Lock()
		e.cache[masterTaxonomyID] = cacheEntry{set: set, expiresAt: time.Now().Add(e.ttl)}
		e.mu.Unlock()
	}
	return set, nil
}

// build computes the three sets from nodes. Strong Heads and the
// plain portion of Qualifiers/Qualified Heads are independent of each
// other and are fanned out across pages of nodes with errgroup; the
// "prefix preceding a strong head" pass over Qualifiers runs after,
// since it depends on the finished Strong Heads set.
func build(ctx context.Context, nodes []types.Node) (types.VocabularySet, error) {
	strongHeads := make(map[string]struct{})
	qualifiedHeads := make(map[string]struct{})
	for _, t := range seedTerms {
		qualifiedHeads[t] = struct{}{}
	}
	qualifiers := make(map[string]struct{})
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	for start := 0; start < len(nodes); start += pageSize {
		end := start + pageSize
		if end > len(nodes) {
			end = len(nodes)
		}
		page := nodes[start:end]
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
			}

			localStrong := make(map[string]struct{})
			localQualified := make(map[string]struct{})
			localQualifiers := make(map[string]struct{})

			for _, n := range page {
				if n.NodeTypeID == types.NAPlaceholderTypeID || n.Status != types.StatusActive {
					continue
				}
				lower := strings.ToLower(strings.TrimSpace(n.Value))
				if lower == "" {
					continue
				}
				tokens := strings.Fields(lower)

				if n.Level >= strongHeadMinLevel && len(tokens) >= strongHeadMinTokens {
					localStrong[lower] = struct{}{}
				}

				if n.Level >= qualifiedHeadMinLevel && containsSeedTerm(lower) {
					if len(tokens) >= 1 {
						localQualified[tokens[len(tokens)-1]] = struct{}{}
					}
					if len(tokens) >= 2 {
						localQualified[strings.Join(tokens[len(tokens)-2:], " ")] = struct{}{}
					}
				}

				if n.Level <= qualifierMaxLevel {
					localQualifiers[lower] = struct{}{}
				}
			}

			mu.Lock()
			mergeInto(strongHeads, localStrong)
			mergeInto(qualifiedHeads, localQualified)
			mergeInto(qualifiers, localQualifiers)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.VocabularySet{}, fmt.Errorf("extract vocabulary: %w", err)
	}

	for _, n := range nodes {
		if n.NodeTypeID == types.NAPlaceholderTypeID || n.Status != types.StatusActive {
			continue
		}
		lower := strings.ToLower(strings.TrimSpace(n.Value))
		for head := range strongHeads {
			if prefix, ok := prefixBeforeHead(lower, head); ok {
				qualifiers[prefix] = struct{}{}
			}
		}
	}

	return types.VocabularySet{
		StrongHeads:    strongHeads,
		QualifiedHeads: qualifiedHeads,
		Qualifiers:     qualifiers,
	}, nil
}

func containsSeedTerm(lower string) bool {
	for _, t := range seedTerms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// prefixBeforeHead reports whether head occurs inside value as a
// proper substring with non-empty text preceding it, returning that
// trimmed preceding text as a qualifier candidate.
func prefixBeforeHead(value, head string) (string, bool) {
	idx := strings.Index(value, head)
	if idx <= 0 {
		return "", false
	}
	prefix := strings.TrimSpace(value[:idx])
	if prefix == "" {
		return "", false
	}
	return prefix, true
}

func mergeInto(dst, src map[string]struct{}) {
	for k := range src {
		dst[k] = struct{}{}
	}
}
