// Package catalog provides the static exercise illustration catalog and a
// simple, deterministic, concurrency-safe resolver over it. It is
// intentionally small and dependency-free:
//
//   - No logging in the library (callers decide how/what to log)
//   - Unicode-aware tokenization
//   - Immutable, read-only catalog after construction (safe for concurrent use)
//   - Deterministic scoring and tie-breaking (stable resolution for ties)
//
// Resolution is two-phase: an exact canonical-name lookup first, then a fuzzy
// match using Jaccard similarity between the query token set and each entry's
// name token set: score = |Q ∩ E| / |Q ∪ E|.
package catalog

import (
	"regexp"
	"strings"
)

// minFuzzyScore is the Jaccard similarity below which a fuzzy match is
// rejected and the illustration key is left unresolved.
const minFuzzyScore = 0.5

type entry struct {
	name   string
	key    string
	tokens map[string]struct{}
	tLen   int
}

// Catalog maps canonical exercise names to illustration keys and answers
// membership queries for raw keys. Immutable after construction.
type Catalog struct {
	keys      map[string]struct{}
	canonical map[string]string
	entries   []entry
}

// New builds a Catalog from canonical-name → illustration-key pairs.
func New(byName map[string]string) *Catalog {
	c := &Catalog{
		keys:      make(map[string]struct{}, len(byName)),
		canonical: make(map[string]string, len(byName)),
		entries:   make([]entry, 0, len(byName)),
	}
	for name, key := range byName {
		norm := normalizeName(name)
		if norm == "" || key == "" {
			continue
		}
		c.keys[key] = struct{}{}
		c.canonical[norm] = key
		toks := tokenize(norm)
		if len(toks) == 0 {
			continue
		}
		c.entries = append(c.entries, entry{name: norm, key: key, tokens: toks, tLen: len(toks)})
	}
	return c
}

// Has reports whether key is a member of the catalog.
func (c *Catalog) Has(key string) bool {
	_, ok := c.keys[key]
	return ok
}

// Resolve maps an exercise name to an illustration key: canonical lookup
// first, fuzzy match second. The boolean reports whether a key was found.
func (c *Catalog) Resolve(name string) (string, bool) {
	norm := normalizeName(name)
	if norm == "" {
		return "", false
	}
	if key, ok := c.canonical[norm]; ok {
		return key, true
	}
	return c.fuzzy(norm)
}

// fuzzy returns the best-scoring entry at or above minFuzzyScore. Ties are
// broken by shorter entry name, then lexicographic key, so resolution is
// stable across runs.
func (c *Catalog) fuzzy(norm string) (string, bool) {
	qTokens := tokenize(norm)
	if len(qTokens) == 0 {
		return "", false
	}
	qLen := len(qTokens)

	bestKey := ""
	bestName := ""
	bestScore := 0.0
	for _, e := range c.entries {
		over := overlap(qTokens, e.tokens)
		if over == 0 {
			continue
		}
		union := float64(qLen + e.tLen - over)
		if union <= 0 {
			continue
		}
		score := float64(over) / union
		if score < bestScore {
			continue
		}
		if score == bestScore {
			if len(e.name) > len(bestName) {
				continue
			}
			if len(e.name) == len(bestName) && e.key >= bestKey {
				continue
			}
		}
		bestScore, bestKey, bestName = score, e.key, e.name
	}
	if bestScore < minFuzzyScore {
		return "", false
	}
	return bestKey, true
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

func tokenize(s string) map[string]struct{} {
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w != "" {
			out[w] = struct{}{}
		}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' || r == '-' || r == '_' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
