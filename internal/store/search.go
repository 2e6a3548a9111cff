package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode"

	"lorekeeper/internal/entity"
)

// SearchLimit caps the number of results a search returns.
const SearchLimit = 50

var ErrEmptyQuery = errors.New("query must not be empty")

type SearchResult struct {
	Kind    entity.Kind   `json:"kind"`
	Key     string        `json:"key"`
	Name    string        `json:"name"`
	Score   int           `json:"score"`
	Matched []string      `json:"matched"`
	Record  entity.Entity `json:"record"`
}

// SearchTerms splits a query into distinct lowercase words. Punctuation
// separates words and is dropped.
func SearchTerms(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if seen[word] {
			continue
		}
		seen[word] = true
		terms = append(terms, word)
	}
	return terms
}

// Score counts the terms that start a word in the record's name or any of
// its text fields. Prefix matching lets "yunjae" find "yunjae's".
func Score(terms []string, e entity.Entity) (int, []string) {
	parts := []string{e.Identity()}
	for _, field := range e.Fields() {
		if s, ok := field.Value.(string); ok {
			parts = append(parts, s)
		}
	}
	words := SearchTerms(strings.Join(parts, " "))

	var matched []string
	for _, term := range terms {
		for _, word := range words {
			if strings.HasPrefix(word, term) {
				matched = append(matched, term)
				break
			}
		}
	}
	return len(matched), matched
}

// SearchKinds expands an optional kind filter.
func SearchKinds(kind entity.Kind) []entity.Kind {
	if kind == "" {
		return entity.Kinds
	}
	return []entity.Kind{kind}
}

// Collect scores records against terms and appends the ones that match.
func Collect(results []SearchResult, terms []string, records []entity.Entity) []SearchResult {
	for _, record := range records {
		score, matched := Score(terms, record)
		if score == 0 {
			continue
		}
		results = append(results, SearchResult{
			Kind:    record.Kind(),
			Key:     entity.Key(record),
			Name:    record.Identity(),
			Score:   score,
			Matched: matched,
			Record:  record,
		})
	}
	return results
}

// Rank orders results by score, then kind, then key, and applies SearchLimit.
func Rank(results []SearchResult) []SearchResult {
	order := make(map[entity.Kind]int, len(entity.Kinds))
	for i, kind := range entity.Kinds {
		order[kind] = i
	}
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Kind != b.Kind {
			return order[a.Kind] < order[b.Kind]
		}
		return a.Key < b.Key
	})
	if len(results) > SearchLimit {
		results = results[:SearchLimit]
	}
	if results == nil {
		results = []SearchResult{}
	}
	return results
}

type lister interface {
	List(ctx context.Context, storyID string, kind entity.Kind) ([]entity.Entity, error)
}

// SearchByListing scans every record of the requested kinds. Backends with
// no index of their own use it.
func SearchByListing(ctx context.Context, l lister, storyID, query string, kind entity.Kind) ([]SearchResult, error) {
	terms := SearchTerms(query)
	if len(terms) == 0 {
		return nil, ErrEmptyQuery
	}
	var results []SearchResult
	for _, k := range SearchKinds(kind) {
		records, err := l.List(ctx, storyID, k)
		if err != nil {
			return nil, err
		}
		results = Collect(results, terms, records)
	}
	return Rank(results), nil
}
