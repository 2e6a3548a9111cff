package store

import (
	"context"
	"errors"
	"testing"

	"lorekeeper/internal/entity"
)

type sliceLister map[entity.Kind][]entity.Entity

func (s sliceLister) List(ctx context.Context, storyID string, kind entity.Kind) ([]entity.Entity, error) {
	return s[kind], nil
}

func TestSearchTerms(t *testing.T) {
	got := SearchTerms("Who is Yunjae's sister, yunjae?")
	expected := []string{"who", "is", "yunjae", "s", "sister"}
	if len(got) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, got)
		}
	}
	if len(SearchTerms(" ?! ")) != 0 {
		t.Fatalf("expected punctuation-only query to have no terms")
	}
}

func TestScoreMatchesWordPrefixes(t *testing.T) {
	record := &entity.Character{Name: "Yunjae", Role: "swordsman", Background: "윤재는 은빛 골짜기 출신"}
	score, matched := Score([]string{"sword", "윤재", "mage"}, record)
	if score != 2 {
		t.Fatalf("expected 2 matched terms, got %d (%v)", score, matched)
	}
	if matched[0] != "sword" || matched[1] != "윤재" {
		t.Fatalf("expected matched terms in query order, got %v", matched)
	}
}

func TestSearchByListingRanksAndFilters(t *testing.T) {
	records := sliceLister{
		entity.KindCharacter: {
			&entity.Character{Name: "Mira", Role: "healer"},
			&entity.Character{Name: "Yunjae", Role: "swordsman", Background: "raised in Silver Hollow"},
		},
		entity.KindWorldElement: {
			&entity.WorldElement{Title: "Silver Hollow", Description: "a valley of silver mines"},
		},
	}

	results, err := SearchByListing(context.Background(), records, "novel", "silver hollow", "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Kind != entity.KindCharacter || results[0].Key != "yunjae" {
		t.Fatalf("expected equal scores ordered by kind, got %s %q first", results[0].Kind, results[0].Key)
	}
	if results[0].Score != 2 || results[1].Score != 2 {
		t.Fatalf("expected both results to match both terms, got %d and %d", results[0].Score, results[1].Score)
	}

	results, err = SearchByListing(context.Background(), records, "novel", "silver", entity.KindWorldElement)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Name != "Silver Hollow" {
		t.Fatalf("expected kind filter to keep only the world element, got %+v", results)
	}

	if _, err := SearchByListing(context.Background(), records, "novel", "  ", ""); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestRankCapsResults(t *testing.T) {
	results := make([]SearchResult, SearchLimit+5)
	for i := range results {
		results[i] = SearchResult{Kind: entity.KindCharacter, Score: i % 3}
	}
	ranked := Rank(results)
	if len(ranked) != SearchLimit {
		t.Fatalf("expected %d results, got %d", SearchLimit, len(ranked))
	}
	if ranked[0].Score != 2 {
		t.Fatalf("expected highest score first, got %d", ranked[0].Score)
	}
	if got := Rank(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}
