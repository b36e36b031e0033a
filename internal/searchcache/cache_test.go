package searchcache

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/gridskin/gridskin/internal/models"
)

type fakeSearcher struct {
	calls   int32
	results map[string][]models.GridCandidate
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, name string) ([]models.GridCandidate, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[name], nil
}

func candidates(ids ...int64) []models.GridCandidate {
	out := make([]models.GridCandidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.GridCandidate{ID: id})
	}
	return out
}

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Shovel Knight", "shovel knight"},
		{"  Shovel   Knight  ", "shovel knight"},
		{"SHOVEL\tKNIGHT", "shovel knight"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestLookup_cachesSecondCall(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]models.GridCandidate{
		"shovel knight": candidates(1, 2, 3),
	}}
	c := New(searcher, 16)

	first, err := c.Lookup(context.Background(), "Shovel Knight")
	if err != nil {
		t.Fatal(err)
	}
	// Different spelling, same normalized key: must hit the cache.
	second, err := c.Lookup(context.Background(), "  shovel   KNIGHT ")
	if err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&searcher.calls) != 1 {
		t.Errorf("expected exactly 1 searcher call, got %d", searcher.calls)
	}
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("unexpected result lengths: %d, %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("ranking order changed between lookups at %d", i)
		}
	}
}

func TestLookup_errorNotCached(t *testing.T) {
	searcher := &fakeSearcher{err: models.Errf(models.ErrServer, "boom")}
	c := New(searcher, 16)

	if _, err := c.Lookup(context.Background(), "celeste"); err == nil {
		t.Fatal("expected error")
	}
	searcher.err = nil
	searcher.results = map[string][]models.GridCandidate{"celeste": candidates(9)}
	got, err := c.Lookup(context.Background(), "celeste")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != 9 {
		t.Errorf("retry after failure should succeed, got %+v", got)
	}
	if atomic.LoadInt32(&searcher.calls) != 2 {
		t.Errorf("expected 2 searcher calls, got %d", searcher.calls)
	}
}

func TestLookup_emptyQuery(t *testing.T) {
	c := New(&fakeSearcher{}, 16)
	_, err := c.Lookup(context.Background(), "   ")
	if models.KindOf(err) != models.ErrNotFound {
		t.Errorf("expected not_found for empty query, got %v", err)
	}
}

func TestLookup_lruEviction(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]models.GridCandidate{
		"a": candidates(1), "b": candidates(2), "c": candidates(3),
	}}
	c := New(searcher, 2)

	for _, q := range []string{"a", "b", "c"} { // "a" evicted by "c"
		if _, err := c.Lookup(context.Background(), q); err != nil {
			t.Fatal(err)
		}
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 cached queries, got %d", c.Len())
	}
	if _, err := c.Lookup(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&searcher.calls) != 4 {
		t.Errorf("evicted query should hit searcher again, got %d calls", searcher.calls)
	}
}
