package vecindex

import (
	"context"
	"errors"
	"math"
	"testing"
)

// unit returns the 2D unit vector at the given angle, so distances in
// tests are exact by construction.
func unit(angle float64) []float32 {
	return []float32{float32(math.Cos(angle)), float32(math.Sin(angle))}
}

func mustFlat(t *testing.T, vectors [][]float32) *Flat {
	t.Helper()
	idx, err := NewFlat(0)
	if err != nil {
		t.Fatalf("NewFlat failed: %v", err)
	}
	if err := idx.Add(context.Background(), vectors); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	return idx
}

func TestFlatSearchOrdering(t *testing.T) {
	// Angles ordered so vector 2 is nearest the query, then 0, 1, 3.
	idx := mustFlat(t, [][]float32{
		unit(0.3),
		unit(1.0),
		unit(0.05),
		unit(2.0),
	})

	hits, err := idx.Search(context.Background(), unit(0), 4)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	wantOrder := []int64{2, 0, 1, 3}
	if len(hits) != len(wantOrder) {
		t.Fatalf("expected %d hits, got %d", len(wantOrder), len(hits))
	}
	for i, want := range wantOrder {
		if hits[i].ID != want {
			t.Errorf("hit %d: id %d, want %d", i, hits[i].ID, want)
		}
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Distance < hits[i-1].Distance {
			t.Errorf("distances not ascending at %d: %v then %v", i, hits[i-1].Distance, hits[i].Distance)
		}
	}
}

func TestFlatSearchTieBreaksByLowerID(t *testing.T) {
	v := unit(0.7)
	idx := mustFlat(t, [][]float32{unit(1.5), v, unit(2.2), v})

	hits, err := idx.Search(context.Background(), unit(0.7), 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if hits[0].ID != 1 || hits[1].ID != 3 {
		t.Errorf("equal distances must order by id: got %d, %d", hits[0].ID, hits[1].ID)
	}
	if hits[0].Distance != hits[1].Distance {
		t.Errorf("expected identical distances, got %v and %v", hits[0].Distance, hits[1].Distance)
	}
}

func TestFlatSearchKLargerThanSize(t *testing.T) {
	idx := mustFlat(t, [][]float32{unit(0.1), unit(0.2)})

	hits, err := idx.Search(context.Background(), unit(0), 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("expected all 2 hits, got %d", len(hits))
	}
}

func TestFlatSearchBadK(t *testing.T) {
	idx := mustFlat(t, [][]float32{unit(0.1)})

	for _, k := range []int{0, -1} {
		if _, err := idx.Search(context.Background(), unit(0), k); !errors.Is(err, ErrBadK) {
			t.Errorf("k=%d: got %v, want ErrBadK", k, err)
		}
	}
}

func TestFlatSearchEmptyIndex(t *testing.T) {
	idx, err := NewFlat(0)
	if err != nil {
		t.Fatalf("NewFlat failed: %v", err)
	}

	hits, err := idx.Search(context.Background(), unit(0), 5)
	if err != nil {
		t.Fatalf("empty index search must not fail: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits from empty index, got %d", len(hits))
	}
}

func TestFlatDimensionMismatch(t *testing.T) {
	idx := mustFlat(t, [][]float32{unit(0.1)})

	if err := idx.Add(context.Background(), [][]float32{{1, 0, 0}}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Add: got %v, want ErrDimensionMismatch", err)
	}
	if _, err := idx.Search(context.Background(), []float32{1, 0, 0}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Search: got %v, want ErrDimensionMismatch", err)
	}
}

func TestFlatDeferredDimension(t *testing.T) {
	idx, err := NewFlat(0)
	if err != nil {
		t.Fatalf("NewFlat failed: %v", err)
	}
	if idx.Dimension() != 0 || idx.Size() != 0 {
		t.Fatalf("fresh index: dim %d size %d", idx.Dimension(), idx.Size())
	}

	if err := idx.Add(context.Background(), [][]float32{unit(0.4)}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if idx.Dimension() != 2 {
		t.Errorf("first Add should fix dimension to 2, got %d", idx.Dimension())
	}
	if idx.Size() != 1 {
		t.Errorf("expected size 1, got %d", idx.Size())
	}
}

func TestFlatSearchDeterministic(t *testing.T) {
	idx := mustFlat(t, [][]float32{unit(0.9), unit(0.2), unit(1.4), unit(0.6)})

	first, err := idx.Search(context.Background(), unit(0.5), 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for run := 0; run < 5; run++ {
		again, err := idx.Search(context.Background(), unit(0.5), 3)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		for i := range first {
			if again[i] != first[i] {
				t.Fatalf("run %d differs at %d: %+v vs %+v", run, i, again[i], first[i])
			}
		}
	}
}
