package spatial

import (
	"testing"

	"github.com/kestrel-engine/streamforge/internal/assetmodel"
)

type assetID = assetmodel.ID

func contains(ids []assetID, id assetID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestInsertAndQueryRadiusFindsNearby(t *testing.T) {
	idx := NewIndex(1000)
	idx.Insert(1, Point{X: 10, Y: 0, Z: 0}, 2)
	idx.Insert(2, Point{X: 500, Y: 500, Z: 500}, 2)

	got := idx.QueryRadius(Point{X: 0, Y: 0, Z: 0}, 20, 100)
	if !contains(got, 1) {
		t.Fatalf("expected asset 1 in query result, got %v", got)
	}
	if contains(got, 2) {
		t.Fatalf("did not expect distant asset 2 in query result, got %v", got)
	}
}

func TestQueryRadiusRespectsMax(t *testing.T) {
	idx := NewIndex(1000)
	for i := assetID(0); i < 200; i++ {
		idx.Insert(i, Point{}, 1)
	}
	got := idx.QueryRadius(Point{}, 5, 10)
	if len(got) != 10 {
		t.Fatalf("len(got) = %d, want 10", len(got))
	}
}

func TestInsertTriggersSubdivision(t *testing.T) {
	idx := NewIndex(1000)
	for i := assetID(0); i < maxPerNode+10; i++ {
		idx.Insert(i, Point{X: float64(i), Y: 0, Z: 0}, 0.1)
	}
	if len(idx.nodes) <= 1 {
		t.Fatal("expected root to have subdivided after exceeding maxPerNode")
	}

	got := idx.QueryRadius(Point{}, 2000, 1000)
	seen := make(map[assetID]bool)
	for _, id := range got {
		seen[id] = true
	}
	if len(seen) != maxPerNode+10 {
		t.Fatalf("found %d unique assets after subdivision, want %d", len(seen), maxPerNode+10)
	}
}

func TestQueryRadiusExcludesFarNode(t *testing.T) {
	idx := NewIndex(1000)
	idx.Insert(1, Point{X: 900, Y: 900, Z: 900}, 1)

	got := idx.QueryRadius(Point{X: -900, Y: -900, Z: -900}, 10, 10)
	if len(got) != 0 {
		t.Fatalf("expected no results, got %v", got)
	}
}
