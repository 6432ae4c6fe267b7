package vectorindex

import (
	"context"
	"testing"
)

func TestMemoryInsertIsIdempotentByDocID(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()

	id1, _ := idx.Insert(ctx, "doc-1", []float32{1, 0, 0}, map[string]string{"lang": "en"})
	id2, _ := idx.Insert(ctx, "doc-1", []float32{0, 1, 0}, map[string]string{"lang": "hi"})

	if id1 != id2 {
		t.Fatalf("expected stable external id across re-insertion, got %s then %s", id1, id2)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected exactly one row per doc_id, got %d", idx.Len())
	}
}

func TestMemorySearchOrdersByDistanceAscending(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()
	idx.Insert(ctx, "far", []float32{10, 10, 10}, nil)
	idx.Insert(ctx, "near", []float32{0, 0, 1}, nil)
	idx.Insert(ctx, "mid", []float32{0, 2, 0}, nil)

	hits, err := idx.Search(ctx, []float32{0, 0, 0}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected top_k=2 hits, got %d", len(hits))
	}
	if hits[0].DocID != "near" || hits[1].DocID != "mid" {
		t.Fatalf("unexpected order: %+v", hits)
	}
}

func TestMemorySearchRespectsFilter(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()
	idx.Insert(ctx, "en-doc", []float32{0, 0}, map[string]string{"language": "en"})
	idx.Insert(ctx, "hi-doc", []float32{0, 0}, map[string]string{"language": "hi"})

	hits, err := idx.Search(ctx, []float32{0, 0}, 10, map[string]string{"language": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].DocID != "hi-doc" {
		t.Fatalf("filter not applied: %+v", hits)
	}
}

func TestMemoryDeleteRemovesDoc(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()
	idx.Insert(ctx, "doc", []float32{1}, nil)
	if err := idx.Delete(ctx, "doc"); err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 0 {
		t.Fatalf("expected 0 rows after delete, got %d", idx.Len())
	}
}
