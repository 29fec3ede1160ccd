package pagebuffer

import "testing"

func TestIndexPutGetRemove(t *testing.T) {
	ix := newIndex()
	e := mkEntry(42)
	ix.put(e)

	if got := ix.get(Metadata, 42); got != e {
		t.Fatalf("expected to get back the entry just put")
	}
	if ix.len() != 1 {
		t.Fatalf("expected len 1, got %d", ix.len())
	}

	removed := ix.remove(Metadata, 42)
	if removed != e {
		t.Fatalf("remove did not return the expected entry")
	}
	if ix.get(Metadata, 42) != nil {
		t.Fatalf("expected entry to be gone after remove")
	}
	if ix.len() != 0 {
		t.Fatalf("expected len 0 after remove, got %d", ix.len())
	}
}

func TestIndexCollisionChain(t *testing.T) {
	ix := newIndex()
	// page and page+defaultBuckets collide in the same bucket.
	e1 := mkEntry(5)
	e2 := mkEntry(5 + defaultBuckets)
	ix.put(e1)
	ix.put(e2)

	if ix.get(Metadata, 5) != e1 {
		t.Fatalf("expected to find e1 at page 5")
	}
	if ix.get(Metadata, 5+defaultBuckets) != e2 {
		t.Fatalf("expected to find e2 at page %d", 5+defaultBuckets)
	}
}

func TestIndexDistinguishesKindAtSamePageNumber(t *testing.T) {
	ix := newIndex()
	meta := mkEntry(0)
	meta.kind = Metadata
	raw := mkEntry(0)
	raw.kind = RawData
	ix.put(meta)
	ix.put(raw)

	if ix.get(Metadata, 0) != meta {
		t.Fatalf("expected the metadata entry at page 0")
	}
	if ix.get(RawData, 0) != raw {
		t.Fatalf("expected the raw entry at page 0")
	}
	if ix.len() != 2 {
		t.Fatalf("expected both entries to coexist, len=%d", ix.len())
	}
}

func TestIndexGrowsOnLoadFactor(t *testing.T) {
	ix := newIndex()
	n := loadFactorLimit*defaultBuckets + 1
	for i := 0; i < n; i++ {
		ix.put(mkEntry(int64(i)))
	}
	if len(ix.buckets) <= defaultBuckets {
		t.Fatalf("expected bucket array to have grown past %d, got %d", defaultBuckets, len(ix.buckets))
	}
	for i := 0; i < n; i++ {
		if ix.get(Metadata, int64(i)) == nil {
			t.Fatalf("entry for page %d lost across grow", i)
		}
	}
}

func TestIndexForEachVisitsEveryEntry(t *testing.T) {
	ix := newIndex()
	want := map[int64]bool{1: true, 2: true, 3: true}
	for p := range want {
		ix.put(mkEntry(p))
	}
	got := map[int64]bool{}
	ix.forEach(func(e *entry) { got[e.page] = true })
	if len(got) != len(want) {
		t.Fatalf("expected %d entries visited, got %d", len(want), len(got))
	}
}
