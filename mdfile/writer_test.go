package mdfile_test

import (
	"context"
	"testing"

	"github.com/vfdswmr/pagebuf/filedriver"
	"github.com/vfdswmr/pagebuf/mdfile"
	"github.com/vfdswmr/pagebuf/pagebuffer"
)

const pageSize = 4096

func TestWriterPublishThenDecoderReadPage(t *testing.T) {
	d := filedriver.NewMemDriver()
	w := mdfile.NewWriter(d.MetaSink(), pageSize, 1)

	page := make([]byte, pageSize)
	copy(page, "first published page")

	stats, err := w.Publish([]pagebuffer.PublishEntry{
		{Addr: 0, Size: pageSize, Image: page, Dirty: false},
	}, 1)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if stats.Added != 1 {
		t.Fatalf("expected 1 added entry, got %+v", stats)
	}

	dec := mdfile.NewDecoder(d.MetaSource(), mdfile.DecoderConfig{})
	dec.Configured = true
	if err := dec.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if dec.Header().TickNum != 1 {
		t.Fatalf("expected cached tick 1, got %d", dec.Header().TickNum)
	}

	got := make([]byte, pageSize)
	found, err := dec.ReadPage(context.Background(), 0, got)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if !found {
		t.Fatalf("expected page 0 to be found in the published index")
	}
	if string(got[:len("first published page")]) != "first published page" {
		t.Fatalf("got %q", got[:32])
	}
}

func TestDecoderReadPageMissReturnsNotFound(t *testing.T) {
	d := filedriver.NewMemDriver()
	w := mdfile.NewWriter(d.MetaSink(), pageSize, 1)
	if _, err := w.Publish(nil, 1); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	dec := mdfile.NewDecoder(d.MetaSource(), mdfile.DecoderConfig{})
	if err := dec.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	found, err := dec.ReadPage(context.Background(), pageSize*5, make([]byte, pageSize))
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if found {
		t.Fatalf("expected a page with no published entry to miss")
	}
}

func TestWriterPublishUpdatesExistingEntryInPlace(t *testing.T) {
	d := filedriver.NewMemDriver()
	w := mdfile.NewWriter(d.MetaSink(), pageSize, 1)

	page := make([]byte, pageSize)
	copy(page, "version one")
	if _, err := w.Publish([]pagebuffer.PublishEntry{
		{Addr: 0, Size: pageSize, Image: page, Dirty: true, DelayUntil: 3},
	}, 1); err != nil {
		t.Fatalf("Publish tick 1: %v", err)
	}

	page2 := make([]byte, pageSize)
	copy(page2, "version two, still the same length")
	stats, err := w.Publish([]pagebuffer.PublishEntry{
		{Addr: 0, Size: pageSize, Image: page2, Dirty: false},
	}, 2)
	if err != nil {
		t.Fatalf("Publish tick 2: %v", err)
	}
	if stats.Modified != 1 || stats.Added != 0 {
		t.Fatalf("expected an in-place modification, got %+v", stats)
	}

	dec := mdfile.NewDecoder(d.MetaSource(), mdfile.DecoderConfig{})
	dec.Configured = true
	if err := dec.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	got := make([]byte, pageSize)
	found, err := dec.ReadPage(context.Background(), 0, got)
	if err != nil || !found {
		t.Fatalf("ReadPage: found=%v err=%v", found, err)
	}
	want := "version two, still the same length"
	if string(got[:len(want)]) != want {
		t.Fatalf("got %q, want %q", got[:len(want)], want)
	}
}

func TestWriterPublishRejectsOutOfOrderTick(t *testing.T) {
	d := filedriver.NewMemDriver()
	w := mdfile.NewWriter(d.MetaSink(), pageSize, 1)
	if _, err := w.Publish(nil, 1); err != nil {
		t.Fatalf("Publish tick 1: %v", err)
	}
	if _, err := w.Publish(nil, 5); err == nil {
		t.Fatalf("expected an error when skipping from tick 1 to tick 5")
	}
}

func TestWriterMarksUnlistedDirtyEntryCleanWhenAbsentFromTickList(t *testing.T) {
	d := filedriver.NewMemDriver()
	w := mdfile.NewWriter(d.MetaSink(), pageSize, 1)

	page := make([]byte, pageSize)
	copy(page, "only tick")
	if _, err := w.Publish([]pagebuffer.PublishEntry{
		{Addr: 0, Size: pageSize, Image: page, Dirty: true},
	}, 1); err != nil {
		t.Fatalf("Publish tick 1: %v", err)
	}

	stats, err := w.Publish(nil, 2)
	if err != nil {
		t.Fatalf("Publish tick 2: %v", err)
	}
	if stats.NotInTL != 1 || stats.NotInTLFlushed != 1 {
		t.Fatalf("expected the page 0 entry to be swept as not-in-TL, got %+v", stats)
	}
}

func TestWriterGrowsReservedRegionWhenIndexOutgrowsIt(t *testing.T) {
	const smallPageSize = 64
	d := filedriver.NewMemDriver()
	w := mdfile.NewWriter(d.MetaSink(), smallPageSize, 1)

	page0 := make([]byte, smallPageSize)
	copy(page0, "grown page")
	if _, err := w.Publish([]pagebuffer.PublishEntry{
		{Addr: 0, Size: smallPageSize, Image: page0, Dirty: false},
	}, 1); err != nil {
		t.Fatalf("Publish tick 1: %v", err)
	}

	dec := mdfile.NewDecoder(d.MetaSource(), mdfile.DecoderConfig{})
	dec.Configured = true
	if err := dec.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	got0 := make([]byte, smallPageSize)
	if found, err := dec.ReadPage(context.Background(), 0, got0); err != nil || !found {
		t.Fatalf("ReadPage(0) after growth: found=%v err=%v", found, err)
	}
	want0 := "grown page"
	if string(got0[:len(want0)]) != want0 {
		t.Fatalf("got %q, want %q", got0[:len(want0)], want0)
	}

	// A second publish adds another entry (the index still fits the
	// grown region) and must not lose the page that moved during the
	// first one.
	page1 := make([]byte, smallPageSize)
	copy(page1, "second page")
	if _, err := w.Publish([]pagebuffer.PublishEntry{
		{Addr: smallPageSize, Size: smallPageSize, Image: page1, Dirty: false},
	}, 2); err != nil {
		t.Fatalf("Publish tick 2: %v", err)
	}

	if err := dec.Reload(context.Background()); err != nil {
		t.Fatalf("Reload after tick 2: %v", err)
	}
	got0 = make([]byte, smallPageSize)
	if found, err := dec.ReadPage(context.Background(), 0, got0); err != nil || !found || string(got0[:len(want0)]) != want0 {
		t.Fatalf("page 0 lost after relocation: found=%v err=%v got=%q", found, err, got0[:len(want0)])
	}
	got1 := make([]byte, smallPageSize)
	want1 := "second page"
	if found, err := dec.ReadPage(context.Background(), smallPageSize, got1); err != nil || !found || string(got1[:len(want1)]) != want1 {
		t.Fatalf("page 1 missing: found=%v err=%v got=%q", found, err, got1[:len(want1)])
	}
}
