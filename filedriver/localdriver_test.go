package filedriver_test

import (
	"path/filepath"
	"testing"

	"github.com/vfdswmr/pagebuf/filedriver"
	"github.com/vfdswmr/pagebuf/pagebuffer"
)

func TestLocalFileWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	f, err := filedriver.OpenLocalFile(filepath.Join(dir, "meta"), filepath.Join(dir, "raw"))
	if err != nil {
		t.Fatalf("OpenLocalFile: %v", err)
	}
	defer f.Truncate(true)

	want := []byte("on-disk metadata page")
	if err := f.Write(pagebuffer.Metadata, 0, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := make([]byte, len(want))
	if err := f.Read(pagebuffer.Metadata, 0, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestLocalFileLockExcludesConcurrentOpen(t *testing.T) {
	dir := t.TempDir()
	metaPath := filepath.Join(dir, "meta")
	rawPath := filepath.Join(dir, "raw")

	f1, err := filedriver.OpenLocalFile(metaPath, rawPath)
	if err != nil {
		t.Fatalf("OpenLocalFile: %v", err)
	}
	defer f1.Truncate(true)
	if err := f1.Lock(true); err != nil {
		t.Fatalf("first Lock: %v", err)
	}
	defer f1.Unlock()

	f2, err := filedriver.OpenLocalFile(metaPath, rawPath)
	if err != nil {
		t.Fatalf("second OpenLocalFile: %v", err)
	}
	defer f2.Truncate(true)
	if err := f2.Lock(false); err == nil {
		t.Fatalf("expected second Lock on the same metadata file to fail")
	}
}

func TestLocalFileMetaSourceReportsSize(t *testing.T) {
	dir := t.TempDir()
	f, err := filedriver.OpenLocalFile(filepath.Join(dir, "meta"), filepath.Join(dir, "raw"))
	if err != nil {
		t.Fatalf("OpenLocalFile: %v", err)
	}
	defer f.Truncate(true)

	if err := f.Write(pagebuffer.Metadata, 0, make([]byte, 4096)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	sz, err := f.MetaSource().Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if sz != 4096 {
		t.Fatalf("expected size 4096, got %d", sz)
	}
}

func TestLocalFileEOFMatchesEOA(t *testing.T) {
	dir := t.TempDir()
	f, err := filedriver.OpenLocalFile(filepath.Join(dir, "meta"), filepath.Join(dir, "raw"))
	if err != nil {
		t.Fatalf("OpenLocalFile: %v", err)
	}
	defer f.Truncate(true)

	if err := f.Write(pagebuffer.RawData, 0, make([]byte, 10)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if f.EOF(pagebuffer.RawData) != f.EOA(pagebuffer.RawData) {
		t.Fatalf("expected EOF and EOA to agree for a plain file")
	}
}
