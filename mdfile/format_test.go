package mdfile

import "testing"

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{PageSize: 4096, TickNum: 7, IndexOffset: 36, IndexLength: 48}
	buf := h.Encode()
	if len(buf) != HeaderSize {
		t.Fatalf("expected encoded header of %d bytes, got %d", HeaderSize, len(buf))
	}
	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	buf := Header{PageSize: 4096}.Encode()
	buf[0] ^= 0xff
	if _, err := DecodeHeader(buf); err != errCorruptMagic {
		t.Fatalf("expected errCorruptMagic, got %v", err)
	}
}

func TestDecodeHeaderRejectsChecksumMismatch(t *testing.T) {
	buf := Header{PageSize: 4096, TickNum: 1}.Encode()
	buf[8] ^= 0xff // corrupt a tick_num byte without touching the checksum
	if _, err := DecodeHeader(buf); err != errCorruptChecksum {
		t.Fatalf("expected errCorruptChecksum, got %v", err)
	}
}

func TestIndexEncodeDecodeRoundTrip(t *testing.T) {
	idx := Index{
		TickNum: 3,
		Entries: []IndexEntry{
			{HDF5PageOffset: 0, MDFilePageOffset: 4, Length: 4096, Checksum: 0x1234},
			{HDF5PageOffset: 1, MDFilePageOffset: 5, Length: 4096, Checksum: 0x5678},
		},
	}
	buf := idx.Encode()
	got, err := DecodeIndex(buf)
	if err != nil {
		t.Fatalf("DecodeIndex: %v", err)
	}
	if got.TickNum != idx.TickNum || len(got.Entries) != len(idx.Entries) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, idx)
	}
	for i := range idx.Entries {
		if got.Entries[i] != idx.Entries[i] {
			t.Fatalf("entry %d mismatch: got %+v, want %+v", i, got.Entries[i], idx.Entries[i])
		}
	}
}

func TestIndexEncodeDecodeEmpty(t *testing.T) {
	idx := Index{TickNum: 1}
	buf := idx.Encode()
	got, err := DecodeIndex(buf)
	if err != nil {
		t.Fatalf("DecodeIndex: %v", err)
	}
	if len(got.Entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(got.Entries))
	}
}

func TestPageChecksumDetectsCorruption(t *testing.T) {
	page := make([]byte, 4096)
	copy(page, "some page contents")
	sum := PageChecksum(page)
	page[0] ^= 0xff
	if PageChecksum(page) == sum {
		t.Fatalf("expected checksum to change after corrupting the page")
	}
}
