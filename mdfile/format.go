// Package mdfile implements the reader-side metadata-file decoder and
// the writer-side index publisher of spec §4.2-§4.3: a checksummed,
// retry-tolerant protocol for sharing a writer-maintained page index
// with readers through a plain file, no locks involved.
package mdfile

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

var (
	headerMagic = [4]byte{'V', 'H', 'D', 'R'}
	indexMagic  = [4]byte{'V', 'I', 'D', 'X'}
)

// HeaderSize is the fixed on-disk size of Header, grounded on
// storage/wal.go's walHeaderSize constant for a fixed-size, magic-led
// binary header.
const HeaderSize = 4 + 4 + 8 + 8 + 8 + 4

// IndexEntrySize is the fixed on-disk size of one IndexEntry.
const IndexEntrySize = 4 + 4 + 4 + 4

// indexFixedSize is the size of an Index record excluding its entries.
const indexFixedSize = 4 + 8 + 4 + 4

// Header is the metadata file's fixed leading record (spec §6).
type Header struct {
	PageSize    uint32
	TickNum     uint64
	IndexOffset uint64
	IndexLength uint64
}

// Encode writes h in the on-disk little-endian layout, trailing
// checksum included.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], headerMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.PageSize)
	binary.LittleEndian.PutUint64(buf[8:16], h.TickNum)
	binary.LittleEndian.PutUint64(buf[16:24], h.IndexOffset)
	binary.LittleEndian.PutUint64(buf[24:32], h.IndexLength)
	crc := crc32.ChecksumIEEE(buf[:32])
	binary.LittleEndian.PutUint32(buf[32:36], crc)
	return buf
}

// DecodeHeader parses and checksum-verifies a HeaderSize-byte buffer.
func DecodeHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderSize {
		return h, fmt.Errorf("mdfile: short header (%d bytes)", len(buf))
	}
	if buf[0] != headerMagic[0] || buf[1] != headerMagic[1] || buf[2] != headerMagic[2] || buf[3] != headerMagic[3] {
		return h, errCorruptMagic
	}
	want := binary.LittleEndian.Uint32(buf[32:36])
	got := crc32.ChecksumIEEE(buf[:32])
	if want != got {
		return h, errCorruptChecksum
	}
	h.PageSize = binary.LittleEndian.Uint32(buf[4:8])
	h.TickNum = binary.LittleEndian.Uint64(buf[8:16])
	h.IndexOffset = binary.LittleEndian.Uint64(buf[16:24])
	h.IndexLength = binary.LittleEndian.Uint64(buf[24:32])
	return h, nil
}

// IndexEntry is one {hdf5_page_offset, md_file_page_offset, length,
// checksum} tuple (spec §6).
type IndexEntry struct {
	HDF5PageOffset uint32
	MDFilePageOffset uint32
	Length         uint32
	Checksum       uint32
}

// Index is the variable-length record pointed to by Header.
type Index struct {
	TickNum uint64
	Entries []IndexEntry
}

// Encode writes idx in the on-disk little-endian layout, trailing
// checksum included. The returned length always matches what a
// Header.IndexLength for this record should be.
func (idx Index) Encode() []byte {
	size := indexFixedSize + len(idx.Entries)*IndexEntrySize
	buf := make([]byte, size)
	copy(buf[0:4], indexMagic[:])
	binary.LittleEndian.PutUint64(buf[4:12], idx.TickNum)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(idx.Entries)))
	off := 16
	for _, e := range idx.Entries {
		binary.LittleEndian.PutUint32(buf[off:], e.HDF5PageOffset)
		binary.LittleEndian.PutUint32(buf[off+4:], e.MDFilePageOffset)
		binary.LittleEndian.PutUint32(buf[off+8:], e.Length)
		binary.LittleEndian.PutUint32(buf[off+12:], e.Checksum)
		off += IndexEntrySize
	}
	crc := crc32.ChecksumIEEE(buf[:off])
	binary.LittleEndian.PutUint32(buf[off:], crc)
	return buf
}

// DecodeIndex parses and checksum-verifies an Index record.
func DecodeIndex(buf []byte) (Index, error) {
	var idx Index
	if len(buf) < indexFixedSize {
		return idx, fmt.Errorf("mdfile: short index (%d bytes)", len(buf))
	}
	if buf[0] != indexMagic[0] || buf[1] != indexMagic[1] || buf[2] != indexMagic[2] || buf[3] != indexMagic[3] {
		return idx, errCorruptMagic
	}
	numEntries := binary.LittleEndian.Uint32(buf[12:16])
	want := 16 + int(numEntries)*IndexEntrySize + 4
	if len(buf) < want {
		return idx, fmt.Errorf("mdfile: short index body (%d of %d bytes)", len(buf), want)
	}
	crcOff := 16 + int(numEntries)*IndexEntrySize
	gotCRC := binary.LittleEndian.Uint32(buf[crcOff : crcOff+4])
	wantCRC := crc32.ChecksumIEEE(buf[:crcOff])
	if gotCRC != wantCRC {
		return idx, errCorruptChecksum
	}
	idx.TickNum = binary.LittleEndian.Uint64(buf[4:12])
	idx.Entries = make([]IndexEntry, numEntries)
	off := 16
	for i := range idx.Entries {
		idx.Entries[i] = IndexEntry{
			HDF5PageOffset:   binary.LittleEndian.Uint32(buf[off:]),
			MDFilePageOffset: binary.LittleEndian.Uint32(buf[off+4:]),
			Length:           binary.LittleEndian.Uint32(buf[off+8:]),
			Checksum:         binary.LittleEndian.Uint32(buf[off+12:]),
		}
		off += IndexEntrySize
	}
	return idx, nil
}

// PageChecksum is the checksum algorithm used for both the index
// record checksums above and each page payload's checksum (spec §6
// mandates "a checksum" without naming one; this reuses storage/wal.go's
// crc32.ChecksumIEEE, already the pack's answer to "detect a torn or
// corrupted on-disk record").
func PageChecksum(page []byte) uint32 { return crc32.ChecksumIEEE(page) }
