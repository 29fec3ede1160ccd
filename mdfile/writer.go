package mdfile

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vfdswmr/pagebuf/pagebuffer"
)

// Sink is the write side the Writer needs against the shared metadata
// file. ReadAt is required alongside WriteAt so the writer can
// relocate already-published pages when the reserved header+index
// region has to grow (spec §9).
type Sink interface {
	WriteAt(p []byte, off int64) (int, error)
	ReadAt(p []byte, off int64) (int, error)
}

// pubEntry is one persistent-index row, matching the per-entry fields
// spec §4.3 names explicitly.
type pubEntry struct {
	PageOffset       uint32
	MDFilePageOffset uint32
	Length           uint32
	Checksum         uint32
	DelayedFlush     uint64
	Clean            bool
	TickOfLastChange uint64
	TickOfLastFlush  uint64
}

// Writer is the writer-side index publisher of spec §4.3: at
// end-of-tick it merges the drained tick list into the persistent,
// reader-visible {header, index} pair. Grounded on storage/pager.go's
// Checkpoint/recoverFromWAL shape (iterate pending records, locate
// existing state by search, update-or-append) combined with the
// append-new-pages-beyond-the-reserved-region layout spec §6 requires.
//
// Writer implements pagebuffer.Publisher, so a *Writer can be set
// directly as Config.Publisher.
type Writer struct {
	mu sync.Mutex

	dst           Sink
	pageSize      uint32
	mdPagesReserved uint32

	entries    []pubEntry // sorted ascending by PageOffset
	nextMDPage uint32
	tick       uint64
}

// NewWriter returns a Writer that will lay out published pages
// starting immediately after the reserved header+index region.
func NewWriter(dst Sink, pageSize, mdPagesReserved uint32) *Writer {
	return &Writer{
		dst:             dst,
		pageSize:        pageSize,
		mdPagesReserved: mdPagesReserved,
		nextMDPage:      mdPagesReserved,
	}
}

func (w *Writer) find(page uint32) int {
	i := sort.Search(len(w.entries), func(i int) bool { return w.entries[i].PageOffset >= page })
	if i < len(w.entries) && w.entries[i].PageOffset == page {
		return i
	}
	return -1
}

func (w *Writer) insert(pe pubEntry) {
	i := sort.Search(len(w.entries), func(i int) bool { return w.entries[i].PageOffset >= pe.PageOffset })
	w.entries = append(w.entries, pubEntry{})
	copy(w.entries[i+1:], w.entries[i:])
	w.entries[i] = pe
}

// allocateAndWrite assigns pe a fresh region of the metadata file
// (growing nextMDPage) and writes image there.
func (w *Writer) allocateAndWrite(pe *pubEntry, image []byte) error {
	pages := (len(image) + int(w.pageSize) - 1) / int(w.pageSize)
	pe.MDFilePageOffset = w.nextMDPage
	w.nextMDPage += uint32(pages)
	off := int64(pe.MDFilePageOffset) * int64(w.pageSize)
	if _, err := w.dst.WriteAt(image, off); err != nil {
		return err
	}
	pe.Checksum = PageChecksum(image)
	pe.Length = uint32(len(image))
	return nil
}

// writeImage overwrites pe's existing region in place when the image
// is the same length (the common case: a page or a stably-sized
// MPMDE), and reallocates only when it has grown or shrunk.
func (w *Writer) writeImage(pe *pubEntry, image []byte) error {
	if uint32(len(image)) == pe.Length {
		off := int64(pe.MDFilePageOffset) * int64(w.pageSize)
		if _, err := w.dst.WriteAt(image, off); err != nil {
			return err
		}
		pe.Checksum = PageChecksum(image)
		return nil
	}
	return w.allocateAndWrite(pe, image)
}

// Publish implements pagebuffer.Publisher, merging a tick's drained
// entries into the persistent index and republishing {header, index}
// (spec §4.3). entries not appearing in tl and not already clean are
// conservatively marked clean, since this package has no channel back
// to the page buffer's live residency state to ask whether they are
// still cached and dirty; see DESIGN.md.
func (w *Writer) Publish(tl []pagebuffer.PublishEntry, currentTick uint64) (pagebuffer.PublishStats, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.tick != 0 && currentTick != w.tick+1 {
		return pagebuffer.PublishStats{}, fmt.Errorf("mdfile: tick %d does not follow %d by exactly one", currentTick, w.tick)
	}
	w.tick = currentTick

	var stats pagebuffer.PublishStats
	seen := make(map[uint32]bool, len(tl))

	for _, e := range tl {
		page := uint32(e.Addr / int64(w.pageSize))
		seen[page] = true

		if i := w.find(page); i >= 0 {
			pe := &w.entries[i]
			if err := w.writeImage(pe, e.Image); err != nil {
				return stats, err
			}
			pe.TickOfLastChange = currentTick
			pe.DelayedFlush = e.DelayUntil
			pe.Clean = !e.Dirty
			if pe.Clean {
				pe.TickOfLastFlush = currentTick
			} else {
				pe.TickOfLastFlush = 0
			}
			stats.Modified++
			continue
		}

		pe := pubEntry{
			PageOffset:       page,
			DelayedFlush:     e.DelayUntil,
			Clean:            !e.Dirty,
			TickOfLastChange: currentTick,
		}
		if pe.Clean {
			pe.TickOfLastFlush = currentTick
		}
		if err := w.allocateAndWrite(&pe, e.Image); err != nil {
			return stats, err
		}
		w.insert(pe)
		stats.Added++
	}

	for i := range w.entries {
		pe := &w.entries[i]
		if seen[pe.PageOffset] || pe.Clean {
			continue
		}
		pe.Clean = true
		pe.TickOfLastFlush = currentTick
		stats.NotInTL++
		stats.NotInTLFlushed++
	}

	if err := w.publishIndex(currentTick); err != nil {
		return stats, err
	}
	return stats, nil
}

func (w *Writer) publishIndex(currentTick uint64) error {
	indexOffset := uint64(HeaderSize)

	idxBuf, err := w.encodeIndexGrowingIfNeeded(currentTick, indexOffset)
	if err != nil {
		return err
	}
	if _, err := w.dst.WriteAt(idxBuf, int64(indexOffset)); err != nil {
		return err
	}

	hdr := Header{
		PageSize:    w.pageSize,
		TickNum:     currentTick,
		IndexOffset: indexOffset,
		IndexLength: uint64(len(idxBuf)),
	}
	_, err = w.dst.WriteAt(hdr.Encode(), 0)
	return err
}

// encodeIndexGrowingIfNeeded encodes the current index and, if it no
// longer fits in the reserved header+index region, grows the reserved
// region first by relocating every already-published data page
// forward. Spec §9 states this explicitly: "a production
// implementation should grow the index and publish the new length in
// the header" rather than fail once the reserved region fills up.
func (w *Writer) encodeIndexGrowingIfNeeded(currentTick uint64, indexOffset uint64) ([]byte, error) {
	idxBuf := w.encodeIndex(currentTick)
	reserved := uint64(w.mdPagesReserved) * uint64(w.pageSize)
	if indexOffset+uint64(len(idxBuf)) <= reserved {
		return idxBuf, nil
	}
	if err := w.growReservedRegion(indexOffset + uint64(len(idxBuf))); err != nil {
		return nil, err
	}
	// Growth leaves the number of entries, their page offsets and
	// checksums, and so the index's length, unchanged; it only moves
	// MDFilePageOffset values, so the index is re-encoded to pick them up.
	return w.encodeIndex(currentTick), nil
}

func (w *Writer) encodeIndex(currentTick uint64) []byte {
	entries := make([]IndexEntry, len(w.entries))
	for i, pe := range w.entries {
		entries[i] = IndexEntry{
			HDF5PageOffset:   pe.PageOffset,
			MDFilePageOffset: pe.MDFilePageOffset,
			Length:           pe.Length,
			Checksum:         pe.Checksum,
		}
	}
	return Index{TickNum: currentTick, Entries: entries}.Encode()
}

// growReservedRegion doubles mdPagesReserved until the region is at
// least needed bytes, then relocates every already-published data
// page forward by the resulting page delta. Entries are moved in
// descending order of their current MDFilePageOffset so that each
// page's new location (strictly past the file's pre-growth extent,
// relative to the others) never overlaps a not-yet-moved page's
// current location.
func (w *Writer) growReservedRegion(needed uint64) error {
	newReserved := w.mdPagesReserved
	if newReserved == 0 {
		newReserved = 1
	}
	for uint64(newReserved)*uint64(w.pageSize) < needed {
		newReserved *= 2
	}
	delta := newReserved - w.mdPagesReserved
	if delta == 0 {
		return nil
	}

	order := make([]*pubEntry, len(w.entries))
	for i := range w.entries {
		order[i] = &w.entries[i]
	}
	sort.Slice(order, func(i, j int) bool { return order[i].MDFilePageOffset > order[j].MDFilePageOffset })

	for _, pe := range order {
		if pe.Length == 0 {
			continue
		}
		buf := make([]byte, pe.Length)
		oldOff := int64(pe.MDFilePageOffset) * int64(w.pageSize)
		if _, err := w.dst.ReadAt(buf, oldOff); err != nil {
			return fmt.Errorf("mdfile: relocating page at %d during index growth: %w", oldOff, err)
		}
		newOff := oldOff + int64(delta)*int64(w.pageSize)
		if _, err := w.dst.WriteAt(buf, newOff); err != nil {
			return fmt.Errorf("mdfile: relocating page to %d during index growth: %w", newOff, err)
		}
		pe.MDFilePageOffset += delta
	}

	w.nextMDPage += delta
	w.mdPagesReserved = newReserved
	return nil
}
