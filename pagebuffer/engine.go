package pagebuffer

import (
	"fmt"
	"sync"
)

// PageBuffer is the page-granular write-back cache described by
// spec §4.1. It is grounded on storage/pager.go's Pager: a coarse
// mutex guarding every method, a cache-then-disk-then-populate-cache
// read path, and a "big exported method calls a small internal one"
// shape — generalized here with the read/write classification tables
// the teacher's pager never needed, since it only ever serves whole
// pages to a single SQL storage engine.
type PageBuffer struct {
	mu sync.Mutex

	fd  FileDriver
	cfg resolved

	idx *index
	lru lru
	dwl dwl
	tl  ticklist

	currTick    uint64
	currMDPages uint32
	currRDPages uint32
	mpmdeCount  uint32

	havePrevMetaAddr bool
	prevMetaAddr     int64

	stats  Stats
	closed bool
}

// New validates cfg, acquires the file driver's lock in the mode
// implied by cfg.SWMRWriter, and returns a ready PageBuffer. Grounded
// on storage.OpenPager's eager-validate-then-acquire shape.
func New(fd FileDriver, cfg Config) (*PageBuffer, error) {
	if fd == nil {
		return nil, newErr("New", KindConfiguration, fmt.Errorf("file driver is nil"))
	}
	r, err := cfg.resolve()
	if err != nil {
		return nil, newErr("New", KindConfiguration, err)
	}
	if err := fd.Lock(r.swmrWriter); err != nil {
		return nil, newErr("New", KindIO, err)
	}
	return &PageBuffer{
		fd:       fd,
		cfg:      r,
		idx:      newIndex(),
		currTick: 1,
	}, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func (pb *PageBuffer) bumpCount(kind Kind, mpmde bool, delta int32) {
	switch {
	case mpmde:
		pb.mpmdeCount = uint32(int32(pb.mpmdeCount) + delta)
	case kind == Metadata:
		pb.currMDPages = uint32(int32(pb.currMDPages) + delta)
	default:
		pb.currRDPages = uint32(int32(pb.currRDPages) + delta)
	}
}

// loadPage reads one page_size image from the file driver, zeroing it
// (loaded=false) when addr is beyond EOF (spec §4.4's Load semantics).
func (pb *PageBuffer) loadPage(kind Kind, addr int64) (*entry, error) {
	e := newEntry(kind, addr, pb.cfg.pageSize, pb.cfg.pageSize)
	if addr >= pb.fd.EOF(kind) {
		return e, nil
	}
	if err := pb.fd.Read(kind, addr, e.image); err != nil {
		return nil, err
	}
	e.loaded = true
	return e, nil
}

// insertLoaded makes room via makeSpace, then admits e into the index
// and the head of the LRU.
func (pb *PageBuffer) insertLoaded(e *entry) error {
	if err := pb.makeSpace(e.kind); err != nil {
		return err
	}
	pb.idx.put(e)
	pb.lru.pushFront(e)
	pb.bumpCount(e.kind, false, 1)
	return nil
}

// flushEntry writes e's image back, asserting EOA covers it, then
// marks it clean (spec §4.4's Flush semantics).
func (pb *PageBuffer) flushEntry(e *entry) error {
	if eoa := pb.fd.EOA(e.kind); eoa < e.addr+e.size {
		return fmt.Errorf("eoa %d does not cover entry at %d (size %d)", eoa, e.addr, e.size)
	}
	if err := pb.fd.Write(e.kind, e.addr, e.image); err != nil {
		return err
	}
	e.dirty = false
	e.lastFlushTick = pb.currTick
	pb.stats.Flushes++
	if pb.lru.head == e || pb.lru.tail == e || e.lruPrev != nil || e.lruNext != nil {
		pb.lru.moveToFront(e)
	}
	return nil
}

// evict detaches e from whichever list it belongs to and from the
// index, discarding its image. force bypasses the clean-entry
// precondition (spec §4.4's Evict semantics).
func (pb *PageBuffer) evict(e *entry, force bool) error {
	if !force && (e.dirty || e.modifiedThisTick || e.delayUntil != 0) {
		return fmt.Errorf("entry at %d is not evictable without force", e.addr)
	}
	if e.modifiedThisTick {
		pb.tl.remove(e)
	}
	if e.delayUntil != 0 {
		pb.dwl.remove(e)
		e.delayUntil = 0
	} else if !e.isMPMDE() {
		pb.lru.remove(e)
	}
	pb.idx.remove(e.kind, e.page)
	pb.bumpCount(e.kind, e.isMPMDE(), -1)
	e.dirty = false
	e.image = nil
	pb.stats.Evictions++
	return nil
}

// markDirty implements mark_entry_dirty (spec §4.1): for a loaded
// metadata entry under SWMR-writer mode it consults cfg.delay and, if
// a delay is required, moves the entry onto the DWL instead of the
// LRU. An entry already on the DWL stays there with its existing
// deadline. MPMDEs never touch the LRU (invariant 2).
func (pb *PageBuffer) markDirty(e *entry) {
	wasLoaded := e.loaded
	e.dirty = true
	e.lastChangeTick = pb.currTick
	if e.delayUntil != 0 {
		return
	}

	if pb.cfg.swmrWriter && e.kind == Metadata && wasLoaded && pb.cfg.delay != nil {
		if delta := pb.cfg.delay.RequestWriteDelay(uint64(e.page)); delta > 0 {
			if !e.isMPMDE() {
				pb.lru.remove(e)
			}
			e.delayUntil = pb.currTick + delta
			pb.dwl.insert(e)
			pb.stats.DWLInsertions++
			return
		}
	}
	if !e.isMPMDE() {
		pb.lru.moveToFront(e)
	}
}

// makeSpace implements the eviction algorithm of spec §4.1: walk the
// LRU tail-to-head, skipping entries protected by the opposite class's
// minimum or still on the tick list, flushing dirty candidates in
// place, and evicting clean ones, until curr_pages < max_pages.
func (pb *PageBuffer) makeSpace(insertedKind Kind) error {
	total := func() uint32 { return pb.currMDPages + pb.currRDPages }

	if insertedKind == Metadata && pb.cfg.minRDPages == pb.cfg.maxPages {
		return newErr("makeSpace", KindCapacity, fmt.Errorf("configuration reserves all pages for raw data"))
	}
	if insertedKind == RawData && pb.cfg.minMDPages == pb.cfg.maxPages {
		return newErr("makeSpace", KindCapacity, fmt.Errorf("configuration reserves all pages for metadata"))
	}
	if total() < pb.cfg.maxPages {
		return nil
	}

	var walkErr error
	pb.lru.walkFromTail(func(e *entry) bool {
		if total() < pb.cfg.maxPages {
			return false
		}
		if e.modifiedThisTick {
			return true
		}
		if insertedKind == Metadata && e.kind == RawData && pb.currRDPages <= pb.cfg.minRDPages {
			return true
		}
		if insertedKind == RawData && e.kind == Metadata && pb.currMDPages <= pb.cfg.minMDPages {
			return true
		}
		if e.dirty {
			if err := pb.flushEntry(e); err != nil {
				walkErr = err
				return false
			}
			return true
		}
		if err := pb.evict(e, false); err != nil {
			walkErr = err
			return false
		}
		return true
	})
	if walkErr != nil {
		return newErr("makeSpace", KindIO, walkErr)
	}
	if total() >= pb.cfg.maxPages {
		return newErr("makeSpace", KindCapacity, fmt.Errorf("no evictable candidate for a %s page", insertedKind))
	}
	return nil
}

// Read serves a caller's read per the decision table of spec §4.1.
func (pb *PageBuffer) Read(kind Kind, addr int64, buf []byte) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.closed {
		return ErrClosed
	}
	pb.stats.Reads++

	if pb.bypasses(kind) {
		if err := pb.fd.Read(kind, addr, buf); err != nil {
			return newErr("Read", KindIO, err)
		}
		return nil
	}
	if kind == RawData {
		return pb.readRaw(addr, int64(len(buf)), buf)
	}
	return pb.readMeta(addr, int64(len(buf)), buf)
}

func (pb *PageBuffer) bypasses(kind Kind) bool {
	if pb.cfg.disabled || pb.cfg.parallel {
		return true
	}
	if kind == Metadata {
		return pb.cfg.excludeMeta
	}
	return pb.cfg.excludeRaw
}

func (pb *PageBuffer) readRaw(addr, size int64, buf []byte) error {
	ps := pb.cfg.pageSize

	if size >= ps {
		if err := pb.fd.Read(RawData, addr, buf); err != nil {
			return newErr("Read", KindIO, err)
		}
		startPage := addr / ps
		endPage := (addr + size - 1) / ps
		for p := startPage; p <= endPage; p++ {
			e := pb.idx.get(RawData, p)
			if e == nil || !e.dirty {
				continue
			}
			pageAddr := p * ps
			lo := max64(addr, pageAddr)
			hi := min64(addr+size, pageAddr+e.size)
			if lo >= hi {
				continue
			}
			copy(buf[lo-addr:hi-addr], e.image[lo-pageAddr:hi-pageAddr])
			pb.stats.Hits++
		}
		return nil
	}

	startPage := addr / ps
	endPage := (addr + size - 1) / ps
	for p := startPage; p <= endPage; p++ {
		e := pb.idx.get(RawData, p)
		if e == nil {
			loaded, err := pb.loadPage(RawData, p*ps)
			if err != nil {
				return newErr("Read", KindIO, err)
			}
			if err := pb.insertLoaded(loaded); err != nil {
				return err
			}
			e = loaded
			pb.stats.Misses++
		} else {
			pb.lru.moveToFront(e)
			pb.stats.Hits++
		}
		pageAddr := p * ps
		lo := max64(addr, pageAddr)
		hi := min64(addr+size, pageAddr+e.size)
		copy(buf[lo-addr:hi-addr], e.image[lo-pageAddr:hi-pageAddr])
	}
	return nil
}

func (pb *PageBuffer) readMeta(addr, size int64, buf []byte) error {
	ps := pb.cfg.pageSize
	aligned := addr%ps == 0
	page := addr / ps
	e := pb.idx.get(Metadata, page)

	if !aligned {
		if e != nil && e.isMPMDE() {
			return newErr("Read", KindCorrupt, fmt.Errorf("MPMDE at %d spans an unaligned read", addr))
		}
		pageAddr := page * ps
		if addr+size > pageAddr+ps {
			size = pageAddr + ps - addr
			buf = buf[:size]
		}
		if e == nil {
			loaded, err := pb.loadPage(Metadata, pageAddr)
			if err != nil {
				return newErr("Read", KindIO, err)
			}
			if err := pb.insertLoaded(loaded); err != nil {
				return err
			}
			e = loaded
			pb.stats.Misses++
		} else {
			if e.delayUntil == 0 {
				pb.lru.moveToFront(e)
			}
			pb.stats.Hits++
		}
		off := addr - pageAddr
		copy(buf, e.image[off:off+size])
		pb.prevMetaAddr, pb.havePrevMetaAddr = addr, true
		return nil
	}

	defer func() { pb.prevMetaAddr, pb.havePrevMetaAddr = addr, true }()

	if size > ps {
		if e == nil {
			if err := pb.fd.Read(Metadata, addr, buf); err != nil {
				return newErr("Read", KindIO, err)
			}
			return nil
		}
		if e.isMPMDE() {
			if !pb.cfg.swmrWriter {
				return newErr("Read", KindCorrupt, fmt.Errorf("MPMDE at %d read outside SWMR-writer mode", addr))
			}
			n := min64(size, e.size)
			copy(buf[:n], e.image[:n])
			pb.stats.Hits++
			return nil
		}
		if pb.havePrevMetaAddr && pb.prevMetaAddr == addr {
			if err := pb.evict(e, true); err != nil {
				return newErr("Read", KindInvariant, err)
			}
			if err := pb.fd.Read(Metadata, addr, buf); err != nil {
				return newErr("Read", KindIO, err)
			}
			return nil
		}
		n := min64(size, e.size)
		copy(buf[:n], e.image[:n])
		if e.delayUntil == 0 {
			pb.lru.moveToFront(e)
		}
		pb.stats.Hits++
		return nil
	}

	// size <= page
	if e == nil {
		loaded, err := pb.loadPage(Metadata, addr)
		if err != nil {
			return newErr("Read", KindIO, err)
		}
		if err := pb.insertLoaded(loaded); err != nil {
			return err
		}
		e = loaded
		pb.stats.Misses++
	} else if e.isMPMDE() {
		if !pb.cfg.swmrWriter {
			return newErr("Read", KindCorrupt, fmt.Errorf("MPMDE at %d read outside SWMR-writer mode", addr))
		}
		pb.stats.Hits++
	} else {
		if e.delayUntil == 0 {
			pb.lru.moveToFront(e)
		}
		pb.stats.Hits++
	}
	copy(buf, e.image[:size])
	return nil
}

// Write serves a caller's write per spec §4.1's write rules, which
// mirror the read decision table.
func (pb *PageBuffer) Write(kind Kind, addr int64, buf []byte) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.closed {
		return ErrClosed
	}
	pb.stats.Writes++

	if pb.bypasses(kind) {
		if err := pb.fd.Write(kind, addr, buf); err != nil {
			return newErr("Write", KindIO, err)
		}
		return nil
	}
	if kind == RawData {
		return pb.writeRaw(addr, int64(len(buf)), buf)
	}
	return pb.writeMeta(addr, int64(len(buf)), buf)
}

func (pb *PageBuffer) writeRaw(addr, size int64, buf []byte) error {
	ps := pb.cfg.pageSize

	if size >= ps {
		if err := pb.fd.Write(RawData, addr, buf); err != nil {
			return newErr("Write", KindIO, err)
		}
		startPage := addr / ps
		endPage := (addr + size - 1) / ps
		for p := startPage; p <= endPage; p++ {
			e := pb.idx.get(RawData, p)
			if e == nil {
				continue
			}
			pageAddr := p * ps
			pageEnd := pageAddr + e.size
			if addr <= pageAddr && pageEnd <= addr+size {
				e.dirty = false
				if err := pb.evict(e, true); err != nil {
					return newErr("Write", KindInvariant, err)
				}
				continue
			}
			lo := max64(addr, pageAddr)
			hi := min64(addr+size, pageEnd)
			copy(e.image[lo-pageAddr:hi-pageAddr], buf[lo-addr:hi-addr])
			pb.markDirty(e)
		}
		return nil
	}

	startPage := addr / ps
	endPage := (addr + size - 1) / ps
	for p := startPage; p <= endPage; p++ {
		e := pb.idx.get(RawData, p)
		if e == nil {
			loaded, err := pb.loadPage(RawData, p*ps)
			if err != nil {
				return newErr("Write", KindIO, err)
			}
			if err := pb.insertLoaded(loaded); err != nil {
				return err
			}
			e = loaded
		} else {
			pb.lru.moveToFront(e)
		}
		pageAddr := p * ps
		lo := max64(addr, pageAddr)
		hi := min64(addr+size, pageAddr+e.size)
		copy(e.image[lo-pageAddr:hi-pageAddr], buf[lo-addr:hi-addr])
		pb.markDirty(e)
	}
	return nil
}

func (pb *PageBuffer) writeMeta(addr, size int64, buf []byte) error {
	ps := pb.cfg.pageSize

	if size <= ps {
		page := addr / ps
		pageAddr := page * ps
		e := pb.idx.get(Metadata, page)
		if e == nil {
			loaded, err := pb.loadPage(Metadata, pageAddr)
			if err != nil {
				return newErr("Write", KindIO, err)
			}
			if err := pb.insertLoaded(loaded); err != nil {
				return err
			}
			e = loaded
		}
		off := addr - pageAddr
		copy(e.image[off:off+size], buf)
		pb.markDirty(e)
		if pb.cfg.swmrWriter {
			pb.tl.append(e)
		}
		return nil
	}

	// size > page: MPMDE, writer-only.
	if !pb.cfg.swmrWriter {
		if err := pb.fd.Write(Metadata, addr, buf); err != nil {
			return newErr("Write", KindIO, err)
		}
		return nil
	}

	page := addr / ps
	e := pb.idx.get(Metadata, page)
	if e == nil {
		e = newEntry(Metadata, addr, size, ps)
		pb.idx.put(e)
		pb.bumpCount(Metadata, true, 1)
	} else if !e.isMPMDE() {
		return newErr("Write", KindInvariant, fmt.Errorf("entry at %d is a regular page, not an MPMDE", addr))
	}
	copy(e.image, buf)
	pb.markDirty(e)
	pb.tl.append(e)
	return nil
}

// AddNewPage admits a fresh, zeroed page on behalf of the allocator,
// skipping makeSpace (spec §4.1: "maximum may be exceeded temporarily").
func (pb *PageBuffer) AddNewPage(kind Kind, addr int64) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.closed {
		return ErrClosed
	}
	if addr%pb.cfg.pageSize != 0 {
		return newErr("AddNewPage", KindInvariant, fmt.Errorf("address %d is not page-aligned", addr))
	}
	page := addr / pb.cfg.pageSize
	if pb.idx.get(kind, page) != nil {
		return newErr("AddNewPage", KindInvariant, fmt.Errorf("entry already exists at %d", addr))
	}
	e := newEntry(kind, addr, pb.cfg.pageSize, pb.cfg.pageSize)
	pb.idx.put(e)
	pb.lru.pushFront(e)
	pb.bumpCount(kind, false, 1)
	return nil
}

// RemoveEntry detaches and force-evicts the entry at addr on behalf of
// the allocator. An MPMDE may only be removed this way under
// SWMR-writer mode (spec §4.1, §9's open question on this call).
func (pb *PageBuffer) RemoveEntry(kind Kind, addr int64) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.closed {
		return ErrClosed
	}
	page := addr / pb.cfg.pageSize
	e := pb.idx.get(kind, page)
	if e == nil {
		return ErrEntryMissing
	}
	if e.isMPMDE() && !pb.cfg.swmrWriter {
		return newErr("RemoveEntry", KindCorrupt, fmt.Errorf("MPMDE at %d removed outside SWMR-writer mode", addr))
	}
	if err := pb.evict(e, true); err != nil {
		return newErr("RemoveEntry", KindInvariant, err)
	}
	return nil
}

// UpdateEntry patches a resident image in place without dirtying it,
// for the parallel-I/O peer-write-visibility path (spec §4.1).
func (pb *PageBuffer) UpdateEntry(kind Kind, addr int64, buf []byte) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.closed {
		return ErrClosed
	}
	page := addr / pb.cfg.pageSize
	e := pb.idx.get(kind, page)
	if e == nil {
		return ErrEntryMissing
	}
	copy(e.image, buf)
	return nil
}

// Flush writes back every dirty entry without evicting any (spec
// §4.1's flush operation).
func (pb *PageBuffer) Flush() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.closed {
		return ErrClosed
	}
	var ferr error
	pb.idx.forEach(func(e *entry) {
		if e.dirty && ferr == nil {
			if err := pb.flushEntry(e); err != nil {
				ferr = err
			}
		}
	})
	if ferr != nil {
		return newErr("Flush", KindIO, ferr)
	}
	return nil
}

// Destroy flushes and evicts every resident entry and releases the
// page buffer's state (spec §4.1's destroy operation).
func (pb *PageBuffer) Destroy() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.closed {
		return ErrClosed
	}

	if pb.dwl.len() > 0 && !pb.cfg.forceFlush {
		var stuck []int64
		for cur := pb.dwl.head; cur != nil; cur = cur.dwlNext {
			stuck = append(stuck, cur.page)
		}
		return newErr("Destroy", KindCapacity, fmt.Errorf("%d entries remain on the delayed-write list (pages %v)", pb.dwl.len(), stuck))
	}
	for cur := pb.dwl.tail; cur != nil; {
		prev := cur.dwlPrev
		pb.dwl.remove(cur)
		cur.delayUntil = 0
		if err := pb.flushEntry(cur); err != nil {
			return newErr("Destroy", KindIO, err)
		}
		if err := pb.evict(cur, true); err != nil {
			return newErr("Destroy", KindInvariant, err)
		}
		cur = prev
	}

	var ferr error
	pb.idx.forEach(func(e *entry) {
		if e.dirty && ferr == nil {
			if err := pb.flushEntry(e); err != nil {
				ferr = err
			}
		}
	})
	if ferr != nil {
		return newErr("Destroy", KindIO, ferr)
	}

	var remaining []*entry
	pb.idx.forEach(func(e *entry) { remaining = append(remaining, e) })
	for _, e := range remaining {
		if err := pb.evict(e, true); err != nil {
			return newErr("Destroy", KindInvariant, err)
		}
	}

	if pb.idx.len() != 0 || pb.lru.len() != 0 || pb.dwl.len() != 0 || pb.tl.len() != 0 {
		return newErr("Destroy", KindInvariant, fmt.Errorf("lists not empty after forced eviction"))
	}

	if err := pb.fd.Unlock(); err != nil {
		return newErr("Destroy", KindIO, err)
	}
	pb.closed = true
	return nil
}

// EndTick drains the tick list to the configured Publisher, then
// releases drained and expired delayed-write entries back onto the
// LRU (spec §4.3).
func (pb *PageBuffer) EndTick() (PublishStats, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.closed {
		return PublishStats{}, ErrClosed
	}
	pb.currTick++

	var published []PublishEntry
	var drained []*entry
	pb.tl.drain(func(e *entry) {
		published = append(published, PublishEntry{
			Addr:       e.addr,
			Size:       e.size,
			Image:      e.image,
			Dirty:      e.dirty,
			DelayUntil: e.delayUntil,
		})
		drained = append(drained, e)
	})

	var ps PublishStats
	if pb.cfg.publisher != nil {
		var err error
		ps, err = pb.cfg.publisher.Publish(published, pb.currTick)
		if err != nil {
			return PublishStats{}, newErr("EndTick", KindIO, err)
		}
	}

	for _, e := range drained {
		if e.delayUntil != 0 {
			continue // stays on the DWL until its deadline elapses
		}
		if e.isMPMDE() {
			if err := pb.flushEntry(e); err != nil {
				return ps, newErr("EndTick", KindIO, err)
			}
			if err := pb.evict(e, true); err != nil {
				return ps, newErr("EndTick", KindInvariant, err)
			}
			continue
		}
		pb.lru.moveToFront(e)
	}

	pb.dwl.releaseExpired(pb.currTick, func(e *entry) {
		e.delayUntil = 0
		if e.isMPMDE() {
			if err := pb.flushEntry(e); err == nil {
				pb.evict(e, true)
			}
			return
		}
		pb.lru.pushFront(e)
	})

	return ps, nil
}

// Stats reports a snapshot of the page buffer's activity counters.
func (pb *PageBuffer) Stats() Stats {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	s := pb.stats
	s.CurrMDPages = pb.currMDPages
	s.CurrRDPages = pb.currRDPages
	s.MPMDECount = pb.mpmdeCount
	s.CurrPages = pb.currMDPages + pb.currRDPages + pb.mpmdeCount
	s.DWLLen = pb.dwl.len()
	s.TLLen = pb.tl.len()
	return s
}
