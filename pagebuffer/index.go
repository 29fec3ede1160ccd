package pagebuffer

// defaultBuckets is the index's initial fixed bucket count. Grounded
// on ryogrid-bltree-go-for-embedding/bufmgr.go's hashTable []HashEntry,
// a fixed-size slice of buckets with collisions linked through an
// intrusive next field (HashEntry.next) rather than a Go map — the
// pack's only repo shaped the way spec §3 names the index ("open-
// chained hash table sized to a fixed constant").
const defaultBuckets = 256

// index maps (kind, page number) to *entry via open chaining. Unlike
// the teacher's Pager.cache (a plain map[uint32]*Page), growth is
// explicit: once the average chain length crosses loadFactorLimit the
// table doubles and rehashes, rather than the source's exit(1) on
// overflow (spec §9's explicit recommendation). Metadata and raw data
// are independently addressed files, so page number alone is not a
// unique key: metadata page 0 and raw page 0 are unrelated entries and
// must not collide.
type index struct {
	buckets []*entry
	count   int
}

const loadFactorLimit = 4

func newIndex() *index {
	return &index{buckets: make([]*entry, defaultBuckets)}
}

func (ix *index) bucketFor(kind Kind, page int64, numBuckets int) int {
	// Pages are already well-distributed (page = addr/page_size), so a
	// straight modulus over the (kind, page) pair is sufficient; no
	// additional mixing step is needed the way a string key would
	// require one.
	h := (uint64(page)*2 + uint64(kind)) % uint64(numBuckets)
	return int(h)
}

func (ix *index) get(kind Kind, page int64) *entry {
	b := ix.bucketFor(kind, page, len(ix.buckets))
	for e := ix.buckets[b]; e != nil; e = e.bucketNext {
		if e.page == page && e.kind == kind {
			return e
		}
	}
	return nil
}

func (ix *index) put(e *entry) {
	if ix.count+1 > loadFactorLimit*len(ix.buckets) {
		ix.grow()
	}
	b := ix.bucketFor(e.kind, e.page, len(ix.buckets))
	e.bucketNext = ix.buckets[b]
	ix.buckets[b] = e
	ix.count++
}

func (ix *index) remove(kind Kind, page int64) *entry {
	b := ix.bucketFor(kind, page, len(ix.buckets))
	var prev *entry
	for e := ix.buckets[b]; e != nil; e = e.bucketNext {
		if e.page == page && e.kind == kind {
			if prev != nil {
				prev.bucketNext = e.bucketNext
			} else {
				ix.buckets[b] = e.bucketNext
			}
			e.bucketNext = nil
			ix.count--
			return e
		}
		prev = e
	}
	return nil
}

func (ix *index) grow() {
	newBuckets := make([]*entry, len(ix.buckets)*2)
	for _, head := range ix.buckets {
		for e := head; e != nil; {
			next := e.bucketNext
			b := ix.bucketFor(e.kind, e.page, len(newBuckets))
			e.bucketNext = newBuckets[b]
			newBuckets[b] = e
			e = next
		}
	}
	ix.buckets = newBuckets
}

// forEach visits every entry in the index in unspecified order. Used
// by flush/destroy, which must touch every resident entry regardless
// of list membership.
func (ix *index) forEach(fn func(e *entry)) {
	for _, head := range ix.buckets {
		for e := head; e != nil; {
			next := e.bucketNext
			fn(e)
			e = next
		}
	}
}

func (ix *index) len() int { return ix.count }
