package pagebuffer

// Kind distinguishes the two page classes the engine admits. The pair
// is a closed set, per spec §9's "express them as tagged variants, not
// runtime flags" note — Kind is the tag.
type Kind int

const (
	Metadata Kind = iota
	RawData
)

func (k Kind) String() string {
	if k == Metadata {
		return "metadata"
	}
	return "raw"
}

// entry is the in-memory record for one resident page, or one
// multi-page metadata entry (MPMDE) when size > page_size. It plays
// the role the teacher's storage.Page plays for a single page, widened
// to carry its own size and bookkeeping flags rather than living
// inside a fixed [PageSize]byte array — an MPMDE's image is a multiple
// of page_size and cannot fit the teacher's fixed layout.
type entry struct {
	addr int64 // absolute byte offset, multiple of page_size
	page int64 // addr / page_size
	size int64 // page_size, or a multiple of it for an MPMDE

	kind Kind
	image []byte // owned buffer of exactly size bytes

	mpmde bool // kind=Metadata && size>page_size, fixed at creation

	dirty            bool
	loaded           bool // true iff image was filled from the file driver
	modifiedThisTick bool
	delayUntil       uint64 // tick number; 0 = not delayed

	// lastFlushTick/lastChangeTick record the ticks of the entry's last
	// flush and last change. They are not passed to the Publisher;
	// mdfile.Writer keeps its own per-entry ticks.
	lastChangeTick uint64
	lastFlushTick  uint64

	// List membership. Only one of {lruPrev/lruNext, dwlPrev/dwlNext} is
	// ever linked at a time (invariant 2); tlPrev/tlNext links
	// independently whenever modifiedThisTick is set (invariant 3).
	// bucketNext chains within the index's open hash table.
	lruPrev, lruNext *entry
	dwlPrev, dwlNext *entry
	tlPrev, tlNext   *entry
	bucketNext       *entry
}

func (e *entry) isMPMDE() bool { return e.mpmde }

func newEntry(kind Kind, addr, size, pageSize int64) *entry {
	return &entry{
		addr:  addr,
		page:  addr / pageSize,
		kind:  kind,
		size:  size,
		mpmde: kind == Metadata && size > pageSize,
		image: make([]byte, size),
	}
}
