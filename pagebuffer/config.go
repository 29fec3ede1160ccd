package pagebuffer

import "fmt"

// Default retry bounds, used when a Config leaves them at zero. These
// mirror the nanosecond-doubling back-off the source hand-rolled,
// expressed per spec §9's Design Notes as an explicit policy value
// rather than inline sleeps (see package backoff).
const (
	DefaultHeaderRetryMax = 10
	DefaultIndexRetryMax  = 10
	DefaultStatRetryMax   = 100
	DefaultEntryRetryMax  = 10
)

// Config describes the tunables accepted by New. It plays the role of
// the teacher's eagerly-validated open-time options (storage.OpenPager
// validates its file header before returning; Giulio2002-gdbx's
// Env.SetPageSize range-checks before accepting).
type Config struct {
	// PageSize is the file's page-allocation granularity. Every entry
	// address is a multiple of PageSize.
	PageSize uint32

	// MaxSize is the page buffer's total capacity in bytes. Must be a
	// nonzero multiple of PageSize; a larger, non-multiple value is
	// rounded down rather than rejected (spec §4.1 "create").
	MaxSize int64

	// MinMetaPct / MinRawPct are each in [0, 100] and must sum to at
	// most 100; they derive MinMDPages/MinRDPages below.
	MinMetaPct int
	MinRawPct  int

	// SWMRWriter enables VFD-SWMR writer semantics: MPMDE writes,
	// delayed writes, and the tick list/publisher.
	SWMRWriter bool

	// Disabled, ExcludeMeta, ExcludeRaw, and Parallel each force every
	// read/write of the affected class straight through to the
	// FileDriver, bypassing the cache entirely (spec §4.1's first
	// decision-table row).
	Disabled   bool
	ExcludeMeta bool
	ExcludeRaw  bool
	Parallel    bool

	// MDPagesReserved is how many pages at the start of the metadata
	// file are reserved for the mdfile header+index (spec §6).
	MDPagesReserved uint32

	// Delay is consulted by mark_entry_dirty for loaded metadata
	// entries written by the SWMR writer. A nil Delay never delays.
	Delay DelayRequester

	// ForceFlushDelayed picks Destroy's behavior when delayed writes
	// remain outstanding: false (default) returns a Capacity error
	// naming the stuck pages; true flushes and evicts them instead.
	// See spec §9's open question on Destroy.
	ForceFlushDelayed bool

	// Publisher receives the drained tick list at EndTick and merges
	// it into the persistent reader-visible index (spec §4.3). A nil
	// Publisher makes EndTick a pure list-maintenance operation that
	// always returns a zero PublishStats.
	Publisher Publisher

	// Retry bounds for the reader-side metadata decoder (spec §6).
	// Zero means "use the Default* constant". New validates and stores
	// them, but the PageBuffer does not use them itself; mdfile.Decoder
	// takes its bounds from mdfile.DecoderConfig.
	HeaderRetryMax int
	IndexRetryMax  int
	StatRetryMax   int
	EntryRetryMax  int
}

// resolved is the validated, derived form of a Config.
type resolved struct {
	pageSize        int64
	maxPages        uint32
	minMDPages      uint32
	minRDPages      uint32
	swmrWriter      bool
	mdPagesReserved uint32
	delay           DelayRequester
	publisher       Publisher
	forceFlush      bool

	disabled    bool
	excludeMeta bool
	excludeRaw  bool
	parallel    bool

	headerRetryMax int
	indexRetryMax  int
	statRetryMax   int
	entryRetryMax  int
}

func (c Config) resolve() (resolved, error) {
	var r resolved

	if c.PageSize == 0 {
		return r, fmt.Errorf("page size must be nonzero")
	}
	if c.MaxSize <= 0 {
		return r, fmt.Errorf("max size must be positive")
	}
	if c.MinMetaPct < 0 || c.MinMetaPct > 100 || c.MinRawPct < 0 || c.MinRawPct > 100 {
		return r, fmt.Errorf("min_meta_pct and min_raw_pct must each be in [0, 100]")
	}
	if c.MinMetaPct+c.MinRawPct > 100 {
		return r, fmt.Errorf("min_meta_pct + min_raw_pct must be <= 100")
	}

	ps := int64(c.PageSize)
	maxPages := c.MaxSize / ps
	if maxPages <= 0 {
		return r, fmt.Errorf("max size %d rounds down to zero pages at page size %d", c.MaxSize, c.PageSize)
	}

	minMD := (maxPages * int64(c.MinMetaPct)) / 100
	minRD := (maxPages * int64(c.MinRawPct)) / 100
	if minMD+minRD > maxPages {
		return r, fmt.Errorf("min_md_pages + min_rd_pages must be <= max_pages")
	}

	r = resolved{
		pageSize:        ps,
		maxPages:        uint32(maxPages),
		minMDPages:      uint32(minMD),
		minRDPages:      uint32(minRD),
		swmrWriter:      c.SWMRWriter,
		mdPagesReserved: c.MDPagesReserved,
		delay:           c.Delay,
		publisher:       c.Publisher,
		forceFlush:      c.ForceFlushDelayed,
		disabled:        c.Disabled,
		excludeMeta:     c.ExcludeMeta,
		excludeRaw:      c.ExcludeRaw,
		parallel:        c.Parallel,
		headerRetryMax:  orDefault(c.HeaderRetryMax, DefaultHeaderRetryMax),
		indexRetryMax:   orDefault(c.IndexRetryMax, DefaultIndexRetryMax),
		statRetryMax:    orDefault(c.StatRetryMax, DefaultStatRetryMax),
		entryRetryMax:   orDefault(c.EntryRetryMax, DefaultEntryRetryMax),
	}
	return r, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
