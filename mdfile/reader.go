package mdfile

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vfdswmr/pagebuf/backoff"
)

// Source is the minimal file-like collaborator the Decoder needs: a
// stat-for-size primitive and a positioned read. filedriver.LocalFile
// and filedriver.MemDriver both satisfy a trivial adapter over this.
type Source interface {
	ReadAt(p []byte, off int64) (int, error)
	Size() (int64, error)
}

// DecoderConfig tunes the Decoder's retry bounds and back-off policy.
// Zero-valued fields fall back to package defaults.
type DecoderConfig struct {
	Policy         backoff.Policy
	HeaderRetryMax int
	IndexRetryMax  int
	StatRetryMax   int
	EntryRetryMax  int
}

func (c DecoderConfig) resolve() DecoderConfig {
	if c.Policy.MaxAttempts == 0 {
		c.Policy = backoff.Default
	}
	if c.HeaderRetryMax == 0 {
		c.HeaderRetryMax = 10
	}
	if c.IndexRetryMax == 0 {
		c.IndexRetryMax = 10
	}
	if c.StatRetryMax == 0 {
		c.StatRetryMax = 100
	}
	if c.EntryRetryMax == 0 {
		c.EntryRetryMax = 10
	}
	return c
}

// Decoder is the reader-side metadata-file decoder of spec §4.2. It
// maintains a locally cached {header, index} pair and redirects reads
// for listed pages into the metadata file, retrying with exponential
// back-off on torn or checksum-mismatched reads. Never exposes a write
// path (spec §3A's read-only mode), mirroring the teacher's
// OpenPagerReadOnly/ErrReadOnly contract applied to the reader side of
// VFD SWMR rather than to the SQL pager.
//
// Grounded on storage/wal.go's loadRecords (scan-until-incomplete-or-
// corrupt, stop rather than fail the whole file) generalized into a
// genuine retry loop, since the metadata file here may be mid-update
// by a live writer rather than read once at open.
type Decoder struct {
	src Source
	cfg DecoderConfig

	// Configured marks whether the owning page buffer has finished
	// recognizing the file signature; before that, short reads are
	// tolerated (spec §4.2).
	Configured bool

	mu         sync.Mutex
	header     Header
	index      Index
	haveHeader bool
}

// NewDecoder returns a Decoder with no cached header; the first
// Reload always performs a full load (spec §4.2: "on first open,
// always load").
func NewDecoder(src Source, cfg DecoderConfig) *Decoder {
	return &Decoder{src: src, cfg: cfg.resolve()}
}

func (d *Decoder) sleep(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.cfg.Policy.Delay(attempt)):
		return nil
	}
}

func (d *Decoder) waitForSize(ctx context.Context, want int64) error {
	for attempt := 1; attempt <= d.cfg.StatRetryMax; attempt++ {
		if sz, err := d.src.Size(); err == nil && sz >= want {
			return nil
		}
		if err := d.sleep(ctx, attempt); err != nil {
			return err
		}
	}
	return ErrRetryExhausted
}

func (d *Decoder) loadHeaderOnce(ctx context.Context) (Header, error) {
	if err := d.waitForSize(ctx, HeaderSize); err != nil {
		return Header{}, err
	}
	buf := make([]byte, HeaderSize)
	if _, err := d.src.ReadAt(buf, 0); err != nil {
		return Header{}, err
	}
	return DecodeHeader(buf)
}

func (d *Decoder) loadIndexOnce(ctx context.Context, hdr Header) (Index, error) {
	want := int64(hdr.IndexOffset) + int64(hdr.IndexLength)
	if err := d.waitForSize(ctx, want); err != nil {
		return Index{}, err
	}
	buf := make([]byte, hdr.IndexLength)
	if _, err := d.src.ReadAt(buf, int64(hdr.IndexOffset)); err != nil {
		return Index{}, err
	}
	return DecodeIndex(buf)
}

// Reload re-reads the header and, if its tick has advanced, the index
// behind it, applying the coherence and retry rules of spec §4.2. It
// is a no-op once the freshly-loaded header's tick equals the cached
// one.
func (d *Decoder) Reload(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	maxAttempts := d.cfg.HeaderRetryMax
	if d.cfg.IndexRetryMax > maxAttempts {
		maxAttempts = d.cfg.IndexRetryMax
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		hdr, err := d.loadHeaderOnce(ctx)
		if err != nil {
			if err := d.sleep(ctx, attempt); err != nil {
				return err
			}
			continue
		}
		if d.haveHeader && hdr.TickNum < d.header.TickNum {
			return ErrTickSkew
		}
		if d.haveHeader && hdr.TickNum == d.header.TickNum {
			return nil
		}

		idx, err := d.loadIndexOnce(ctx, hdr)
		if err != nil {
			if err := d.sleep(ctx, attempt); err != nil {
				return err
			}
			continue
		}
		if hdr.TickNum > idx.TickNum+1 {
			return ErrTickSkew
		}
		if hdr.TickNum != idx.TickNum {
			// writer is mid-publish; retry from the header.
			if err := d.sleep(ctx, attempt); err != nil {
				return err
			}
			continue
		}

		d.header, d.index, d.haveHeader = hdr, idx, true
		return nil
	}
	return ErrRetryExhausted
}

func findEntry(entries []IndexEntry, page uint32) (IndexEntry, bool) {
	i := sort.Search(len(entries), func(i int) bool { return entries[i].HDF5PageOffset >= page })
	if i < len(entries) && entries[i].HDF5PageOffset == page {
		return entries[i], true
	}
	return IndexEntry{}, false
}

// ReadPage serves a page-aligned read through the cached index. found
// is false when the target page has no published entry, in which
// case the caller must delegate to the underlying real file driver
// (spec §4.2's served-reads rule).
func (d *Decoder) ReadPage(ctx context.Context, addr int64, buf []byte) (found bool, err error) {
	d.mu.Lock()
	hdr, idx := d.header, d.index
	d.mu.Unlock()

	if hdr.PageSize == 0 {
		return false, nil
	}
	page := uint32(addr / int64(hdr.PageSize))
	e, ok := findEntry(idx.Entries, page)
	if !ok {
		return false, nil
	}

	pageOff := addr % int64(hdr.PageSize)
	mdOff := int64(e.MDFilePageOffset)*int64(hdr.PageSize) + pageOff

	for attempt := 1; attempt <= d.cfg.EntryRetryMax; attempt++ {
		n, rerr := d.src.ReadAt(buf, mdOff)
		if rerr != nil && !d.Configured {
			// short reads are tolerated until the buffer is configured
		} else if rerr != nil {
			if err := d.sleep(ctx, attempt); err != nil {
				return false, err
			}
			continue
		}
		if d.Configured && uint32(n) != e.Length {
			if err := d.sleep(ctx, attempt); err != nil {
				return false, err
			}
			continue
		}
		if PageChecksum(buf[:n]) != e.Checksum {
			if err := d.sleep(ctx, attempt); err != nil {
				return false, err
			}
			continue
		}
		return true, nil
	}
	return false, ErrRetryExhausted
}

// Header returns the currently cached header.
func (d *Decoder) Header() Header {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.header
}
