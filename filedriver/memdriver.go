// Package filedriver provides reference FileDriver implementations for
// package pagebuffer: an in-memory driver for tests and a local-disk
// driver for real use.
package filedriver

import (
	"fmt"
	"sync"

	"github.com/vfdswmr/pagebuf/pagebuffer"
)

// MemDriver is an in-memory pagebuffer.FileDriver backed by two
// growable byte slices, one per pagebuffer.Kind. Grounded on
// storage/memfile.go's MemFile (growable-slice ReadAt/WriteAt guarded
// by a mutex), generalized with a separate EOA/EOF pair per class
// since the teacher's single-file pager never split metadata from raw
// data.
type MemDriver struct {
	mu sync.Mutex

	meta    []byte
	raw     []byte
	metaEOA int64
	rawEOA  int64

	locked   bool
	writable bool
}

// NewMemDriver returns an empty MemDriver.
func NewMemDriver() *MemDriver {
	return &MemDriver{}
}

func (d *MemDriver) bufFor(kind pagebuffer.Kind) *[]byte {
	if kind == pagebuffer.Metadata {
		return &d.meta
	}
	return &d.raw
}

func (d *MemDriver) eoaFor(kind pagebuffer.Kind) *int64 {
	if kind == pagebuffer.Metadata {
		return &d.metaEOA
	}
	return &d.rawEOA
}

func (d *MemDriver) Read(kind pagebuffer.Kind, addr int64, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := *d.bufFor(kind)
	if addr >= int64(len(b)) {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	n := copy(buf, b[addr:])
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}

func (d *MemDriver) Write(kind pagebuffer.Kind, addr int64, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	bp := d.bufFor(kind)
	end := addr + int64(len(buf))
	if end > int64(len(*bp)) {
		grown := make([]byte, end)
		copy(grown, *bp)
		*bp = grown
	}
	copy((*bp)[addr:end], buf)
	if eoa := d.eoaFor(kind); end > *eoa {
		*eoa = end
	}
	return nil
}

func (d *MemDriver) EOA(kind pagebuffer.Kind) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return *d.eoaFor(kind)
}

func (d *MemDriver) SetEOA(kind pagebuffer.Kind, addr int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	*d.eoaFor(kind) = addr
	bp := d.bufFor(kind)
	if addr > int64(len(*bp)) {
		grown := make([]byte, addr)
		copy(grown, *bp)
		*bp = grown
	}
	return nil
}

func (d *MemDriver) EOF(kind pagebuffer.Kind) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(*d.bufFor(kind)))
}

func (d *MemDriver) Lock(writable bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.locked {
		return fmt.Errorf("filedriver: already locked")
	}
	d.locked = true
	d.writable = writable
	return nil
}

func (d *MemDriver) Unlock() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locked = false
	return nil
}

func (d *MemDriver) Truncate(closing bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.meta = d.meta[:d.metaEOA]
	d.raw = d.raw[:d.rawEOA]
	return nil
}
