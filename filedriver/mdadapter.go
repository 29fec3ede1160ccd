package filedriver

import (
	"io"

	"github.com/vfdswmr/pagebuf/mdfile"
)

// localMetaSource adapts LocalFile's metadata *os.File to mdfile.Source
// and mdfile.Sink, so a Decoder/Writer can be pointed straight at the
// same file a FileDriver already holds open.
type localMetaSource struct{ f *LocalFile }

func (s localMetaSource) ReadAt(p []byte, off int64) (int, error) {
	return s.f.meta.ReadAt(p, off)
}

func (s localMetaSource) WriteAt(p []byte, off int64) (int, error) {
	return s.f.meta.WriteAt(p, off)
}

func (s localMetaSource) Size() (int64, error) {
	fi, err := s.f.meta.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// MetaSource returns an mdfile.Source reading the metadata file.
func (f *LocalFile) MetaSource() mdfile.Source { return localMetaSource{f} }

// MetaSink returns an mdfile.Sink writing the metadata file.
func (f *LocalFile) MetaSink() mdfile.Sink { return localMetaSource{f} }

// memMetaSource adapts MemDriver's in-memory metadata buffer to
// mdfile.Source and mdfile.Sink, reusing MemDriver's own mutex.
type memMetaSource struct{ d *MemDriver }

func (s memMetaSource) ReadAt(p []byte, off int64) (int, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if off >= int64(len(s.d.meta)) {
		return 0, io.EOF
	}
	n := copy(p, s.d.meta[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s memMetaSource) WriteAt(p []byte, off int64) (int, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(s.d.meta)) {
		grown := make([]byte, end)
		copy(grown, s.d.meta)
		s.d.meta = grown
	}
	copy(s.d.meta[off:end], p)
	if end > s.d.metaEOA {
		s.d.metaEOA = end
	}
	return len(p), nil
}

func (s memMetaSource) Size() (int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return int64(len(s.d.meta)), nil
}

// MetaSource returns an mdfile.Source reading the in-memory metadata buffer.
func (d *MemDriver) MetaSource() mdfile.Source { return memMetaSource{d} }

// MetaSink returns an mdfile.Sink writing the in-memory metadata buffer.
func (d *MemDriver) MetaSink() mdfile.Sink { return memMetaSource{d} }
