// pbdemo drives a small, end-to-end VFD SWMR page buffer scenario: a
// writer opens a local metadata/raw-data file pair, touches a handful
// of metadata and raw pages within one tick, publishes the resulting
// index, and a reader decodes it back from the same files.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/vfdswmr/pagebuf/filedriver"
	"github.com/vfdswmr/pagebuf/mdfile"
	"github.com/vfdswmr/pagebuf/pagebuffer"
)

func main() {
	dir, err := os.MkdirTemp("", "pbdemo_*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	metaPath := dir + "/demo.meta"
	rawPath := dir + "/demo.raw"

	const pageSize = 4096
	const mdPagesReserved = 4

	fd, err := filedriver.OpenLocalFile(metaPath, rawPath)
	if err != nil {
		log.Fatal(err)
	}

	pub := mdfile.NewWriter(fd.MetaSink(), pageSize, mdPagesReserved)

	pb, err := pagebuffer.New(fd, pagebuffer.Config{
		PageSize:        pageSize,
		MaxSize:         64 * pageSize,
		MinMetaPct:      10,
		MinRawPct:       10,
		SWMRWriter:      true,
		MDPagesReserved: mdPagesReserved,
		Publisher:       pub,
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("=== VFD SWMR page buffer demo ===")
	fmt.Println()

	fmt.Println("--- writing metadata pages ---")
	mdAddr := int64(mdPagesReserved) * pageSize
	for i := 0; i < 3; i++ {
		addr := mdAddr + int64(i)*pageSize
		if err := pb.AddNewPage(pagebuffer.Metadata, addr); err != nil {
			log.Fatalf("AddNewPage(meta, %d): %v", addr, err)
		}
		buf := make([]byte, 64)
		copy(buf, fmt.Sprintf("metadata record #%d", i))
		if err := pb.Write(pagebuffer.Metadata, addr, buf); err != nil {
			log.Fatalf("Write(meta, %d): %v", addr, err)
		}
		fmt.Printf("  wrote metadata page at %#x\n", addr)
	}

	fmt.Println("--- writing raw data pages ---")
	for i := 0; i < 2; i++ {
		addr := int64(i) * pageSize
		if err := fd.SetEOA(pagebuffer.RawData, addr+pageSize); err != nil {
			log.Fatalf("SetEOA(raw, %d): %v", addr+pageSize, err)
		}
		if err := pb.AddNewPage(pagebuffer.RawData, addr); err != nil {
			log.Fatalf("AddNewPage(raw, %d): %v", addr, err)
		}
		buf := make([]byte, 64)
		copy(buf, fmt.Sprintf("raw bytes #%d", i))
		if err := pb.Write(pagebuffer.RawData, addr, buf); err != nil {
			log.Fatalf("Write(raw, %d): %v", addr, err)
		}
		fmt.Printf("  wrote raw page at %#x\n", addr)
	}
	fmt.Println()

	fmt.Println("--- end of tick ---")
	ps, err := pb.EndTick()
	if err != nil {
		log.Fatalf("EndTick: %v", err)
	}
	fmt.Printf("  published: added=%d modified=%d not_in_tl=%d not_in_tl_flushed=%d\n\n",
		ps.Added, ps.Modified, ps.NotInTL, ps.NotInTLFlushed)

	if err := pb.Flush(); err != nil {
		log.Fatalf("Flush: %v", err)
	}

	fmt.Println("--- stats ---")
	st := pb.Stats()
	fmt.Printf("  reads=%d writes=%d hits=%d misses=%d curr_pages=%d\n\n",
		st.Reads, st.Writes, st.Hits, st.Misses, st.CurrPages)

	fmt.Println("--- reader: decoding the published index ---")
	dec := mdfile.NewDecoder(fd.MetaSource(), mdfile.DecoderConfig{})
	ctx := context.Background()
	if err := dec.Reload(ctx); err != nil {
		log.Fatalf("Reload: %v", err)
	}
	dec.Configured = true

	readBack := make([]byte, pageSize)
	for i := 0; i < 3; i++ {
		addr := mdAddr + int64(i)*pageSize
		found, err := dec.ReadPage(ctx, addr, readBack)
		if err != nil {
			log.Fatalf("ReadPage(%d): %v", addr, err)
		}
		fmt.Printf("  page %#x: found=%v payload=%q\n", addr, found, trimZero(readBack[:32]))
	}

	if err := pb.Destroy(); err != nil {
		log.Fatalf("Destroy: %v", err)
	}
	fmt.Println()
	fmt.Println("=== done ===")
}

func trimZero(b []byte) string {
	i := 0
	for i < len(b) && b[i] != 0 {
		i++
	}
	return string(b[:i])
}
