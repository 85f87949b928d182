package core

// streaming.go prepares a raw byte stream for CSV parsing without loading it
// into memory:
//
//   - CountingReader tracks raw bytes consumed for progress reporting
//   - DecodeReader converts the source encoding to UTF-8, strips byte order
//     marks and replaces ill-formed sequences with U+FFFD
//
// Count before decoding so byte totals match the file size.

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// DefaultEncoding is used when no encoding is specified.
const DefaultEncoding = "utf-8"

// LookupEncoding resolves an encoding name ("utf-8", "windows-1252",
// "iso-8859-1", "utf-16le", "shift_jis", ...) using the WHATWG index.
func LookupEncoding(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultEncoding
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	return enc, nil
}

// DecodeReader returns a reader producing UTF-8 from r.
//
// For UTF-8 sources a leading BOM is removed (a UTF-16 BOM switches decoding
// to UTF-16). Invalid byte sequences are replaced with U+FFFD for every
// encoding.
func DecodeReader(r io.Reader, name string) (io.Reader, error) {
	enc, err := LookupEncoding(name)
	if err != nil {
		return nil, err
	}

	var decoder transform.Transformer
	if enc == unicode.UTF8 {
		decoder = unicode.BOMOverride(unicode.UTF8.NewDecoder())
	} else {
		decoder = enc.NewDecoder()
	}

	return transform.NewReader(r, transform.Chain(decoder, runes.ReplaceIllFormed())), nil
}

// CountingReader wraps an io.Reader to track bytes read. BytesRead is safe to
// call from other goroutines while reading is in progress.
type CountingReader struct {
	reader io.Reader
	read   atomic.Int64
	Total  int64 // 0 if unknown
}

// NewCountingReader creates a counting reader with an optional total size.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{reader: r, Total: total}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.read.Add(int64(n))
	return n, err
}

// BytesRead returns the number of bytes consumed so far.
func (r *CountingReader) BytesRead() int64 {
	return r.read.Load()
}

// Progress returns the read progress as a percentage (0-100).
// Returns 0 if total is unknown.
func (r *CountingReader) Progress() int {
	if r.Total <= 0 {
		return 0
	}
	pct := int(r.BytesRead() * 100 / r.Total)
	if pct > 100 {
		pct = 100
	}
	return pct
}
