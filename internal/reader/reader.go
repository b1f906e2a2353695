// Package reader implements the memory-mapped, line-indexed CSV reader:
// the Reader component of the engine. After Open returns, a Reader's
// mapping, line index, headers, and delimiter never change, so concurrent
// callers may call GetRow/GetRows/any read-only method without locking.
package reader

import (
	"bytes"
	"os"
	"runtime"
	"sync"

	"github.com/csvview/csvview/internal/csvfmt"
	"github.com/csvview/csvview/internal/engineerr"
	"github.com/csvview/csvview/internal/mmapio"
)

const prefixSampleBytes = 64 * 1024

// Reader holds an immutable memory-mapped CSV file plus its line index.
type Reader struct {
	path      string
	file      *os.File
	data      []byte
	lineIndex []int64 // length R+1; LineIndex[i] is the first byte of row i
	delimiter byte
	headers   []string
}

// Open mmaps path read-only, detects its delimiter, builds the line index
// by scanning the whole mapping for newlines, and decodes row 0 as headers.
func Open(path string) (*Reader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.NotFound, path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, engineerr.New(engineerr.NotFound, path+" is not a regular file")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.Io, "opening "+path, err)
	}

	size := info.Size()
	if size == 0 {
		_ = f.Close()
		return nil, engineerr.New(engineerr.Empty, path)
	}

	data, err := mmapio.Map(f, size)
	if err != nil {
		_ = f.Close()
		return nil, engineerr.Wrap(engineerr.Io, "mmap "+path, err)
	}

	r := &Reader{
		path: path,
		file: f,
		data: data,
	}

	prefix := data
	if len(prefix) > prefixSampleBytes {
		prefix = prefix[:prefixSampleBytes]
	}
	r.delimiter = csvfmt.DetectDelimiter(prefix)

	r.lineIndex = buildLineIndex(data)

	headerLine := r.rawLine(0)
	if len(r.lineIndex) == 2 && len(headerLine) == 0 {
		_ = r.Close()
		return nil, engineerr.New(engineerr.NoHeader, path)
	}
	r.headers = csvfmt.DecodeLine(headerLine, r.delimiter)

	return r, nil
}

// buildLineIndex scans data for every '\n' in parallel chunks and returns
// the offsets of the start of each physical line, plus the final sentinel
// equal to len(data). This scan is lexical: a '\n' inside a quoted field
// still ends a "row" here (see spec §9 — an accepted trade, not a bug).
func buildLineIndex(data []byte) []int64 {
	n := len(data)
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	chunkSize := n / workers
	if chunkSize < 1<<20 { // below 1MB/worker, parallelism isn't worth it
		workers = 1
		chunkSize = n
	}

	perWorker := make([][]int64, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if w == workers-1 {
			end = n
		}
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			chunk := data[start:end]
			var positions []int64
			off := 0
			for {
				idx := bytes.IndexByte(chunk[off:], '\n')
				if idx == -1 {
					break
				}
				positions = append(positions, int64(start+off+idx))
				off += idx + 1
			}
			perWorker[w] = positions
		}(w, start, end)
	}
	wg.Wait()

	index := make([]int64, 0, n/32+2)
	index = append(index, 0)
	for _, positions := range perWorker {
		for _, pos := range positions {
			index = append(index, pos+1)
		}
	}
	if int64(index[len(index)-1]) != int64(n) {
		index = append(index, int64(n))
	}
	return index
}

// RowCount returns the number of data rows (excludes the header and the
// final sentinel), clamped to 0 for a header-only file.
func (r *Reader) RowCount() int64 {
	total := int64(len(r.lineIndex)) - 1 - 1 // sentinel, header
	if total < 0 {
		return 0
	}
	return total
}

// Headers returns the decoded header row, cached at Open.
func (r *Reader) Headers() []string {
	return r.headers
}

// ColumnCount returns C, the fixed header width.
func (r *Reader) ColumnCount() int {
	return len(r.headers)
}

// Delimiter returns the byte detected at Open.
func (r *Reader) Delimiter() byte {
	return r.delimiter
}

// Path returns the path this Reader was opened from.
func (r *Reader) Path() string {
	return r.path
}

// Size returns the mapped file's byte length.
func (r *Reader) Size() int64 {
	return int64(len(r.data))
}

// rawLine returns row n's bytes (header is row 0) with any trailing \r\n or
// \n stripped, without bounds-checking n against RowCount (callers that
// expose n publicly as a data-row ordinal must add 1 and check first).
func (r *Reader) rawLine(n int) []byte {
	start := r.lineIndex[n]
	end := r.lineIndex[n+1]
	line := r.data[start:end]
	line = bytes.TrimSuffix(line, []byte{'\n'})
	line = bytes.TrimSuffix(line, []byte{'\r'})
	return line
}

// RawRow returns the raw bytes of data row n (1-based internal line
// position n+1), trailing terminator stripped.
func (r *Reader) RawRow(n int64) ([]byte, error) {
	if n < 0 || n >= r.RowCount() {
		return nil, engineerr.New(engineerr.OutOfRange, "row ordinal out of range")
	}
	return r.rawLine(int(n) + 1), nil
}

// RawRowForSave returns data row n's bytes with only the trailing '\n'
// stripped, preserving an original trailing '\r' verbatim. Save copies
// unedited rows through this so byte-for-byte line endings survive a
// save untouched — unlike RawRow/GetRow, which always strip \r because
// decoded fields must never include it.
func (r *Reader) RawRowForSave(n int64) ([]byte, error) {
	if n < 0 || n >= r.RowCount() {
		return nil, engineerr.New(engineerr.OutOfRange, "row ordinal out of range")
	}
	idx := int(n) + 1
	start := r.lineIndex[idx]
	end := r.lineIndex[idx+1]
	return bytes.TrimSuffix(r.data[start:end], []byte{'\n'}), nil
}

// GetRow decodes data row n. n is a 0-based data-row ordinal.
func (r *Reader) GetRow(n int64) ([]string, error) {
	raw, err := r.RawRow(n)
	if err != nil {
		return nil, err
	}
	return csvfmt.DecodeLine(raw, r.delimiter), nil
}

// GetRows decodes the half-open range [start, end), clamped into
// [0, RowCount()]. end < start is an error.
func (r *Reader) GetRows(start, end int64) ([][]string, error) {
	count := r.RowCount()
	if start < 0 {
		start = 0
	}
	if end > count {
		end = count
	}
	if end < start {
		return nil, engineerr.New(engineerr.OutOfRange, "end < start")
	}
	rows := make([][]string, 0, end-start)
	for n := start; n < end; n++ {
		row, err := r.GetRow(n)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ColumnIndex resolves a header name to its ordinal, case-sensitively
// first and falling back to a case-insensitive match, mirroring the
// teacher's lower-cased header map lookup.
func (r *Reader) ColumnIndex(name string) (int, bool) {
	for i, h := range r.headers {
		if h == name {
			return i, true
		}
	}
	lower := toLowerASCII(name)
	for i, h := range r.headers {
		if toLowerASCII(h) == lower {
			return i, true
		}
	}
	return 0, false
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Close unmaps the file and releases its descriptor.
func (r *Reader) Close() error {
	if r.data != nil {
		if err := mmapio.Unmap(r.data); err != nil {
			return engineerr.Wrap(engineerr.Io, "munmap", err)
		}
		r.data = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return engineerr.Wrap(engineerr.Io, "close", err)
		}
		r.file = nil
	}
	return nil
}

