// Package editor implements the sparse edit overlay and the atomic save
// protocol layered on top of an immutable reader.Reader. The overlay is
// purely in-memory: there is no durable sidecar file, and it is always
// discarded on a successful Save or an explicit Revert.
package editor

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/csvview/csvview/internal/csvfmt"
	"github.com/csvview/csvview/internal/engineerr"
	"github.com/csvview/csvview/internal/reader"
)

// Editor owns a Reader exclusively for the duration of an edit session. It
// is NOT safe for concurrent mutation: a single logical owner is expected
// to call SetCell/SetRow/Revert*/Save serially.
type Editor struct {
	mu      sync.RWMutex
	r       *reader.Reader
	overlay map[int64][]string
}

// NewEditor wraps r with an empty overlay.
func NewEditor(r *reader.Reader) *Editor {
	return &Editor{
		r:       r,
		overlay: make(map[int64][]string),
	}
}

// Reader returns the Editor's current Reader. After Save succeeds this is
// a fresh Reader reopened against the rewritten file.
func (e *Editor) Reader() *reader.Reader {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.r
}

// DecodeRow implements search.RowSource's overlay-aware row decode: the
// overlay is consulted first, falling back to the Reader's decode.
func (e *Editor) DecodeRow(n int64) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if fields, ok := e.overlay[n]; ok {
		return fields, nil
	}
	return e.r.GetRow(n)
}

// RowCount, Headers, RawLine round out search.RowSource.
func (e *Editor) RowCount() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.r.RowCount()
}

func (e *Editor) Headers() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.r.Headers()
}

// RawLine returns the overlay's re-encoded bytes for an overlaid row, so
// that Search's zero-copy raw-byte prefilter sees pending edits too — the
// same overlay-first rule DecodeRow follows.
func (e *Editor) RawLine(n int64) []byte {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if fields, ok := e.overlay[n]; ok {
		return csvfmt.EncodeFields(fields, e.r.Delimiter())
	}
	raw, err := e.r.RawRow(n)
	if err != nil {
		return nil
	}
	return raw
}

// effectiveFields returns the overlay's fields for row n if present,
// otherwise decodes it from the Reader. Caller must hold e.mu.
func (e *Editor) effectiveFields(row int64) ([]string, error) {
	if fields, ok := e.overlay[row]; ok {
		clone := make([]string, len(fields))
		copy(clone, fields)
		return clone, nil
	}
	return e.r.GetRow(row)
}

// resolveColumn accepts either a header name or a numeric ordinal string.
func (e *Editor) resolveColumn(col string) (int, error) {
	if idx, ok := e.r.ColumnIndex(col); ok {
		return idx, nil
	}
	n := len(col)
	if n == 0 {
		return 0, engineerr.New(engineerr.NoSuchColumn, col)
	}
	val := 0
	for i := 0; i < n; i++ {
		c := col[i]
		if c < '0' || c > '9' {
			return 0, engineerr.New(engineerr.NoSuchColumn, col)
		}
		val = val*10 + int(c-'0')
	}
	if val >= e.r.ColumnCount() {
		return 0, engineerr.New(engineerr.NoSuchColumn, col)
	}
	return val, nil
}

// SetCell replaces the field at col in row with value, storing the full
// resulting field vector in the overlay.
func (e *Editor) SetCell(row int64, col string, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if row < 0 || row >= e.r.RowCount() {
		return engineerr.New(engineerr.OutOfRange, "row ordinal out of range")
	}
	idx, err := e.resolveColumn(col)
	if err != nil {
		return err
	}

	fields, err := e.effectiveFields(row)
	if err != nil {
		return err
	}
	if idx >= len(fields) {
		return engineerr.New(engineerr.NoSuchColumn, col)
	}
	fields[idx] = value
	e.overlay[row] = fields
	return nil
}

// SetRow replaces row's entire field vector. len(fields) must equal the
// header's column count, else WrongArity.
func (e *Editor) SetRow(row int64, fields []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if row < 0 || row >= e.r.RowCount() {
		return engineerr.New(engineerr.OutOfRange, "row ordinal out of range")
	}
	if len(fields) != e.r.ColumnCount() {
		return engineerr.New(engineerr.WrongArity, fmt.Sprintf("expected %d fields, got %d", e.r.ColumnCount(), len(fields)))
	}
	clone := make([]string, len(fields))
	copy(clone, fields)
	e.overlay[row] = clone
	return nil
}

// RevertRow removes row from the overlay. Idempotent.
func (e *Editor) RevertRow(row int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.overlay, row)
}

// RevertAll clears the overlay.
func (e *Editor) RevertAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.overlay = make(map[int64][]string)
}

// EditCount reports the number of overlaid rows.
func (e *Editor) EditCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.overlay)
}

// HasChanges reports whether the overlay is non-empty.
func (e *Editor) HasChanges() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.overlay) > 0
}

// Save atomically rewrites the target file: temp file in the same
// directory, header + effective rows in ascending order, fsync, rename
// into place (falling back to a backup-rename dance where a direct
// rename-over-existing is not atomic), then reopens the Reader and
// clears the overlay. On a failure before the rename, the original file
// and the overlay are left untouched. If reopening fails after the rename,
// the file on disk is already the saved version, while the Editor keeps
// its old Reader and the overlay.
func (e *Editor) Save() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	target := e.r.Path()
	dir := filepath.Dir(target)

	tmp, err := os.CreateTemp(dir, ".csvview-save-*")
	if err != nil {
		return engineerr.Wrap(engineerr.Io, "creating temp file", err)
	}
	tmpPath := tmp.Name()
	cleanupTemp := true
	defer func() {
		if cleanupTemp {
			_ = os.Remove(tmpPath)
		}
	}()

	w := bufio.NewWriter(tmp)
	delim := e.r.Delimiter()

	if _, err := w.Write(csvfmt.EncodeFields(e.r.Headers(), delim)); err != nil {
		_ = tmp.Close()
		return engineerr.Wrap(engineerr.Io, "writing header", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		_ = tmp.Close()
		return engineerr.Wrap(engineerr.Io, "writing header terminator", err)
	}

	count := e.r.RowCount()
	for n := int64(0); n < count; n++ {
		if fields, ok := e.overlay[n]; ok {
			if _, err := w.Write(csvfmt.EncodeFields(fields, delim)); err != nil {
				_ = tmp.Close()
				return engineerr.Wrap(engineerr.Io, "writing overlaid row", err)
			}
		} else {
			raw, err := e.r.RawRowForSave(n)
			if err != nil {
				_ = tmp.Close()
				return engineerr.Wrap(engineerr.Io, "reading original row", err)
			}
			if _, err := w.Write(raw); err != nil {
				_ = tmp.Close()
				return engineerr.Wrap(engineerr.Io, "copying original row", err)
			}
		}
		if err := w.WriteByte('\n'); err != nil {
			_ = tmp.Close()
			return engineerr.Wrap(engineerr.Io, "writing row terminator", err)
		}
	}

	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return engineerr.Wrap(engineerr.Io, "flushing temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return engineerr.Wrap(engineerr.Io, "fsync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return engineerr.Wrap(engineerr.Io, "closing temp file", err)
	}

	if err := renameIntoPlace(tmpPath, target); err != nil {
		return engineerr.Wrap(engineerr.Io, "renaming into place", err)
	}
	cleanupTemp = false

	// The file on disk is now the saved version; reopen it before touching
	// e.r or e.overlay so a failure here leaves the Editor's in-memory
	// state exactly as it was before Save, still serving the old mapping
	// with the overlay intact, rather than a closed Reader with no
	// recorded edits.
	newReader, err := reader.Open(target)
	if err != nil {
		return engineerr.Wrap(engineerr.Io, "reopening saved file", err)
	}
	if err := e.r.Close(); err != nil {
		_ = newReader.Close()
		return engineerr.Wrap(engineerr.Io, "closing previous mapping", err)
	}
	e.r = newReader
	e.overlay = make(map[int64][]string)
	return nil
}

// renameIntoPlace renames tmpPath over target. A direct os.Rename is
// atomic on every platform csvview targets when both paths share a
// filesystem; the backup-rename fallback only matters cross-filesystem
// or on a platform where rename-over-existing returns an error.
func renameIntoPlace(tmpPath, target string) error {
	if err := os.Rename(tmpPath, target); err == nil {
		return nil
	}

	backup := target + ".csvview-bak"
	if err := os.Rename(target, backup); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Rename(backup, target)
		return err
	}
	_ = os.Remove(backup)
	return nil
}
