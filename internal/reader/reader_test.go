package reader

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/csvview/csvview/internal/engineerr"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestOpenBasic(t *testing.T) {
	path := writeTemp(t, "a,b,c\n1,2,3\n4,5,6\n")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if got := r.RowCount(); got != 2 {
		t.Errorf("RowCount = %d, want 2", got)
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(r.Headers(), want) {
		t.Errorf("Headers = %v, want %v", r.Headers(), want)
	}
	if r.Delimiter() != ',' {
		t.Errorf("Delimiter = %q, want comma", r.Delimiter())
	}
	row, err := r.GetRow(1)
	if err != nil {
		t.Fatalf("GetRow(1): %v", err)
	}
	if want := []string{"4", "5", "6"}; !reflect.DeepEqual(row, want) {
		t.Errorf("GetRow(1) = %v, want %v", row, want)
	}
}

func TestOpenEmptyFile(t *testing.T) {
	path := writeTemp(t, "")
	_, err := Open(path)
	if !engineerr.Is(err, engineerr.Empty) {
		t.Fatalf("Open empty file: got %v, want Empty", err)
	}
}

func TestOpenNoHeader(t *testing.T) {
	path := writeTemp(t, "\n")
	_, err := Open(path)
	if !engineerr.Is(err, engineerr.NoHeader) {
		t.Fatalf("Open blank-only file: got %v, want NoHeader", err)
	}
}

func TestOpenHeaderOnly(t *testing.T) {
	path := writeTemp(t, "a,b,c\n")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if got := r.RowCount(); got != 0 {
		t.Errorf("RowCount = %d, want 0", got)
	}
	if _, err := r.GetRow(0); !engineerr.Is(err, engineerr.OutOfRange) {
		t.Errorf("GetRow(0) on header-only file: got %v, want OutOfRange", err)
	}
}

func TestOpenNoTrailingNewline(t *testing.T) {
	path := writeTemp(t, "a,b\n1,2\n3,4")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if got := r.RowCount(); got != 2 {
		t.Fatalf("RowCount = %d, want 2", got)
	}
	row, err := r.GetRow(1)
	if err != nil {
		t.Fatalf("GetRow(1): %v", err)
	}
	if want := []string{"3", "4"}; !reflect.DeepEqual(row, want) {
		t.Errorf("GetRow(1) = %v, want %v", row, want)
	}
}

func TestOpenQuotedField(t *testing.T) {
	path := writeTemp(t, "name,note\nalice,\"hello, world\"\nbob,plain\n")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	row, err := r.GetRow(0)
	if err != nil {
		t.Fatalf("GetRow(0): %v", err)
	}
	if want := []string{"alice", "hello, world"}; !reflect.DeepEqual(row, want) {
		t.Errorf("GetRow(0) = %v, want %v", row, want)
	}
}

func TestGetRowOutOfRange(t *testing.T) {
	path := writeTemp(t, "a,b\n1,2\n")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if _, err := r.GetRow(5); !engineerr.Is(err, engineerr.OutOfRange) {
		t.Errorf("GetRow(5): got %v, want OutOfRange", err)
	}
	if _, err := r.GetRow(-1); !engineerr.Is(err, engineerr.OutOfRange) {
		t.Errorf("GetRow(-1): got %v, want OutOfRange", err)
	}
}

func TestGetRowsRange(t *testing.T) {
	path := writeTemp(t, "a\n1\n2\n3\n4\n5\n")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	rows, err := r.GetRows(1, 3)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	want := [][]string{{"2"}, {"3"}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("GetRows(1,3) = %v, want %v", rows, want)
	}

	// end clamps to RowCount.
	rows, err = r.GetRows(3, 100)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if want := [][]string{{"4"}, {"5"}}; !reflect.DeepEqual(rows, want) {
		t.Errorf("GetRows(3,100) = %v, want %v", rows, want)
	}
}

func TestOpenNotFound(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.csv"))
	if !engineerr.Is(err, engineerr.NotFound) {
		t.Fatalf("Open missing file: got %v, want NotFound", err)
	}
	var ee *engineerr.Error
	if !errors.As(err, &ee) {
		t.Fatalf("error does not unwrap to *engineerr.Error")
	}
}

func TestColumnIndex(t *testing.T) {
	path := writeTemp(t, "Name,Age\nalice,30\n")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if idx, ok := r.ColumnIndex("Name"); !ok || idx != 0 {
		t.Errorf("ColumnIndex(Name) = %d,%v want 0,true", idx, ok)
	}
	if idx, ok := r.ColumnIndex("age"); !ok || idx != 1 {
		t.Errorf("ColumnIndex(age) = %d,%v want 1,true", idx, ok)
	}
	if _, ok := r.ColumnIndex("missing"); ok {
		t.Errorf("ColumnIndex(missing) should not be found")
	}
}

func TestOpenLargeFileParallelIndex(t *testing.T) {
	// Exercise the multi-worker path in buildLineIndex (chunkSize >= 1MB
	// requires workers*1MB bytes of content).
	var sb []byte
	sb = append(sb, "col\n"...)
	row := "0123456789012345678901234567890123456789012345678901234567890123\n" // 65 bytes
	for i := 0; i < 200000; i++ {
		sb = append(sb, row...)
	}
	path := writeTemp(t, string(sb))
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if got, want := r.RowCount(), int64(200000); got != want {
		t.Fatalf("RowCount = %d, want %d", got, want)
	}
	last, err := r.GetRow(r.RowCount() - 1)
	if err != nil {
		t.Fatalf("GetRow(last): %v", err)
	}
	if last[0] != "0123456789012345678901234567890123456789012345678901234567890123" {
		t.Errorf("last row decoded incorrectly: %v", last)
	}
}
