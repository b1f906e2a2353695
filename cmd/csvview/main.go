// Command csvview is the terminal surface for the engine: info, view,
// search, and edit subcommands over a single delimiter-separated file.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/csvview/csvview/internal/bitscan"
	"github.com/csvview/csvview/internal/csvfmt"
	"github.com/csvview/csvview/internal/editor"
	"github.com/csvview/csvview/internal/reader"
	"github.com/csvview/csvview/internal/search"
)

const (
	version    = "0.1.0"
	truncateAt = 40
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "info":
		err = runInfo(args)
	case "view":
		err = runView(args)
	case "search":
		err = runSearch(args)
	case "edit":
		err = runEdit(args)
	case "version":
		fmt.Printf("csvview v%s\n", version)
		return
	case "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		if argErr, ok := err.(argError); ok {
			fmt.Fprintf(os.Stderr, "Error: %v\n", argErr.err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// argError marks a usage/argument mistake, as distinct from an engine
// error, so main can map it to exit code 2 instead of 1.
type argError struct{ err error }

func (a argError) Error() string { return a.err.Error() }

func printUsage() {
	fmt.Println(`csvview - random-access viewer and targeted editor for large CSV files

Usage:
    csvview <command> [arguments]

Commands:
    info <path>                 Show file metadata
    view <path>                 Print rows as a table
    search <path> <query>       Full-scan substring search
    edit <path>                 Apply one cell edit and save
    version                     Show version
    help                        Show this help

Use "csvview <command> --help" for command-specific flags.`)
}

func runInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	verbose := fs.Bool("verbose", false, "show CPU feature diagnostics")
	if err := fs.Parse(args); err != nil {
		return argError{err}
	}
	if fs.NArg() < 1 {
		return argError{fmt.Errorf("info requires <path>")}
	}
	path := fs.Arg(0)

	start := time.Now()
	r, err := reader.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	elapsed := time.Since(start)

	fmt.Printf("path:          %s\n", r.Path())
	fmt.Printf("size:          %s bytes\n", thousands(r.Size()))
	fmt.Printf("delimiter:     %s\n", csvfmt.DelimiterName(r.Delimiter()))
	fmt.Printf("columns:       %d\n", r.ColumnCount())
	fmt.Printf("rows:          %s\n", thousands(r.RowCount()))
	fmt.Printf("headers:       %s\n", strings.Join(r.Headers(), ", "))
	fmt.Printf("opened in:     %s\n", elapsed.Round(time.Millisecond))
	if *verbose {
		fmt.Printf("cpu features:  %s\n", strings.Join(bitscan.CPUFeatures(), ", "))
	}
	return nil
}

func runView(args []string) error {
	fs := flag.NewFlagSet("view", flag.ContinueOnError)
	rowsFlag := fs.String("rows", "", "row range: N or A-B (default: first 20 data rows)")
	if err := fs.Parse(args); err != nil {
		return argError{err}
	}
	if fs.NArg() < 1 {
		return argError{fmt.Errorf("view requires <path>")}
	}
	path := fs.Arg(0)

	r, err := reader.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	start, end, err := parseRowRange(*rowsFlag, r.RowCount())
	if err != nil {
		return argError{err}
	}
	rows, err := r.GetRows(start, end)
	if err != nil {
		return err
	}
	printTable(r.Headers(), start, rows)
	return nil
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	column := fs.String("column", "", "restrict match to this column (name or ordinal)")
	caseInsensitive := fs.Bool("i", false, "case-insensitive match")
	maxResults := fs.Int("n", 0, "max results (0 = unlimited)")
	if err := fs.Parse(args); err != nil {
		return argError{err}
	}
	if fs.NArg() < 2 {
		return argError{fmt.Errorf("search requires <path> <query>")}
	}
	path := fs.Arg(0)
	query := fs.Arg(1)

	r, err := reader.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	src := readerRowSource{r: r}
	hits, err := search.Search(src, query, search.Options{
		Column:        *column,
		CaseSensitive: !*caseInsensitive,
		MaxResults:    *maxResults,
	})
	if err != nil {
		return err
	}

	rows := make([][]string, len(hits))
	ordinals := make([]int64, len(hits))
	for i, h := range hits {
		rows[i] = h.Fields
		ordinals[i] = h.RowNum
	}
	printTableOrdinals(r.Headers(), ordinals, rows)
	return nil
}

func runEdit(args []string) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	row := fs.Int64("row", -1, "data-row ordinal")
	col := fs.String("col", "", "column name or ordinal")
	value := fs.String("value", "", "new cell value")
	if err := fs.Parse(args); err != nil {
		return argError{err}
	}
	if fs.NArg() < 1 {
		return argError{fmt.Errorf("edit requires <path>")}
	}
	if *row < 0 || *col == "" {
		return argError{fmt.Errorf("edit requires --row and --col")}
	}
	path := fs.Arg(0)

	r, err := reader.Open(path)
	if err != nil {
		return err
	}
	e := editor.NewEditor(r)

	old, err := e.DecodeRow(*row)
	if err != nil {
		return err
	}
	idx, ok := r.ColumnIndex(*col)
	if !ok {
		idx = -1
	}
	oldValue := ""
	if idx >= 0 && idx < len(old) {
		oldValue = old[idx]
	}

	if err := e.SetCell(*row, *col, *value); err != nil {
		return err
	}
	if err := e.Save(); err != nil {
		return err
	}

	fmt.Printf("row %d, column %q: %q -> %q\n", *row, *col, oldValue, *value)
	return nil
}

// readerRowSource adapts a read-only Reader to search.RowSource for the
// `search` subcommand, which never goes through an Editor overlay.
type readerRowSource struct {
	r *reader.Reader
}

func (s readerRowSource) RowCount() int64   { return s.r.RowCount() }
func (s readerRowSource) Headers() []string { return s.r.Headers() }
func (s readerRowSource) RawLine(n int64) []byte {
	raw, err := s.r.RawRow(n)
	if err != nil {
		return nil
	}
	return raw
}
func (s readerRowSource) DecodeRow(n int64) ([]string, error) { return s.r.GetRow(n) }

func parseRowRange(spec string, total int64) (int64, int64, error) {
	if spec == "" {
		end := total
		if end > 20 {
			end = 20
		}
		return 0, end, nil
	}
	if idx := strings.IndexByte(spec, '-'); idx >= 0 {
		a, err := strconv.ParseInt(spec[:idx], 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid --rows range %q", spec)
		}
		b, err := strconv.ParseInt(spec[idx+1:], 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid --rows range %q", spec)
		}
		return a, b + 1, nil
	}
	n, err := strconv.ParseInt(spec, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid --rows value %q", spec)
	}
	return 0, n, nil
}

func printTable(headers []string, start int64, rows [][]string) {
	ordinals := make([]int64, len(rows))
	for i := range rows {
		ordinals[i] = start + int64(i)
	}
	printTableOrdinals(headers, ordinals, rows)
}

func printTableOrdinals(headers []string, ordinals []int64, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	truncated := make([][]string, len(rows))
	for i, row := range rows {
		truncated[i] = make([]string, len(row))
		for j, cell := range row {
			cell = truncateCell(cell)
			truncated[i][j] = cell
			if j < len(widths) && len(cell) > widths[j] {
				widths[j] = len(cell)
			}
		}
	}

	ordWidth := 0
	for _, n := range ordinals {
		if l := len(thousands(n)); l > ordWidth {
			ordWidth = l
		}
	}

	fmt.Printf("%-*s", ordWidth, "#")
	for i, h := range headers {
		fmt.Printf("  %-*s", widths[i], h)
	}
	fmt.Println()

	for i, row := range truncated {
		fmt.Printf("%-*s", ordWidth, thousands(ordinals[i]))
		for j, cell := range row {
			w := 0
			if j < len(widths) {
				w = widths[j]
			}
			fmt.Printf("  %-*s", w, cell)
		}
		fmt.Println()
	}
}

func truncateCell(s string) string {
	if len(s) <= truncateAt {
		return s
	}
	return s[:truncateAt-1] + "…"
}

func thousands(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
