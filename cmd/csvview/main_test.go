package main

import "testing"

func TestParseRowRangeDefault(t *testing.T) {
	start, end, err := parseRowRange("", 100)
	if err != nil {
		t.Fatalf("parseRowRange: %v", err)
	}
	if start != 0 || end != 20 {
		t.Fatalf("got (%d,%d), want (0,20)", start, end)
	}
}

func TestParseRowRangeDefaultShortFile(t *testing.T) {
	start, end, err := parseRowRange("", 5)
	if err != nil {
		t.Fatalf("parseRowRange: %v", err)
	}
	if start != 0 || end != 5 {
		t.Fatalf("got (%d,%d), want (0,5)", start, end)
	}
}

func TestParseRowRangeSingleCount(t *testing.T) {
	start, end, err := parseRowRange("10", 100)
	if err != nil {
		t.Fatalf("parseRowRange: %v", err)
	}
	if start != 0 || end != 10 {
		t.Fatalf("got (%d,%d), want (0,10)", start, end)
	}
}

func TestParseRowRangeSpan(t *testing.T) {
	start, end, err := parseRowRange("5-9", 100)
	if err != nil {
		t.Fatalf("parseRowRange: %v", err)
	}
	if start != 5 || end != 10 {
		t.Fatalf("got (%d,%d), want (5,10)", start, end)
	}
}

func TestParseRowRangeInvalid(t *testing.T) {
	if _, _, err := parseRowRange("not-a-range", 100); err == nil {
		t.Fatalf("expected error for invalid --rows spec")
	}
}

func TestTruncateCell(t *testing.T) {
	short := "hello"
	if got := truncateCell(short); got != short {
		t.Fatalf("truncateCell(short) = %q, want unchanged", got)
	}
	long := "this is a very long cell value that exceeds the truncation threshold by a wide margin"
	got := truncateCell(long)
	if len(got) >= len(long) {
		t.Fatalf("truncateCell did not shorten: %q", got)
	}
	runes := []rune(got)
	if runes[len(runes)-1] != '…' {
		t.Fatalf("truncateCell(long) = %q, want ellipsis suffix", got)
	}
}

func TestThousands(t *testing.T) {
	cases := map[int64]string{
		0:         "0",
		5:         "5",
		999:       "999",
		1000:      "1,000",
		1234567:   "1,234,567",
		-1234:     "-1,234",
	}
	for in, want := range cases {
		if got := thousands(in); got != want {
			t.Errorf("thousands(%d) = %q, want %q", in, got, want)
		}
	}
}
