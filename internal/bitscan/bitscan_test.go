package bitscan

import "testing"

func TestScanBasic(t *testing.T) {
	data := []byte(`a,"b,c",d` + "\n" + "e,f,g")
	bm := NewBitmaps(len(data))
	Scan(data, ',', bm)

	quoteCount := 0
	sepCount := 0
	newlineCount := 0
	for i := range data {
		if At(bm.Quotes, i) {
			quoteCount++
		}
		if At(bm.Seps, i) {
			sepCount++
		}
		if At(bm.Newlines, i) {
			newlineCount++
		}
	}

	if quoteCount != 2 {
		t.Errorf("quoteCount = %d, want 2", quoteCount)
	}
	if newlineCount != 1 {
		t.Errorf("newlineCount = %d, want 1", newlineCount)
	}
	// Separators: the comma inside the quoted field still counts as a raw
	// separator byte in the bitmap; callers consult Quotes to decide
	// whether a given Sep bit is inside a quoted span.
	if sepCount != 5 {
		t.Errorf("sepCount = %d, want 5", sepCount)
	}
}

func TestScanSingle(t *testing.T) {
	data := []byte(`"hi","bye"`)
	bm := ScanSingle(data, '"')
	count := 0
	for i := range data {
		if At(bm, i) {
			count++
		}
	}
	if count != 4 {
		t.Errorf("quote count = %d, want 4", count)
	}
}

func TestAtOutOfRange(t *testing.T) {
	bm := NewBitmaps(8)
	if At(bm.Quotes, 1000) {
		t.Fatalf("At on an out-of-range word should report false, not panic")
	}
}

func TestCPUFeaturesNonEmpty(t *testing.T) {
	feats := CPUFeatures()
	if len(feats) == 0 {
		t.Fatal("CPUFeatures returned no entries")
	}
}
