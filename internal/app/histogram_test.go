package app

import "testing"

func TestCompactBins(t *testing.T) {
	bins := make([]int, 256)
	bins[0] = 20
	bins[8] = 10
	bins[9] = 40
	bins[248] = 5

	got := compactBins(bins, CompactStep)

	if len(got) != 32 {
		t.Fatalf("len = %d, want 32", len(got))
	}

	// Scaled against the largest bin overall, including ones not kept
	want := map[int]float64{0: 0.5, 1: 0.25, 31: 0.125}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("compact[%d] = %v, want %v", i, got[i], w)
		}
	}
	if got[2] != 0 {
		t.Errorf("compact[2] = %v, want 0", got[2])
	}
}

func TestCompactBins_Empty(t *testing.T) {
	got := compactBins(make([]int, 16), 8)
	if len(got) != 2 || got[0] != 0 || got[1] != 0 {
		t.Errorf("compactBins(zeros) = %v", got)
	}

	if got := compactBins(nil, 8); len(got) != 0 {
		t.Errorf("compactBins(nil) = %v", got)
	}
}
