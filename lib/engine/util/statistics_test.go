package util

import (
	"testing"
)

func TestSizeHistogram(t *testing.T) {
	h := NewSizeHistogram(512, 1047552)

	if h.Count() != 0 || h.AverageSize() != 0 || h.PercentileEstimate(50) != 0 {
		t.Fatal("empty histogram should report zero values")
	}

	h.AddSample(13)
	h.AddSample(13)
	h.AddSample(600)
	h.AddSample(4096)

	if h.Count() != 4 {
		t.Errorf("Expected 4 samples, got %d", h.Count())
	}

	if h.TotalBytes() != 13+13+600+4096 {
		t.Errorf("Unexpected total bytes %d", h.TotalBytes())
	}

	// 512 + 512 + 1024 + 4096
	if h.SectorBytes() != 6144 {
		t.Errorf("Expected 6144 sector bytes, got %d", h.SectorBytes())
	}

	if got := h.PercentileEstimate(50); got != 32 {
		t.Errorf("Expected median estimate 32 (first bucket midpoint), got %d", got)
	}

	boundaries, percentages := h.Distribution()
	if len(percentages) != len(boundaries)+1 {
		t.Fatalf("Expected %d percentages, got %d", len(boundaries)+1, len(percentages))
	}
	var total float64
	for _, p := range percentages {
		total += p
	}
	if total < 99.99 || total > 100.01 {
		t.Errorf("Percentages should add up to 100, got %f", total)
	}

	if boundaries[len(boundaries)-1] != 1047552 {
		t.Errorf("Last boundary should be the max size, got %d", boundaries[len(boundaries)-1])
	}

	h.Reset()
	if h.Count() != 0 || h.SectorBytes() != 0 {
		t.Error("Reset() should clear all samples")
	}
}

func TestAlignUp(t *testing.T) {
	cases := []struct{ n, align, want int }{
		{0, 512, 0},
		{1, 512, 512},
		{512, 512, 512},
		{513, 512, 1024},
		{13, 8, 16},
	}
	for _, c := range cases {
		if got := AlignUp(c.n, c.align); got != c.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", c.n, c.align, got, c.want)
		}
	}
}

func TestHashBytes(t *testing.T) {
	a := HashBytes([]byte("key"), 1)
	b := HashBytes([]byte("key"), 1)
	c := HashBytes([]byte("key"), 2)

	if a != b {
		t.Error("HashBytes must be deterministic for the same seed")
	}
	if a == c {
		t.Error("HashBytes should differ for different seeds")
	}
}
