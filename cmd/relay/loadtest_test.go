package main

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	data := []float64{50, 10, 40, 20, 30}
	cases := map[float64]float64{0: 10, 50: 30, 95: 50, 100: 50}
	for pct, want := range cases {
		if got := percentile(data, pct); got != want {
			t.Errorf("percentile(%v) = %v, want %v", pct, got, want)
		}
	}
}

func TestGenerateSyntheticAudio(t *testing.T) {
	pcm := generateSyntheticAudio(24000, 500*time.Millisecond)
	if len(pcm) != 24000 {
		t.Fatalf("len = %d, want 24000 bytes", len(pcm))
	}
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	printSummary(&out, []callResult{
		{success: true, ttfaMs: 300, totalMs: 1200},
		{success: true, totalMs: 900},
		{err: "dial: refused"},
	})
	s := out.String()
	for _, want := range []string{"Turns completed: 2", "Turns failed:    1", "dial: refused", "TTFA", "Turn"} {
		if !strings.Contains(s, want) {
			t.Fatalf("summary missing %q:\n%s", want, s)
		}
	}
}
