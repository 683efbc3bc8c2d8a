package detection

import (
	"errors"
	"fmt"
	"testing"

	"github.com/eleven-am/signstream/internal/mode"
	"github.com/eleven-am/signstream/internal/shared"
)

func TestBuffer_PushNewestFirst(t *testing.T) {
	b := NewBuffer(5)
	b.Push(res("A", 0.9))
	b.Push(res("B", 0.8))

	snap := b.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 results, got %d", len(snap))
	}
	if snap[0].Sign != "B" || snap[1].Sign != "A" {
		t.Errorf("expected [B A], got [%s %s]", snap[0].Sign, snap[1].Sign)
	}
	if snap[0].Sequence != 1 || snap[1].Sequence != 0 {
		t.Errorf("unexpected sequences %d %d", snap[0].Sequence, snap[1].Sequence)
	}
	if snap[0].ID == "" || snap[0].ID == snap[1].ID {
		t.Errorf("expected distinct ids, got %q %q", snap[0].ID, snap[1].ID)
	}
}

func TestBuffer_EvictsOldest(t *testing.T) {
	b := NewBuffer(5)
	for i := 0; i < 7; i++ {
		b.Push(res(fmt.Sprintf("S%d", i), 0.5))
	}

	snap := b.Snapshot()
	if len(snap) != 5 {
		t.Fatalf("expected 5 results, got %d", len(snap))
	}
	for i, a := range snap {
		want := uint64(6 - i)
		if a.Sequence != want {
			t.Errorf("position %d: expected sequence %d, got %d", i, want, a.Sequence)
		}
		if a.Sign != fmt.Sprintf("S%d", want) {
			t.Errorf("position %d: expected S%d, got %s", i, want, a.Sign)
		}
	}
}

func TestBuffer_ClearResetsSequence(t *testing.T) {
	b := NewBuffer(3)
	b.Push(res("A", 0.9))
	b.Push(res("B", 0.9))
	b.Clear()

	if b.Len() != 0 {
		t.Fatalf("expected empty buffer, got %d", b.Len())
	}
	a := b.Push(res("C", 0.9))
	if a.Sequence != 0 {
		t.Errorf("expected sequence to restart at 0, got %d", a.Sequence)
	}
}

func TestBuffer_SnapshotIsCopy(t *testing.T) {
	b := NewBuffer(3)
	b.Push(res("A", 0.9))
	snap := b.Snapshot()
	snap[0].Sign = "Z"

	if b.Snapshot()[0].Sign != "A" {
		t.Error("snapshot mutation leaked into buffer")
	}
}

func TestBuffer_DefaultMax(t *testing.T) {
	if NewBuffer(0).MaxResults() != DefaultMaxResults {
		t.Errorf("expected default max %d", DefaultMaxResults)
	}
}

// Mirrors the pipeline's accept path: dedup against the newest entry, then push.
func TestDedupAndBuffer_Sequence(t *testing.T) {
	d := NewDeduplicator(0.05)
	b := NewBuffer(5)

	for _, r := range []Result{res("A", 0.90), res("A", 0.91), res("B", 0.30), res("A", 0.90)} {
		if d.Check(r) {
			d.Remember(b.Push(r))
		}
	}

	snap := b.Snapshot()
	var got []string
	for _, a := range snap {
		got = append(got, fmt.Sprintf("%s@%.2f", a.Sign, a.Confidence))
	}
	want := []string{"A@0.90", "B@0.30", "A@0.90"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestResult_Validate(t *testing.T) {
	valid := Result{
		Sign:        "A",
		Confidence:  0.8,
		Mode:        mode.ModeLetter,
		BoundingBox: &BoundingBox{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.4},
		Landmarks:   []Point{{X: 0.5, Y: 0.5}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid result, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Result)
	}{
		{"empty sign", func(r *Result) { r.Sign = "" }},
		{"confidence above one", func(r *Result) { r.Confidence = 1.2 }},
		{"negative confidence", func(r *Result) { r.Confidence = -0.1 }},
		{"unknown mode", func(r *Result) { r.Mode = "word" }},
		{"box out of range", func(r *Result) { r.BoundingBox = &BoundingBox{X: 1.5} }},
		{"landmark out of range", func(r *Result) { r.Landmarks = []Point{{X: -1}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			if err := r.Validate(); !errors.Is(err, shared.ErrMalformedResult) {
				t.Errorf("expected ErrMalformedResult, got %v", err)
			}
		})
	}
}
