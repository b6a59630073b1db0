package render

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSeriesBounds(t *testing.T) {
	t.Parallel()
	s := NewSeries(3)
	now := time.Now()
	for i := 0; i < 5; i++ {
		s.Add(Point{At: now.Add(time.Duration(i) * time.Minute), Price: decimal.NewFromInt(int64(i))})
	}
	got := s.Snapshot()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if !got[0].Price.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("oldest retained point = %s, want 2", got[0].Price)
	}
	if !got[2].Price.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("newest point = %s, want 4", got[2].Price)
	}
}

func TestSeriesSnapshotIsCopy(t *testing.T) {
	t.Parallel()
	s := NewSeries(10)
	s.Add(Point{At: time.Now(), Price: decimal.NewFromInt(1)})
	snap := s.Snapshot()
	s.Add(Point{At: time.Now(), Price: decimal.NewFromInt(2)})
	if len(snap) != 1 {
		t.Fatalf("snapshot mutated, len = %d", len(snap))
	}
}
