package render

import "sync"

// Series is a bounded, append-only window of recent price points for one
// graph job. Oldest points fall off once the cap is reached.
type Series struct {
	mu     sync.Mutex
	max    int
	points []Point
}

func NewSeries(max int) *Series {
	if max <= 0 {
		max = 60
	}
	return &Series{max: max}
}

func (s *Series) Add(p Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, p)
	if len(s.points) > s.max {
		s.points = s.points[len(s.points)-s.max:]
	}
}

// Snapshot returns a copy safe to hand to a renderer.
func (s *Series) Snapshot() []Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Point(nil), s.points...)
}

func (s *Series) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}
