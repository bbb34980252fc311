package core

import (
	"testing"
	"time"
)

func TestFrameMetricsAverage(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < AVG_COUNT-1; i++ {
		m.Update(10 * time.Millisecond)
	}
	if m.FrameTime() != 0 {
		t.Fatalf("FrameTime before the window fills:\nhave %v\nwant 0", m.FrameTime())
	}
	m.Update(10 * time.Millisecond)
	if got := m.FrameTime(); got < 9.999 || got > 10.001 {
		t.Fatalf("FrameTime:\nhave %v\nwant 10", got)
	}
}

func TestFrameMetricsFPS(t *testing.T) {
	m := NewFrameMetrics()
	// 101 frames of 10ms crosses the one second mark once.
	for i := 0; i < 101; i++ {
		m.Update(10 * time.Millisecond)
	}
	if fps := m.FPS(); fps != 100 {
		t.Fatalf("FPS:\nhave %v\nwant 100", fps)
	}
}
