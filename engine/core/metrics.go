package core

import (
	"time"

	"github.com/spaghettifunk/daw/engine/containers"
)

const AVG_COUNT = 30

// FrameMetrics keeps a rolling frame time average and a frames-per-second
// counter. It is owned by the frame loop and not safe for concurrent use.
type FrameMetrics struct {
	frameTimes         *containers.RingQueue[float64]
	msAvg              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{
		frameTimes: containers.NewRingQueue[float64](AVG_COUNT),
	}
}

// Update records the duration of the last frame.
func (m *FrameMetrics) Update(frameElapsed time.Duration) {
	frameMS := float64(frameElapsed) / float64(time.Millisecond)

	m.frameTimes.Push(frameMS)
	if m.frameTimes.IsFull() {
		var sum float64
		m.frameTimes.Each(func(v float64) { sum += v })
		m.msAvg = sum / float64(AVG_COUNT)
	}

	// Calculate frames per second.
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}

	// Count all frames.
	m.frames++
}

func (m *FrameMetrics) FPS() float64 {
	return m.fps
}

func (m *FrameMetrics) FrameTime() float64 {
	return m.msAvg
}

func (m *FrameMetrics) Frame() (float64, float64) {
	return m.fps, m.msAvg
}
