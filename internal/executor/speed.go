package executor

import (
	"sync"
	"sync/atomic"
	"time"
)

// SpeedCalculator measures transfer speed from bytes-since-last-sample over
// elapsed wall time, smoothed over a small sample window.
type SpeedCalculator struct {
	samples        []int64
	lastCheck      time.Time
	bytesSinceLast int64
	windowSize     int
	mu             sync.Mutex
}

func NewSpeedCalculator(windowSize int) *SpeedCalculator {
	if windowSize <= 0 {
		windowSize = 5
	}

	return &SpeedCalculator{
		samples:    make([]int64, 0, windowSize),
		lastCheck:  time.Now(),
		windowSize: windowSize,
	}
}

// AddBytes records additional downloaded bytes.
func (sc *SpeedCalculator) AddBytes(bytes int64) {
	atomic.AddInt64(&sc.bytesSinceLast, bytes)
}

// Speed calculates the current speed in bytes/sec.
func (sc *SpeedCalculator) Speed() int64 {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(sc.lastCheck)

	// Only recalculate after a reasonable interval
	if elapsed < time.Second {
		if len(sc.samples) > 0 {
			return sc.samples[len(sc.samples)-1]
		}

		return 0
	}

	bytesSinceLast := atomic.SwapInt64(&sc.bytesSinceLast, 0)
	speed := int64(float64(bytesSinceLast) / elapsed.Seconds())

	sc.samples = append(sc.samples, speed)
	if len(sc.samples) > sc.windowSize {
		sc.samples = sc.samples[1:]
	}
	sc.lastCheck = now

	return sc.averageSpeed()
}

func (sc *SpeedCalculator) averageSpeed() int64 {
	if len(sc.samples) == 0 {
		return 0
	}

	var sum int64
	for _, speed := range sc.samples {
		sum += speed
	}

	return sum / int64(len(sc.samples))
}
