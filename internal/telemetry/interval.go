package telemetry

import (
	"sync/atomic"
	"time"
)

// MinIntervalMs is the floor enforced on the publish period.
const MinIntervalMs = 100

// Interval is the publish period shared between the command handler (writer) and the loop (reader).
type Interval struct {
	ms atomic.Uint32
}

func NewInterval(ms uint32) *Interval {
	i := &Interval{}
	i.Set(ms)
	return i
}

// Set stores ms clamped to MinIntervalMs and returns the effective value.
func (i *Interval) Set(ms uint32) uint32 {
	if ms < MinIntervalMs {
		ms = MinIntervalMs
	}
	i.ms.Store(ms)
	return ms
}

func (i *Interval) Get() uint32 {
	return i.ms.Load()
}

func (i *Interval) Duration() time.Duration {
	return time.Duration(i.Get()) * time.Millisecond
}
