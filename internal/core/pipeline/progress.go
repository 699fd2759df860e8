package pipeline

import (
	"sync"

	"github.com/docsmith-ai/docsmith/internal/core"
)

// Band maps a stage's [0,1] progress reports into the [lo,hi] slice of the
// run-level scale. Reports are clamped so the mapped value never decreases.
func Band(inner core.ProgressSink, lo, hi float64) core.ProgressSink {
	return &bandSink{inner: inner, lo: lo, hi: hi, last: lo}
}

type bandSink struct {
	inner core.ProgressSink
	lo    float64
	hi    float64

	mu   sync.Mutex
	last float64
}

func (b *bandSink) Report(fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	v := b.lo + (b.hi-b.lo)*fraction

	b.mu.Lock()
	if v <= b.last {
		b.mu.Unlock()
		return
	}
	b.last = v
	b.mu.Unlock()

	b.inner.Report(v)
}

// Fanout duplicates reports to every non-nil sink.
func Fanout(sinks ...core.ProgressSink) core.ProgressSink {
	var kept []core.ProgressSink
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return core.ProgressFunc(func(fraction float64) {
		for _, s := range kept {
			s.Report(fraction)
		}
	})
}
