package core

// ProgressSink receives coarse progress reports from pipeline stages.
// Fractions are in [0,1] relative to the stage that holds the sink; callers
// that need an absolute scale wrap the sink (see pipeline.Band).
type ProgressSink interface {
	Report(fraction float64)
}

// ProgressFunc adapts a plain function to a ProgressSink.
type ProgressFunc func(fraction float64)

func (f ProgressFunc) Report(fraction float64) { f(fraction) }

// NopProgress discards all reports.
var NopProgress ProgressSink = ProgressFunc(func(float64) {})
