package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsmith-ai/docsmith/internal/core"
)

func recorder(out *[]float64) core.ProgressSink {
	return core.ProgressFunc(func(f float64) { *out = append(*out, f) })
}

func TestBandMapsIntoRange(t *testing.T) {
	var got []float64
	sink := Band(recorder(&got), 0.3, 0.9)

	sink.Report(0.5)
	sink.Report(1.0)

	require.Len(t, got, 2)
	assert.InDelta(t, 0.6, got[0], 1e-9)
	assert.InDelta(t, 0.9, got[1], 1e-9)
}

func TestBandSuppressesRegressions(t *testing.T) {
	var got []float64
	sink := Band(recorder(&got), 0, 1)

	sink.Report(0.5)
	sink.Report(0.4) // regression dropped
	sink.Report(0.5) // equal value dropped
	sink.Report(0.6)

	assert.Equal(t, []float64{0.5, 0.6}, got)
}

func TestBandClampsInput(t *testing.T) {
	var got []float64
	sink := Band(recorder(&got), 0.3, 0.9)

	sink.Report(-2)
	sink.Report(5)

	// -2 clamps to 0 which maps to the band floor and is suppressed.
	require.Len(t, got, 1)
	assert.InDelta(t, 0.9, got[0], 1e-9)
}

func TestFanoutSkipsNilSinks(t *testing.T) {
	var a, b []float64
	sink := Fanout(recorder(&a), nil, recorder(&b))

	sink.Report(0.25)
	sink.Report(0.75)

	assert.Equal(t, []float64{0.25, 0.75}, a)
	assert.Equal(t, a, b)
}
