package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(GenerationsTotal.WithLabelValues("success"))
	GenerationsTotal.WithLabelValues("success").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(GenerationsTotal.WithLabelValues("success")))

	before = testutil.ToFloat64(AttemptsTotal.WithLabelValues("timeout"))
	AttemptsTotal.WithLabelValues("timeout").Add(2)
	assert.Equal(t, before+2, testutil.ToFloat64(AttemptsTotal.WithLabelValues("timeout")))
}

func TestInFlightGauge(t *testing.T) {
	InFlightGenerations.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(InFlightGenerations))
	InFlightGenerations.Dec()
	assert.Equal(t, float64(0), testutil.ToFloat64(InFlightGenerations))
}
