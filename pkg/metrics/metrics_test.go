package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStarted_RecordsOutcome(t *testing.T) {
	c := New(nil)

	done := c.Started("demo.Echo")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inFlight))

	done("succeeded", 40*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.inFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.invocationsTotal.WithLabelValues("demo.Echo", "succeeded")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.invocationsTotal.WithLabelValues("demo.Echo", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.invocationDuration))
}

func TestBoundaryMissing(t *testing.T) {
	c := New(nil)
	c.BoundaryMissing("demo.Failing")
	c.BoundaryMissing("demo.Failing")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.boundaryMissing.WithLabelValues("demo.Failing")))
}

func TestExposition(t *testing.T) {
	c := New([]float64{0.1, 1})
	c.Started("demo.Adder")("failed", 2*time.Second)

	expected := `
# HELP confinity_invocations_total Total number of child-process invocations
# TYPE confinity_invocations_total counter
confinity_invocations_total{status="failed",target="demo.Adder"} 1
`
	err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "confinity_invocations_total")
	require.NoError(t, err)
}

func TestHandler(t *testing.T) {
	c := New(nil).WithRuntimeCollectors()
	c.Started("demo.Echo")("succeeded", time.Millisecond)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `confinity_invocations_total{status="succeeded",target="demo.Echo"} 1`)
	assert.Contains(t, string(body), "confinity_invocation_duration_seconds_bucket")
	assert.Contains(t, string(body), "go_goroutines")
}
