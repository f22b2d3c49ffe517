package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRequest(t *testing.T) {
	ok := RequestsTotal.WithLabelValues("/api/test", "200")
	failed := RequestsTotal.WithLabelValues("/api/test", "error")
	okBefore, failedBefore := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	RecordRequest("/api/test", 200, nil, 10*time.Millisecond)
	RecordRequest("/api/test", 0, errors.New("reset"), time.Millisecond)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(ok))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(failed))
}

func TestRecordRetryAndGate(t *testing.T) {
	retries := RetriesTotal.WithLabelValues("http_429")
	before := testutil.ToFloat64(retries)
	gateBefore := testutil.ToFloat64(GateExtensions)

	RecordRetry("http_429")
	RecordGateExtension(5 * time.Second)

	assert.Equal(t, before+1, testutil.ToFloat64(retries))
	assert.Equal(t, gateBefore+1, testutil.ToFloat64(GateExtensions))
}

func TestTaskAndWorkers(t *testing.T) {
	tasks := TasksTotal.WithLabelValues("url", "success")
	before := testutil.ToFloat64(tasks)
	active := testutil.ToFloat64(WorkersActive)

	RecordTask("url", "success", time.Second)
	WorkerStarted()
	assert.Equal(t, active+1, testutil.ToFloat64(WorkersActive))
	WorkerStopped()

	assert.Equal(t, before+1, testutil.ToFloat64(tasks))
	assert.Equal(t, active, testutil.ToFloat64(WorkersActive))
}
