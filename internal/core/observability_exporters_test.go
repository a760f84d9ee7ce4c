package core

import (
	"bytes"
	"context"
	"errors"
	"expvar"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	assert.True(t, strings.HasPrefix(rec.Name(), "bifrost_service_metrics_"))
	require.NotNil(t, expvar.Get(rec.Name()))

	ctx := context.Background()
	rec.Observe(ctx, OpSave, true, 2*time.Millisecond)
	rec.Observe(ctx, OpSave, false, 3*time.Millisecond)
	rec.Observe(ctx, "", true, time.Second)

	snap := rec.Snapshot()
	assert.InDelta(t, 5.0, snap.DurationsMS[OpSave], 0.0001)
	assert.Equal(t, map[string]int64{"success": 1, "error": 1}, snap.Results[OpSave])
	assert.Len(t, snap.Results, 1)

	snap.Results[OpSave]["success"] = 100
	assert.Equal(t, int64(1), rec.Snapshot().Results[OpSave]["success"])
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	require.NoError(t, err)

	ctx := context.Background()
	rec.Observe(ctx, OpLoad, true, 10*time.Millisecond)
	rec.Observe(ctx, OpLoad, true, 20*time.Millisecond)
	rec.Observe(ctx, OpLoad, false, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.operations.WithLabelValues(OpLoad, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.operations.WithLabelValues(OpLoad, "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.durations))

	again, err := NewPrometheusMetricsRecorder(reg)
	require.NoError(t, err)
	again.Observe(ctx, OpLoad, true, time.Millisecond)
	assert.Equal(t, 3.0, testutil.ToFloat64(rec.operations.WithLabelValues(OpLoad, "success")))
}

func TestPrometheusMetricsRecorderConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bifrost",
		Name:      "operations_total",
		Help:      "conflicting definition",
	})))
	_, err := NewPrometheusMetricsRecorder(reg)
	assert.Error(t, err)
}

func TestJSONTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	ctx := context.Background()

	_, span := tracer.Start(ctx, OpSave)
	span.End(nil)
	_, span = tracer.Start(ctx, OpLoad)
	span.End(errors.New("boom"))

	entries := tracer.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "success", entries[0].Status)
	assert.Equal(t, "error", entries[1].Status)
	assert.Equal(t, "boom", entries[1].Error)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var decoded JSONTraceEntry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &decoded))
	assert.Equal(t, OpLoad, decoded.Operation)
	assert.Equal(t, "boom", decoded.Error)
}

func TestNoopLogger(t *testing.T) {
	var l Logger = noopLogger{}
	assert.NotPanics(t, func() {
		l.Debug("d")
		l.Info("i", "k", "v")
		l.Warn("w")
		l.Error("e")
	})
}
