package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enabledConfig(port int) *Config {
	return &Config{Enabled: true, Port: port, Path: "/metrics", Namespace: "test"}
}

func TestNewCollectorDefaults(t *testing.T) {
	collector, err := NewCollector(nil)
	require.NoError(t, err)
	assert.Equal(t, 8080, collector.config.Port)
	assert.Equal(t, "/metrics", collector.config.Path)
	assert.Equal(t, "reelvault", collector.config.Namespace)
	assert.NotNil(t, collector.registry)
}

func TestNewCollectorDisabled(t *testing.T) {
	collector, err := NewCollector(&Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, collector.registry, "a disabled collector must not build a registry")

	// Every record method must be a safe no-op.
	collector.RecordOperation("read", time.Millisecond, 1, true)
	collector.RecordError("read", errors.New("x"))
	collector.UpdateQueueDepth("pending", 1)
	collector.UpdateActiveUploads(1)
	collector.UpdateActiveConnections(1)
	assert.Empty(t, collector.operations)
}

func TestRecordOperationAggregates(t *testing.T) {
	collector, err := NewCollector(enabledConfig(9091))
	require.NoError(t, err)

	collector.RecordOperation("read", 100*time.Millisecond, 1000, true)
	collector.RecordOperation("read", 200*time.Millisecond, 2000, true)
	collector.RecordOperation("read", 300*time.Millisecond, 3000, false)

	operations := collector.GetMetrics()["operations"].(map[string]*OperationMetrics)
	op := operations["read"]
	require.NotNil(t, op)
	assert.Equal(t, int64(3), op.Count)
	assert.Equal(t, int64(6000), op.TotalSize)
	assert.Equal(t, int64(1), op.Errors)
	assert.InDelta(t, 2000.0, op.AvgSize, 0.001)
	assert.Equal(t, 200*time.Millisecond, op.AvgDuration)
}

func TestDomainRecorders(t *testing.T) {
	collector, err := NewCollector(enabledConfig(9092))
	require.NoError(t, err)

	collector.RecordUploadPart(10*time.Millisecond, 5*1024*1024, true)
	collector.RecordUploadComplete(time.Second, 30*1024*1024, true)
	collector.RecordRestoreRequest("standard", true)
	collector.RecordLifecycleVerify(50*time.Millisecond, false)

	operations := collector.GetMetrics()["operations"].(map[string]*OperationMetrics)
	assert.Contains(t, operations, "upload_part")
	assert.Contains(t, operations, "upload_complete")
	assert.Contains(t, operations, "restore_request_standard")
	assert.Contains(t, operations, "lifecycle_verify")
	assert.Equal(t, int64(1), operations["lifecycle_verify"].Errors)
}

func TestGaugesDoNotPanic(t *testing.T) {
	collector, err := NewCollector(enabledConfig(9093))
	require.NoError(t, err)

	collector.UpdateQueueDepth("pending", 3)
	collector.UpdateQueueDepth("in_progress", 2)
	collector.UpdateActiveUploads(2)
	collector.UpdateActiveConnections(8)
}

func TestClassifyError(t *testing.T) {
	collector, err := NewCollector(enabledConfig(9094))
	require.NoError(t, err)

	tests := []struct {
		err  error
		want string
	}{
		{errors.New("operation timeout"), "timeout"},
		{errors.New("connection refused"), "connection"},
		{errors.New("object not found"), "not_found"},
		{errors.New("permission denied"), "permission"},
		{errors.New("request throttled"), "throttling"},
		{errors.New("something else"), "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, collector.classifyError(tt.err), "error %q", tt.err)
	}
}

func TestGetMetricsSnapshot(t *testing.T) {
	collector, err := NewCollector(enabledConfig(9095))
	require.NoError(t, err)

	collector.RecordOperation("read", time.Millisecond, 100, true)

	metrics := collector.GetMetrics()
	assert.Contains(t, metrics, "operations")
	assert.Contains(t, metrics, "last_reset")
	assert.Contains(t, metrics, "uptime")

	// Mutating the snapshot must not touch the live aggregates.
	operations := metrics["operations"].(map[string]*OperationMetrics)
	operations["read"].Count = 999
	fresh := collector.GetMetrics()["operations"].(map[string]*OperationMetrics)
	assert.Equal(t, int64(1), fresh["read"].Count)
}

func TestResetMetrics(t *testing.T) {
	collector, err := NewCollector(enabledConfig(9096))
	require.NoError(t, err)

	collector.RecordOperation("read", time.Millisecond, 100, true)
	before := collector.lastReset

	time.Sleep(5 * time.Millisecond)
	collector.ResetMetrics()

	operations := collector.GetMetrics()["operations"].(map[string]*OperationMetrics)
	assert.Empty(t, operations)
	assert.True(t, collector.lastReset.After(before))
}

func TestStopWithoutStart(t *testing.T) {
	collector, err := NewCollector(enabledConfig(9097))
	require.NoError(t, err)
	require.NoError(t, collector.Stop(context.Background()))
}
