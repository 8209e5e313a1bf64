package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestLabels_toPrometheusLabels(t *testing.T) {
	tests := []struct {
		name     string
		labels   Labels
		expected prometheus.Labels
	}{
		{
			name:     "empty labels",
			labels:   Labels{},
			expected: prometheus.Labels{},
		},
		{
			name: "all labels set",
			labels: Labels{
				EVMChainID:    43114,
				Environment:   "production",
				Region:        "us-east-1",
				CloudProvider: "aws",
			},
			expected: prometheus.Labels{
				"evm_chain_id":   "43114",
				"environment":    "production",
				"region":         "us-east-1",
				"cloud_provider": "aws",
			},
		},
		{
			name: "zero chain ID excluded",
			labels: Labels{
				EVMChainID:  0,
				Environment: "test",
			},
			expected: prometheus.Labels{
				"environment": "test",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.labels.toPrometheusLabels())
		})
	}
}

func TestNewWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()

	m, err := NewWithLabels(reg, Labels{EVMChainID: 43114, Environment: "test"})
	require.NoError(t, err)
	require.NotNil(t, m)

	m.UpdateWindowMetrics(969, 1000)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() != "rootsyncer_window_lower" {
			continue
		}
		found = true
		require.NotEmpty(t, mf.GetMetric())
		labelMap := make(map[string]string)
		for _, label := range mf.GetMetric()[0].GetLabel() {
			labelMap[label.GetName()] = label.GetValue()
		}
		require.Equal(t, "43114", labelMap["evm_chain_id"])
		require.Equal(t, "test", labelMap["environment"])
	}
	require.True(t, found)
}

func TestNew_RegistrationError(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := New(reg)
	require.NoError(t, err)

	m, err := New(reg)
	require.Nil(t, m, "expected nil metrics on duplicate registration")

	var alreadyRegistered prometheus.AlreadyRegisteredError
	require.ErrorAs(t, err, &alreadyRegistered)
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics

	require.NotPanics(t, func() {
		m.IncError("test")
		m.IncRetry("publish")
		m.RecordCycle(CycleResultAdvanced, 0.1)
		m.RecordCycleFailure("publish")
		m.CommitWindow(1, 1, 10, 41)
		m.UpdateWindowMetrics(10, 41)
		m.UpdateLag(50, 41)
		m.IncRPCInFlight()
		m.DecRPCInFlight()
		m.RecordRPCCall("eth_getBlockByNumber", nil, 0.5)
		m.RecordOracleWrite("publish", nil, 0.5)
		m.RecordEventProduced(nil)
		m.RecordKafkaError(true)
	})
}

func TestMetrics_CommitWindow(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.CommitWindow(3, 3, 972, 1003)

	require.Equal(t, float64(3), testutil.ToFloat64(m.rootsAdded))
	require.Equal(t, float64(3), testutil.ToFloat64(m.rootsEvicted))
	require.Equal(t, float64(972), testutil.ToFloat64(m.windowLower))
	require.Equal(t, float64(1003), testutil.ToFloat64(m.windowUpper))
	require.Equal(t, float64(1003), testutil.ToFloat64(m.cursor))

	m.CommitWindow(32, 0, 1, 32)

	require.Equal(t, float64(35), testutil.ToFloat64(m.rootsAdded))
	require.Equal(t, float64(3), testutil.ToFloat64(m.rootsEvicted))
	require.Equal(t, float64(32), testutil.ToFloat64(m.cursor))
}

func TestMetrics_UpdateLag(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.UpdateLag(1050, 1000)
	require.Equal(t, float64(1050), testutil.ToFloat64(m.finalized))
	require.Equal(t, float64(50), testutil.ToFloat64(m.lag))

	// Cursor ahead of a stale finalized read never reports negative lag
	m.UpdateLag(990, 1000)
	require.Equal(t, float64(0), testutil.ToFloat64(m.lag))
}

func TestMetrics_Cycles(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordCycle(CycleResultAdvanced, 0.2)
	m.RecordCycle(CycleResultAdvanced, 0.3)
	m.RecordCycle(CycleResultNoop, 0.01)
	m.RecordCycleFailure("purge")

	require.Equal(t, float64(2), testutil.ToFloat64(m.cycles.WithLabelValues(CycleResultAdvanced)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.cycles.WithLabelValues(CycleResultNoop)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.cycleFailures.WithLabelValues("purge")))
	require.Equal(t, 1, testutil.CollectAndCount(m.cycleDuration))
}

func TestMetrics_RecordRPCCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordRPCCall("eth_getBlockByNumber", nil, 0.1)
	m.RecordRPCCall("eth_getBlockByNumber", nil, 0.2)
	m.RecordRPCCall("eth_getBlockByNumber", errors.New("timeout"), 1.0)

	require.Equal(t, float64(2), testutil.ToFloat64(m.rpcCalls.WithLabelValues("eth_getBlockByNumber", StatusSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.rpcCalls.WithLabelValues("eth_getBlockByNumber", StatusError)))
}

func TestMetrics_RPCInFlight(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.IncRPCInFlight()
	m.IncRPCInFlight()
	require.Equal(t, float64(2), testutil.ToFloat64(m.rpcInFlight))

	m.DecRPCInFlight()
	require.Equal(t, float64(1), testutil.ToFloat64(m.rpcInFlight))
}

func TestMetrics_OracleAndEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordOracleWrite("publish", nil, 2)
	m.RecordOracleWrite("purge", errors.New("reverted"), 3)
	m.RecordEventProduced(nil)
	m.RecordEventProduced(errors.New("queue full"))
	m.RecordKafkaError(false)
	m.IncRetry("publish")
	m.IncError("write_rejected")

	require.Equal(t, float64(1), testutil.ToFloat64(m.oracleWrites.WithLabelValues("publish", StatusSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.oracleWrites.WithLabelValues("purge", StatusError)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.eventsProduced.WithLabelValues(StatusSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.eventsProduced.WithLabelValues(StatusError)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.kafkaErrors.WithLabelValues("non_fatal")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.retries.WithLabelValues("publish")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.errors.WithLabelValues("write_rejected")))
}
