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
			result := tt.labels.toPrometheusLabels()
			require.Equal(t, tt.expected, result)
		})
	}
}

func TestNewWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()

	m, err := NewWithLabels(reg, Labels{EVMChainID: 43114, Environment: "test"})
	require.NoError(t, err)

	m.RecordAppend(100, 3, 0.01, 1700000000)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() != "logfilter_store_head" {
			continue
		}
		found = true
		labelMap := make(map[string]string)
		for _, label := range mf.GetMetric()[0].GetLabel() {
			labelMap[label.GetName()] = label.GetValue()
		}
		require.Equal(t, "43114", labelMap["evm_chain_id"])
		require.Equal(t, "test", labelMap["environment"])
	}
	require.True(t, found, "head gauge not found")
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
		m.IncError(ErrTypeSink)
		m.RecordAppend(1, 1, 0.1, 1)
		m.SetHead(1)
		m.IncSkippedBlocks()
		m.RecordSinkWrite("clickhouse", nil, 0.1)
		m.SetLiveFilters(3)
		m.RecordFilterEvent(FilterInstalled, 1)
		m.IncRPCInFlight()
		m.DecRPCInFlight()
		m.RecordRPCCall("eth_getFilterLogs", nil, 0.5)
		m.AddLogsReturned(4)
		m.RecordMessageReceived(0)
		m.RecordMessageHandled(0, nil, 0.1)
		m.RecordOffsetCommit(nil)
		m.RecordKafkaError(true)
	})
}

func TestMetrics_RecordAppend(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordAppend(10, 4, 0.002, 1700000000)
	m.RecordAppend(11, 0, 0.001, 1700000001)

	require.Equal(t, float64(11), testutil.ToFloat64(m.head))
	require.Equal(t, float64(2), testutil.ToFloat64(m.blocksAppended))
	require.Equal(t, float64(4), testutil.ToFloat64(m.logsAppended))
	require.Equal(t, float64(1700000001), testutil.ToFloat64(m.lastAppendTimestamp))

	m.SetHead(42)
	require.Equal(t, float64(42), testutil.ToFloat64(m.head))
}

func TestMetrics_FilterEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordFilterEvent(FilterInstalled, 1)
	m.RecordFilterEvent(FilterInstalled, 1)
	m.RecordFilterEvent(FilterExpired, 3)
	m.RecordFilterEvent(FilterUninstalled, 0)
	m.SetLiveFilters(5)

	require.Equal(t, float64(2), testutil.ToFloat64(m.filterEvents.WithLabelValues(FilterInstalled)))
	require.Equal(t, float64(3), testutil.ToFloat64(m.filterEvents.WithLabelValues(FilterExpired)))
	require.Equal(t, float64(0), testutil.ToFloat64(m.filterEvents.WithLabelValues(FilterUninstalled)))
	require.Equal(t, float64(5), testutil.ToFloat64(m.liveFilters))
}

func TestMetrics_RecordRPCCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordRPCCall("eth_getFilterLogs", nil, 0.05)
	m.RecordRPCCall("eth_getFilterLogs", errors.New("filter not found"), 0.01)
	m.RecordRPCCall("eth_newFilter", nil, 0.001)

	require.Equal(t, float64(1), testutil.ToFloat64(m.rpcCalls.WithLabelValues("eth_getFilterLogs", StatusSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.rpcCalls.WithLabelValues("eth_getFilterLogs", StatusError)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.rpcCalls.WithLabelValues("eth_newFilter", StatusSuccess)))

	m.IncRPCInFlight()
	m.IncRPCInFlight()
	m.DecRPCInFlight()
	require.Equal(t, float64(1), testutil.ToFloat64(m.rpcInFlight))
}

func TestMetrics_Consumer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordMessageReceived(2)
	m.RecordMessageHandled(2, nil, 0.01)
	m.RecordMessageHandled(2, errors.New("decode"), 0.01)
	m.RecordOffsetCommit(nil)
	m.RecordKafkaError(false)

	require.Equal(t, float64(1), testutil.ToFloat64(m.messagesReceived.WithLabelValues("2")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.messagesHandled.WithLabelValues("2", StatusSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.messagesHandled.WithLabelValues("2", StatusError)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.offsetCommits.WithLabelValues(StatusSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.kafkaErrors.WithLabelValues("non_fatal")))
}

func TestNamespace(t *testing.T) {
	require.Equal(t, "logfilter", Namespace)
}
