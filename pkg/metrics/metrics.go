package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "logfilter"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"

	Store    = "store"
	Ingest   = "ingest"
	Filters  = "filters"
	RPC      = "rpc"
	Consumer = "consumer"
)

// Filter lifecycle event label values.
const (
	FilterInstalled   = "installed"
	FilterUninstalled = "uninstalled"
	FilterExpired     = "expired"
)

// Error type constants for the errors_total counter.
const (
	ErrTypeNonContiguousBlock = "non_contiguous_block"
	ErrTypeInvalidBlock       = "invalid_block"
	ErrTypeDecode             = "decode"
	ErrTypeSink               = "sink"
)

// Labels holds constant labels applied to all metrics.
// These are useful for distinguishing metrics from multiple filter service instances.
type Labels struct {
	EVMChainID    uint64 // EVM chain ID (e.g., 43114 for C-Chain mainnet)
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-east-1", "eu-west-1")
	CloudProvider string // Cloud provider (e.g., "aws", "oci", "gcp")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.EVMChainID != 0 {
		labels["evm_chain_id"] = strconv.FormatUint(l.EVMChainID, 10)
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

type Metrics struct {
	// Store state
	head           prometheus.Gauge
	blocksAppended prometheus.Counter
	logsAppended   prometheus.Counter
	appendDuration prometheus.Histogram
	errors         *prometheus.CounterVec

	// Ingestion
	lastAppendTimestamp prometheus.Gauge
	skippedBlocks       prometheus.Counter
	sinkWrites          *prometheus.CounterVec
	sinkDuration        *prometheus.HistogramVec

	// Filter registry
	liveFilters  prometheus.Gauge
	filterEvents *prometheus.CounterVec

	// JSON-RPC queries
	rpcCalls     *prometheus.CounterVec
	rpcDuration  *prometheus.HistogramVec
	rpcInFlight  prometheus.Gauge
	logsReturned prometheus.Counter

	// Kafka block source
	messagesReceived *prometheus.CounterVec   // by partition
	messagesHandled  *prometheus.CounterVec   // by partition, status
	handleDuration   *prometheus.HistogramVec // by partition
	offsetCommits    *prometheus.CounterVec   // by status
	kafkaErrors      *prometheus.CounterVec   // by severity (fatal/non_fatal)
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
// For metrics with constant labels (e.g., evm_chain_id), use NewWithLabels instead.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

var latencyBuckets = []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		head: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Store,
			Name:      "head",
			Help:      "Height of the last block appended to the log store",
		}),
		blocksAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Store,
			Name:      "blocks_appended_total",
			Help:      "Total number of blocks appended to the log store",
		}),
		logsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Store,
			Name:      "logs_appended_total",
			Help:      "Total number of logs appended to the log store",
		}),
		appendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Store,
			Name:      "append_duration_seconds",
			Help:      "Time to append a single block",
			Buckets:   latencyBuckets,
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total errors by type",
		}, []string{"type"}),
		lastAppendTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Ingest,
			Name:      "last_append_timestamp_seconds",
			Help:      "Unix time of the last successful block append",
		}),
		skippedBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Ingest,
			Name:      "skipped_blocks_total",
			Help:      "Redelivered blocks that were already stored",
		}),
		sinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Ingest,
			Name:      "sink_writes_total",
			Help:      "Block writes to archive sinks by sink and status",
		}, []string{"sink", "status"}),
		sinkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Ingest,
			Name:      "sink_write_duration_seconds",
			Help:      "Time to write one block to an archive sink",
			Buckets:   latencyBuckets,
		}, []string{"sink"}),
		liveFilters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Filters,
			Name:      "live",
			Help:      "Number of installed filters",
		}),
		filterEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Filters,
			Name:      "events_total",
			Help:      "Filter lifecycle events by type (installed, uninstalled, expired)",
		}, []string{"event"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: RPC,
			Name:      "calls_total",
			Help:      "Total RPC calls by method and status",
		}, []string{"method", "status"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: RPC,
			Name:      "duration_seconds",
			Help:      "RPC call duration in seconds",
			Buckets:   latencyBuckets,
		}, []string{"method"}),
		rpcInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: RPC,
			Name:      "in_flight",
			Help:      "Number of RPC calls currently in progress",
		}),
		logsReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: RPC,
			Name:      "logs_returned_total",
			Help:      "Total logs returned to callers",
		}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "messages_received_total",
			Help:      "Total number of messages polled from Kafka by partition",
		}, []string{"partition"}),
		messagesHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "messages_handled_total",
			Help:      "Total number of messages handled by partition and status",
		}, []string{"partition", "status"}),
		handleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "message_handle_duration_seconds",
			Help:      "Decode and ingest duration of one message by partition",
			Buckets:   latencyBuckets,
		}, []string{"partition"}),
		offsetCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "offset_commits_total",
			Help:      "Offset commit attempts by status",
		}, []string{"status"}),
		kafkaErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "kafka_errors_total",
			Help:      "Total number of Kafka errors received by severity (fatal/non_fatal)",
		}, []string{"severity"}),
	}

	err := errors.Join(
		reg.Register(m.head),
		reg.Register(m.blocksAppended),
		reg.Register(m.logsAppended),
		reg.Register(m.appendDuration),
		reg.Register(m.errors),
		reg.Register(m.lastAppendTimestamp),
		reg.Register(m.skippedBlocks),
		reg.Register(m.sinkWrites),
		reg.Register(m.sinkDuration),
		reg.Register(m.liveFilters),
		reg.Register(m.filterEvents),
		reg.Register(m.rpcCalls),
		reg.Register(m.rpcDuration),
		reg.Register(m.rpcInFlight),
		reg.Register(m.logsReturned),
		reg.Register(m.messagesReceived),
		reg.Register(m.messagesHandled),
		reg.Register(m.handleDuration),
		reg.Register(m.offsetCommits),
		reg.Register(m.kafkaErrors),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// IncError increments the error counter for the given error type.
func (m *Metrics) IncError(errType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errType).Inc()
}

// RecordAppend records a block appended to the store.
func (m *Metrics) RecordAppend(head uint64, logCount int, durationSeconds float64, unixTime float64) {
	if m == nil {
		return
	}
	m.head.Set(float64(head))
	m.blocksAppended.Inc()
	if logCount > 0 {
		m.logsAppended.Add(float64(logCount))
	}
	m.appendDuration.Observe(durationSeconds)
	m.lastAppendTimestamp.Set(unixTime)
}

// SetHead sets the head gauge, e.g. after restoring the store from disk.
func (m *Metrics) SetHead(head uint64) {
	if m == nil {
		return
	}
	m.head.Set(float64(head))
}

// IncSkippedBlocks counts a redelivered block that was already stored.
func (m *Metrics) IncSkippedBlocks() {
	if m == nil {
		return
	}
	m.skippedBlocks.Inc()
}

// RecordSinkWrite records one block write to an archive sink.
func (m *Metrics) RecordSinkWrite(sink string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	m.sinkWrites.WithLabelValues(sink, status(err)).Inc()
	m.sinkDuration.WithLabelValues(sink).Observe(durationSeconds)
}

// SetLiveFilters sets the installed filter gauge.
func (m *Metrics) SetLiveFilters(n int) {
	if m == nil {
		return
	}
	m.liveFilters.Set(float64(n))
}

// RecordFilterEvent counts a filter lifecycle event.
func (m *Metrics) RecordFilterEvent(event string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.filterEvents.WithLabelValues(event).Add(float64(count))
}

// IncRPCInFlight increments the in-flight RPC gauge.
func (m *Metrics) IncRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Inc()
}

// DecRPCInFlight decrements the in-flight RPC gauge.
func (m *Metrics) DecRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Dec()
}

// RecordRPCCall records an RPC call outcome.
func (m *Metrics) RecordRPCCall(method string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	m.rpcCalls.WithLabelValues(method, status(err)).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// AddLogsReturned records logs handed back to a caller.
func (m *Metrics) AddLogsReturned(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.logsReturned.Add(float64(count))
}

// RecordMessageReceived increments the received counter when a message is polled from Kafka.
func (m *Metrics) RecordMessageReceived(partition int32) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(strconv.Itoa(int(partition))).Inc()
}

// RecordMessageHandled records a message handling outcome with duration.
func (m *Metrics) RecordMessageHandled(partition int32, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	partitionLabel := strconv.Itoa(int(partition))
	m.messagesHandled.WithLabelValues(partitionLabel, status(err)).Inc()
	m.handleDuration.WithLabelValues(partitionLabel).Observe(durationSeconds)
}

// RecordOffsetCommit records an offset commit attempt.
func (m *Metrics) RecordOffsetCommit(err error) {
	if m == nil {
		return
	}
	m.offsetCommits.WithLabelValues(status(err)).Inc()
}

// RecordKafkaError records a Kafka error by severity.
// fatal=true for fatal errors, false for non-fatal.
func (m *Metrics) RecordKafkaError(fatal bool) {
	if m == nil {
		return
	}
	severity := "non_fatal"
	if fatal {
		severity = "fatal"
	}
	m.kafkaErrors.WithLabelValues(severity).Inc()
}
