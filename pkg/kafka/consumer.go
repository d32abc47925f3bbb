package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/ava-labs/avalanche-logfilter/pkg/kafka/messages"
	"github.com/ava-labs/avalanche-logfilter/pkg/metrics"
	"github.com/ava-labs/avalanche-logfilter/pkg/types"
)

// Ingester consumes decoded blocks in order.
type Ingester interface {
	Ingest(ctx context.Context, block *types.BlockLogs) error
	SetPending(ctx context.Context, block *types.BlockLogs) error
}

// Producers mark provisional blocks with this header. Any other value, or no
// header, is a sealed block.
const (
	StatusHeader  = "block-status"
	StatusPending = "pending"
)

// consumerClient is the part of *cKafka.Consumer the source uses.
type consumerClient interface {
	SubscribeTopics(topics []string, rebalanceCb cKafka.RebalanceCb) error
	Poll(timeoutMs int) cKafka.Event
	CommitMessage(m *cKafka.Message) ([]cKafka.TopicPartition, error)
	Logs() chan cKafka.LogEvent
	Close() error
}

var _ consumerClient = (*cKafka.Consumer)(nil)

// BlockSource feeds blocks from a Kafka topic to an Ingester.
//
// Messages are handled one at a time on the polling goroutine and their
// offset is committed only after the block was ingested, so a restart
// redelivers at most the blocks whose commit was lost.
type BlockSource struct {
	consumer consumerClient
	ingester Ingester
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics
	cfg      ConsumerConfig
}

// NewBlockSource creates a consumer for cfg. m may be nil.
func NewBlockSource(
	log *zap.SugaredLogger,
	cfg ConsumerConfig,
	ingester Ingester,
	m *metrics.Metrics,
) (*BlockSource, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka config: %w", err)
	}
	consumerConfig := cKafka.ConfigMap{
		"bootstrap.servers":      cfg.BootstrapServers,
		"group.id":               cfg.GroupID,
		"auto.offset.reset":      cfg.AutoOffsetReset,
		"enable.auto.commit":     false,
		"session.timeout.ms":     int(cfg.SessionTimeout.Milliseconds()),
		"max.poll.interval.ms":   int(cfg.MaxPollInterval.Milliseconds()),
		"go.logs.channel.enable": cfg.EnableLogs,
	}
	consumer, err := cKafka.NewConsumer(&consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return newBlockSource(consumer, log, cfg, ingester, m), nil
}

func newBlockSource(
	consumer consumerClient,
	log *zap.SugaredLogger,
	cfg ConsumerConfig,
	ingester Ingester,
	m *metrics.Metrics,
) *BlockSource {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &BlockSource{
		consumer: consumer,
		ingester: ingester,
		log:      log,
		metrics:  m,
		cfg:      cfg.WithDefaults(),
	}
}

// Run consumes until ctx is done, a fatal Kafka error occurs or a block
// cannot be ingested. The consumer is closed before Run returns.
func (s *BlockSource) Run(ctx context.Context) error {
	logsCtx, stopLogs := context.WithCancel(ctx)
	logsDone := make(chan struct{})
	if s.cfg.EnableLogs {
		go s.printKafkaLogs(logsCtx, logsDone)
	} else {
		close(logsDone)
	}

	err := s.consume(ctx)

	stopLogs()
	<-logsDone
	if closeErr := s.consumer.Close(); closeErr != nil {
		s.log.Errorw("failed to close consumer", "error", closeErr)
		err = errors.Join(err, fmt.Errorf("failed to close kafka consumer: %w", closeErr))
	}
	s.log.Info("block source shutdown complete")
	return err
}

func (s *BlockSource) consume(ctx context.Context) error {
	if err := s.consumer.SubscribeTopics([]string{s.cfg.Topic}, s.rebalanceCallback); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}
	pollTimeout := int(s.cfg.PollTimeout.Milliseconds())

	for {
		select {
		case <-ctx.Done():
			s.log.Info("context done, shutting down block source...")
			return nil
		default:
		}

		switch ev := s.consumer.Poll(pollTimeout).(type) {
		case nil:
		case *cKafka.Message:
			if err := s.handle(ctx, ev); err != nil {
				return err
			}
		case cKafka.Error:
			s.metrics.RecordKafkaError(ev.IsFatal())
			if ev.IsFatal() {
				s.log.Errorw("fatal kafka error", "error", ev)
				return fmt.Errorf("fatal kafka error: %w", ev)
			}
			s.log.Warnw("kafka error (non-fatal)", "error", ev)
		default:
			s.log.Debugw("ignoring kafka event", "event", ev)
		}
	}
}

// handle decodes and ingests one message, then commits its offset.
func (s *BlockSource) handle(ctx context.Context, msg *cKafka.Message) error {
	partition := msg.TopicPartition.Partition
	s.metrics.RecordMessageReceived(partition)
	start := time.Now()

	err := s.ingest(ctx, msg)
	s.metrics.RecordMessageHandled(partition, err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to handle message at offset %v: %w", msg.TopicPartition.Offset, err)
	}

	_, err = s.consumer.CommitMessage(msg)
	s.metrics.RecordOffsetCommit(err)
	if err != nil {
		// The block is redelivered after a restart and skipped by the ingester.
		s.log.Warnw("failed to commit offset", "partition", partition, "offset", msg.TopicPartition.Offset, "error", err)
	}
	return nil
}

func (s *BlockSource) ingest(ctx context.Context, msg *cKafka.Message) error {
	var evm messages.EVMBlock
	if err := evm.Unmarshal(msg.Value); err != nil {
		s.metrics.IncError(metrics.ErrTypeDecode)
		return fmt.Errorf("failed to decode block message: %w", err)
	}
	block, err := evm.ToBlockLogs()
	if err != nil {
		s.metrics.IncError(metrics.ErrTypeDecode)
		return err
	}
	if isPending(msg) {
		return s.ingester.SetPending(ctx, block)
	}
	return s.ingester.Ingest(ctx, block)
}

func isPending(msg *cKafka.Message) bool {
	for _, h := range msg.Headers {
		if h.Key == StatusHeader {
			return string(h.Value) == StatusPending
		}
	}
	return false
}

func (s *BlockSource) rebalanceCallback(kc *cKafka.Consumer, event cKafka.Event) error {
	switch ev := event.(type) {
	case cKafka.AssignedPartitions:
		s.log.Infow("partitions assigned", "count", len(ev.Partitions), "partitions", ev.Partitions)
		if len(ev.Partitions) > 1 {
			s.log.Warnw("more than one partition assigned, blocks are only ordered within a partition",
				"topic", s.cfg.Topic,
			)
		}
	case cKafka.RevokedPartitions:
		s.log.Infow("partitions revoked", "count", len(ev.Partitions), "partitions", ev.Partitions)
		if kc != nil && kc.AssignmentLost() {
			s.log.Error("assignment lost involuntarily, commit may fail")
		}
	default:
		s.log.Warnw("unexpected rebalance event", "event", event)
	}
	return nil
}

// printKafkaLogs forwards librdkafka logs to the logger.
func (s *BlockSource) printKafkaLogs(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case log, ok := <-s.consumer.Logs():
			if !ok {
				return
			}
			s.log.Debugf("consumer level: %d tag: %s message: %s", log.Level, log.Tag, log.Message)
		}
	}
}
