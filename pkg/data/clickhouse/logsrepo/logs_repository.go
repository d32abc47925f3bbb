// Package logsrepo archives appended blocks' logs in ClickHouse.
package logsrepo

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ava-labs/avalanche-logfilter/pkg/clickhouse"
	"github.com/ava-labs/avalanche-logfilter/pkg/types"
)

const sinkName = "clickhouse"

// Logs writes log records to a ClickHouse table, one insert batch per block.
type Logs struct {
	client    clickhouse.Client
	tableName string
}

// NewLogs creates the repository and initializes its table.
func NewLogs(ctx context.Context, client clickhouse.Client, tableName string) (*Logs, error) {
	repo := &Logs{
		client:    client,
		tableName: tableName,
	}
	if err := repo.CreateTableIfNotExists(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize logs table: %w", err)
	}
	return repo, nil
}

// CreateTableIfNotExists creates the logs table if it doesn't exist.
// Rows are keyed by block and log index, so rewriting a block replaces it.
func (r *Logs) CreateTableIfNotExists(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			block_number UInt64,
			block_hash FixedString(32),
			tx_hash FixedString(32),
			tx_index UInt32,
			log_index UInt32,
			address FixedString(20),
			topics Array(FixedString(32)),
			data String
		)
		ENGINE = ReplacingMergeTree
		ORDER BY (block_number, log_index)
		SETTINGS index_granularity = 8192
	`, r.tableName)
	if err := r.client.Conn().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create logs table: %w", err)
	}
	return nil
}

func (r *Logs) Name() string {
	return sinkName
}

// WriteBlock inserts every log of block in a single batch. Blocks without
// logs are not written.
func (r *Logs) WriteBlock(ctx context.Context, block *types.BlockLogs) error {
	if len(block.Logs) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (
			block_number, block_hash, tx_hash, tx_index, log_index, address, topics, data
		)
	`, r.tableName)
	batch, err := r.client.Conn().PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare batch for block %d: %w", block.Number, err)
	}

	for _, l := range block.Logs {
		err := batch.Append(
			block.Number,
			fixed32(block.Hash),
			fixed32(l.TxHash),
			uint32(l.TxIndex),
			uint32(l.Index),
			string(l.Address[:]),
			topicStrings(l.Topics),
			string(l.Data),
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append log %d of block %d: %w", l.Index, block.Number, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch for block %d: %w", block.Number, err)
	}
	return nil
}

// fixed32 renders a hash as the raw bytes of a FixedString(32) column.
func fixed32(h common.Hash) string {
	return string(h[:])
}

func topicStrings(topics []common.Hash) []string {
	out := make([]string, len(topics))
	for i, t := range topics {
		out[i] = fixed32(t)
	}
	return out
}
