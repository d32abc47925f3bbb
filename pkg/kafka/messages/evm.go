// Package messages provides the Kafka block message format and its
// conversion to stored log records.
package messages

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ava-labs/avalanche-logfilter/pkg/types"
)

var ErrMalformedBlock = errors.New("malformed block message")

// EVMBlock is a produced block with the receipts of its transactions.
// Header fields the log store does not need are ignored when decoding.
type EVMBlock struct {
	EVMChainID   *big.Int          `json:"evmChainId,omitempty"`
	BlockchainID *string           `json:"blockchainId,omitempty"`
	Number       *big.Int          `json:"number"`
	Hash         string            `json:"hash"`
	ParentHash   string            `json:"parentHash"`
	Timestamp    uint64            `json:"timestamp"`
	LogsBloom    string            `json:"logsBloom"`
	Transactions []*EVMTransaction `json:"transactions"`
}

type EVMTransaction struct {
	Hash    string        `json:"hash"`
	Receipt *EVMTxReceipt `json:"receipt,omitempty"`
}

type EVMTxReceipt struct {
	ContractAddress common.Address `json:"contractAddress"`
	Status          uint64         `json:"status"`
	GasUsed         uint64         `json:"gasUsed"`
	Logs            []*EVMLog      `json:"logs"`
}

type EVMLog struct {
	Address     common.Address `json:"address"`
	Topics      []common.Hash  `json:"topics"`
	Data        []byte         `json:"data"`
	BlockNumber uint64         `json:"blockNumber"`
	TxHash      common.Hash    `json:"txHash"`
	TxIndex     uint           `json:"txIndex"`
	BlockHash   common.Hash    `json:"blockHash"`
	Index       uint           `json:"index"`
	Removed     bool           `json:"removed"`
}

// ToBlockLogs extracts the logs of every receipt in transaction order.
// The position of a transaction in the block is its transaction index.
func (b *EVMBlock) ToBlockLogs() (*types.BlockLogs, error) {
	if b.Number == nil {
		return nil, fmt.Errorf("%w: missing number", ErrMalformedBlock)
	}
	if b.Number.Sign() < 0 || !b.Number.IsUint64() {
		return nil, fmt.Errorf("%w: number %s out of range", ErrMalformedBlock, b.Number)
	}
	hash, err := parseHash(b.Hash)
	if err != nil {
		return nil, fmt.Errorf("%w: block hash: %w", ErrMalformedBlock, err)
	}

	out := &types.BlockLogs{
		Number: b.Number.Uint64(),
		Hash:   hash,
		Logs:   []*ethtypes.Log{},
	}
	for i, tx := range b.Transactions {
		if tx == nil || tx.Receipt == nil {
			continue
		}
		var txHash common.Hash
		if tx.Hash != "" {
			if txHash, err = parseHash(tx.Hash); err != nil {
				return nil, fmt.Errorf("%w: transaction %d hash: %w", ErrMalformedBlock, i, err)
			}
		}
		for _, l := range tx.Receipt.Logs {
			if l == nil {
				return nil, fmt.Errorf("%w: transaction %d has a null log", ErrMalformedBlock, i)
			}
			logTxHash := l.TxHash
			if logTxHash == (common.Hash{}) {
				logTxHash = txHash
			}
			out.Logs = append(out.Logs, &ethtypes.Log{
				Address: l.Address,
				Topics:  l.Topics,
				Data:    l.Data,
				TxHash:  logTxHash,
				TxIndex: uint(i),
				Index:   l.Index,
			})
		}
	}
	return out, nil
}

func parseHash(s string) (common.Hash, error) {
	raw, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("want %d bytes, got %d", common.HashLength, len(raw))
	}
	return common.BytesToHash(raw), nil
}

// blockJSON carries the big integer fields as decimal strings.
type blockJSON struct {
	*blockAlias
	EVMChainID *string `json:"evmChainId,omitempty"`
	Number     *string `json:"number"`
}

type blockAlias EVMBlock

func (b *EVMBlock) Marshal() ([]byte, error) {
	enc := blockJSON{blockAlias: (*blockAlias)(b)}
	if b.EVMChainID != nil {
		s := b.EVMChainID.String()
		enc.EVMChainID = &s
	}
	if b.Number != nil {
		s := b.Number.String()
		enc.Number = &s
	}
	return json.Marshal(enc)
}

func (b *EVMBlock) Unmarshal(data []byte) error {
	var alias blockAlias
	dec := blockJSON{blockAlias: &alias}
	if err := json.Unmarshal(data, &dec); err != nil {
		return err
	}
	*b = EVMBlock(alias)
	b.EVMChainID = nil
	b.Number = nil
	if dec.EVMChainID != nil {
		v, ok := new(big.Int).SetString(*dec.EVMChainID, 10)
		if !ok {
			return fmt.Errorf("invalid evmChainId %q", *dec.EVMChainID)
		}
		b.EVMChainID = v
	}
	if dec.Number != nil {
		v, ok := new(big.Int).SetString(*dec.Number, 10)
		if !ok {
			return fmt.Errorf("invalid number %q", *dec.Number)
		}
		b.Number = v
	}
	return nil
}
