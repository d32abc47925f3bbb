package types

import (
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// BlockLogs is the per-block notification consumed by the ingestor: the height,
// the hash and every log emitted while executing the block.
type BlockLogs struct {
	Number uint64          `json:"number"`
	Hash   common.Hash     `json:"hash"`
	Logs   []*ethtypes.Log `json:"logs"`
}

// LogsBloom returns the bloom of a set of logs.
func LogsBloom(logs []*ethtypes.Log) ethtypes.Bloom {
	var bloom ethtypes.Bloom
	for _, l := range logs {
		bloom.Add(l.Address.Bytes())
		for _, topic := range l.Topics {
			bloom.Add(topic.Bytes())
		}
	}
	return bloom
}
