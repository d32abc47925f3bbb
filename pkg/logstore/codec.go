package logstore

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// storedLog is the persisted form of a log. Block number and log position
// live in the key, the block hash in the block meta record.
type storedLog struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
	TxHash  common.Hash
}

func encodeLog(l *ethtypes.Log) ([]byte, error) {
	return rlp.EncodeToBytes(&storedLog{
		Address: l.Address,
		Topics:  l.Topics,
		Data:    l.Data,
		TxHash:  l.TxHash,
	})
}

func decodeLog(key, value []byte, blockHash common.Hash) (*ethtypes.Log, error) {
	number, txIndex, logIndex, err := decodeLogKey(key)
	if err != nil {
		return nil, err
	}
	var sl storedLog
	if err := rlp.DecodeBytes(value, &sl); err != nil {
		return nil, fmt.Errorf("failed to decode log %d/%d: %w", number, logIndex, err)
	}
	if sl.Topics == nil {
		sl.Topics = []common.Hash{}
	}
	return &ethtypes.Log{
		Address:     sl.Address,
		Topics:      sl.Topics,
		Data:        sl.Data,
		BlockNumber: number,
		TxHash:      sl.TxHash,
		TxIndex:     uint(txIndex),
		BlockHash:   blockHash,
		Index:       uint(logIndex),
	}, nil
}

type blockMeta struct {
	hash  common.Hash
	bloom ethtypes.Bloom
}

func encodeBlockMeta(hash common.Hash, bloom ethtypes.Bloom) []byte {
	v := make([]byte, 0, common.HashLength+ethtypes.BloomByteLength)
	v = append(v, hash.Bytes()...)
	return append(v, bloom.Bytes()...)
}

func decodeBlockMeta(v []byte) (blockMeta, error) {
	if len(v) != common.HashLength+ethtypes.BloomByteLength {
		return blockMeta{}, fmt.Errorf("malformed block meta of %d bytes", len(v))
	}
	var m blockMeta
	m.hash = common.BytesToHash(v[:common.HashLength])
	m.bloom = ethtypes.BytesToBloom(v[common.HashLength:])
	return m, nil
}
