package logstore

import (
	"encoding/binary"
	"fmt"
)

// Key layout (all integers big-endian so lexical order equals numeric order):
//
//	l | block(8) | txIndex(4) | logIndex(4)  -> rlp(storedLog)
//	b | block(8)                            -> hash(32) | bloom(256)
//	m/head                                  -> block(8)
const (
	prefixLog   byte = 'l'
	prefixBlock byte = 'b'

	logKeyLen   = 1 + 8 + 4 + 4
	blockKeyLen = 1 + 8
)

var headKey = []byte("m/head")

func logKey(block uint64, txIndex, logIndex uint32) []byte {
	k := make([]byte, logKeyLen)
	k[0] = prefixLog
	binary.BigEndian.PutUint64(k[1:9], block)
	binary.BigEndian.PutUint32(k[9:13], txIndex)
	binary.BigEndian.PutUint32(k[13:17], logIndex)
	return k
}

// logBlockPrefix is the smallest log key of a block.
func logBlockPrefix(block uint64) []byte {
	return logKey(block, 0, 0)
}

func decodeLogKey(k []byte) (block uint64, txIndex, logIndex uint32, err error) {
	if len(k) != logKeyLen || k[0] != prefixLog {
		return 0, 0, 0, fmt.Errorf("malformed log key %x", k)
	}
	return binary.BigEndian.Uint64(k[1:9]), binary.BigEndian.Uint32(k[9:13]), binary.BigEndian.Uint32(k[13:17]), nil
}

func blockKey(block uint64) []byte {
	k := make([]byte, blockKeyLen)
	k[0] = prefixBlock
	binary.BigEndian.PutUint64(k[1:], block)
	return k
}

func encodeHeight(n uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, n)
}

func decodeHeight(v []byte) (uint64, error) {
	if len(v) != 8 {
		return 0, fmt.Errorf("malformed height value of %d bytes", len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}
