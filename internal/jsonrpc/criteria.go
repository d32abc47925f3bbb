package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ava-labs/avalanche-logfilter/pkg/filters"
	"github.com/ava-labs/avalanche-logfilter/pkg/types"
)

// FilterCriteria is the JSON form of filter criteria:
//
//	{"fromBlock": "0x1", "toBlock": "latest",
//	 "address": "0x..." | ["0x...", ...],
//	 "topics": [null | "0x..." | ["0x...", ...], ...]}
type FilterCriteria filters.Criteria

// Criteria returns the decoded criteria.
func (fc *FilterCriteria) Criteria() *filters.Criteria {
	return (*filters.Criteria)(fc)
}

func (fc *FilterCriteria) UnmarshalJSON(data []byte) error {
	var raw struct {
		BlockHash *common.Hash      `json:"blockHash"`
		FromBlock *types.BlockTag   `json:"fromBlock"`
		ToBlock   *types.BlockTag   `json:"toBlock"`
		Address   json.RawMessage   `json:"address"`
		Topics    []json.RawMessage `json:"topics"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %w", filters.ErrInvalidParams, err)
	}
	if raw.BlockHash != nil {
		return fmt.Errorf("%w: blockHash is not supported", filters.ErrInvalidParams)
	}

	var c filters.Criteria
	if raw.FromBlock != nil {
		c.FromBlock = *raw.FromBlock
	}
	if raw.ToBlock != nil {
		c.ToBlock = *raw.ToBlock
	}

	addresses, err := decodeAddresses(raw.Address)
	if err != nil {
		return err
	}
	c.Addresses = addresses

	if len(raw.Topics) > filters.MaxTopics {
		return fmt.Errorf("%w: %d topic positions, at most %d allowed", filters.ErrInvalidParams, len(raw.Topics), filters.MaxTopics)
	}
	if len(raw.Topics) > 0 {
		c.Topics = make([][]common.Hash, len(raw.Topics))
		for i, position := range raw.Topics {
			if c.Topics[i], err = decodeTopicPosition(position); err != nil {
				return fmt.Errorf("topic %d: %w", i, err)
			}
		}
	}

	*fc = FilterCriteria(c)
	return nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodeAddresses(raw json.RawMessage) ([]common.Address, error) {
	if isNull(raw) {
		return nil, nil
	}
	var single common.Address
	if err := json.Unmarshal(raw, &single); err == nil {
		return []common.Address{single}, nil
	}
	var list []common.Address
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: invalid address: %w", filters.ErrInvalidParams, err)
	}
	return list, nil
}

// decodeTopicPosition decodes one topic position. null is a wildcard; a
// string is a single topic; an array is an OR-set whose members must be
// strings.
func decodeTopicPosition(raw json.RawMessage) ([]common.Hash, error) {
	if isNull(raw) {
		return nil, nil
	}
	var single common.Hash
	if err := json.Unmarshal(raw, &single); err == nil {
		return []common.Hash{single}, nil
	}
	var members []json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, fmt.Errorf("%w: invalid topic: %w", filters.ErrInvalidParams, err)
	}
	set := make([]common.Hash, 0, len(members))
	for _, m := range members {
		if isNull(m) {
			return nil, fmt.Errorf("%w: null inside a topic list", filters.ErrInvalidParams)
		}
		var h common.Hash
		if err := json.Unmarshal(m, &h); err != nil {
			return nil, fmt.Errorf("%w: invalid topic: %w", filters.ErrInvalidParams, err)
		}
		set = append(set, h)
	}
	return set, nil
}
