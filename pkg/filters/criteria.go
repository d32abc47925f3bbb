// Package filters evaluates log filter criteria against stored logs.
package filters

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ava-labs/avalanche-logfilter/pkg/types"
)

// MaxTopics is the number of indexed topic positions a log can carry.
const MaxTopics = 4

var (
	ErrInvalidRange       = errors.New("invalid block range params")
	ErrInvalidParams      = errors.New("invalid params")
	ErrBlockRangeTooLarge = errors.New("block range too large")
	ErrTooManyResults     = errors.New("query returned too many results")
)

// Criteria is a standing log query.
//
// Addresses is OR-matched; empty matches any address. Topics is positional:
// a nil or empty position is a wildcard, otherwise the log's topic at that
// position must equal one of the listed values.
type Criteria struct {
	FromBlock types.BlockTag
	ToBlock   types.BlockTag
	Addresses []common.Address
	Topics    [][]common.Hash
}

// Validate checks the criteria before they are installed or evaluated.
func (c *Criteria) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: missing criteria", ErrInvalidParams)
	}
	if len(c.Topics) > MaxTopics {
		return fmt.Errorf("%w: %d topic positions, at most %d allowed", ErrInvalidParams, len(c.Topics), MaxTopics)
	}
	from, fromConcrete := c.FromBlock.Number()
	to, toConcrete := c.ToBlock.Number()
	if fromConcrete && toConcrete && from > to {
		return fmt.Errorf("%w: fromBlock %d > toBlock %d", ErrInvalidRange, from, to)
	}
	return nil
}

// Clone returns a deep copy so installed criteria cannot be changed by the
// caller afterwards.
func (c *Criteria) Clone() *Criteria {
	out := &Criteria{
		FromBlock: c.FromBlock,
		ToBlock:   c.ToBlock,
	}
	if len(c.Addresses) > 0 {
		out.Addresses = append([]common.Address(nil), c.Addresses...)
	}
	if len(c.Topics) > 0 {
		out.Topics = make([][]common.Hash, len(c.Topics))
		for i, set := range c.Topics {
			if len(set) > 0 {
				out.Topics[i] = append([]common.Hash(nil), set...)
			}
		}
	}
	return out
}
