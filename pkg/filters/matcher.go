package filters

import (
	"slices"

	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ava-labs/avalanche-logfilter/pkg/logstore"
)

// Matches reports whether l satisfies c. It depends only on its arguments.
//
// Topic positions are compared as written: an anonymous event has no
// signature topic, so its indexed arguments sit one position earlier than
// those of a named event and a filter written for the named layout will not
// match it.
func Matches(c *Criteria, l *ethtypes.Log) bool {
	if len(c.Addresses) > 0 && !slices.Contains(c.Addresses, l.Address) {
		return false
	}
	for i, set := range c.Topics {
		if len(set) == 0 {
			continue
		}
		if i >= len(l.Topics) || !slices.Contains(set, l.Topics[i]) {
			return false
		}
	}
	return true
}

// BloomFilter returns a block pre-check for c, or nil when every block has to
// be scanned. A block passes when its bloom may contain one of the addresses
// and, for every constrained topic position, one of the listed topics.
func BloomFilter(c *Criteria) logstore.BloomFilter {
	constrained := len(c.Addresses) > 0
	for _, set := range c.Topics {
		if len(set) > 0 {
			constrained = true
			break
		}
	}
	if !constrained {
		return nil
	}
	return func(bloom ethtypes.Bloom) bool {
		if len(c.Addresses) > 0 {
			found := false
			for _, addr := range c.Addresses {
				if ethtypes.BloomLookup(bloom, addr) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		for _, set := range c.Topics {
			if len(set) == 0 {
				continue
			}
			found := false
			for _, topic := range set {
				if ethtypes.BloomLookup(bloom, topic) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
}
