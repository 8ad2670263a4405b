package vmpool

import (
	"github.com/dexsim/protosim/pkg/adapter"
	"github.com/dexsim/protosim/pkg/protocol"
	"github.com/ethereum/go-ethereum/common"
)

// DiscoverCapabilities queries the adapter's getCapabilities for every
// ordered pair of tokens and intersects the results, warning when a pair
// reports a capability another pair lacks (the pool is treated as only
// supporting what every pair agrees on).
func DiscoverCapabilities(a *adapter.Adapter, poolID string, tokens []common.Address, block uint64, log logger) (map[protocol.Capability]struct{}, error) {
	var perPair []map[protocol.Capability]struct{}
	maxLen := 0
	for i, t0 := range tokens {
		for j, t1 := range tokens {
			if i == j {
				continue
			}
			caps, err := a.GetCapabilities(poolID, t0, t1, block)
			if err != nil {
				return nil, err
			}
			set := make(map[protocol.Capability]struct{}, len(caps))
			for _, c := range caps {
				set[c] = struct{}{}
			}
			if len(set) > maxLen {
				maxLen = len(set)
			}
			perPair = append(perPair, set)
		}
	}
	if len(perPair) == 0 {
		return map[protocol.Capability]struct{}{}, nil
	}

	intersection := make(map[protocol.Capability]struct{}, len(perPair[0]))
	for c := range perPair[0] {
		intersection[c] = struct{}{}
	}
	for _, set := range perPair[1:] {
		for c := range intersection {
			if _, ok := set[c]; !ok {
				delete(intersection, c)
			}
		}
	}

	if len(intersection) < maxLen {
		log.Warnw("pool has different capabilities depending on the token pair", "pool_id", poolID)
	}
	return intersection, nil
}

// logger is the minimal interface DiscoverCapabilities needs; satisfied by
// *zap.SugaredLogger.
type logger interface {
	Warnw(msg string, keysAndValues ...interface{})
}
