package stream

import (
	"fmt"
	"sync"

	"github.com/dexsim/protosim/pkg/evmdb"
	"github.com/dexsim/protosim/pkg/protocol"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// FatalError is returned by Decode for anything that leaves the decoder
// unable to make progress on a message: a missing block header, a malformed
// removed-component id, or a decoder failure not covered by skip_failures.
type FatalError struct {
	Reason string
}

func (e *FatalError) Error() string { return fmt.Sprintf("stream: %s", e.Reason) }

// Decoder owns the persistent cross-message state C10 accumulates: known
// tokens, the last-seen state of every pool, and the per-protocol
// decoder/filter registries.
type Decoder struct {
	mu sync.RWMutex

	tokens     map[common.Address]protocol.Token
	poolStates map[string]protocol.ProtocolSim

	registry map[string]DecoderFunc
	filters  map[string]FilterFunc

	db              *evmdb.PrecachedDB
	skipFailures    bool
	minTokenQuality uint8
	log             *zap.SugaredLogger
}

// New builds an empty Decoder. db is the indexer-backed account cache (C3)
// that vm_storage snapshots and account_updates are folded into.
func New(db *evmdb.PrecachedDB, skipFailures bool, minTokenQuality uint8, log *zap.SugaredLogger) *Decoder {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Decoder{
		tokens:          make(map[common.Address]protocol.Token),
		poolStates:      make(map[string]protocol.ProtocolSim),
		registry:        make(map[string]DecoderFunc),
		filters:         make(map[string]FilterFunc),
		db:              db,
		skipFailures:    skipFailures,
		minTokenQuality: minTokenQuality,
		log:             log,
	}
}

// SetTokens seeds (or replaces) the set of tokens considered known. A pool
// referencing a token outside this set is never decoded.
func (d *Decoder) SetTokens(tokens map[common.Address]protocol.Token) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for addr, tok := range tokens {
		d.tokens[addr] = tok
	}
}

// RegisterDecoder binds a C9 snapshot decoder to a protocol id.
func (d *Decoder) RegisterDecoder(protocolID string, fn DecoderFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registry[protocolID] = fn
}

// RegisterFilter binds a client-side inclusion predicate to a protocol id.
func (d *Decoder) RegisterFilter(protocolID string, fn FilterFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filters[protocolID] = fn
}

// Decode turns one block's feed message into a BlockUpdate. New/updated
// states and removed pairs are collected in local maps and committed to the
// Decoder's persistent pool_states only at the end, so a message that fails
// partway leaves pool_states unchanged. New tokens and PrecachedDB account
// updates are not staged: they are applied as each protocol's section runs
// and stay applied if a later step of the same message fails.
func (d *Decoder) Decode(msg FeedMessage) (*BlockUpdate, error) {
	var header protocol.BlockHeader
	headerSet := false
	for _, pm := range msg.StateMsgs {
		header = pm.Header
		headerSet = true
		break
	}
	if !headerSet {
		return nil, &FatalError{Reason: "missing block header"}
	}

	updatedStates := make(map[string]protocol.ProtocolSim)
	newPairs := make(map[string]protocol.ProtocolComponent)
	removedPairs := make(map[string]protocol.ProtocolComponent)

	for protocolID, pm := range msg.StateMsgs {
		if pm.Deltas != nil {
			if err := d.ingestNewTokens(pm.Deltas.NewTokens); err != nil {
				return nil, err
			}
		}

		if pm.Deltas != nil {
			removed, err := d.computeRemovedPairs(pm.Deltas.RemovedComponents)
			if err != nil {
				return nil, err
			}
			for id, comp := range removed {
				removedPairs[id] = comp
			}
		}

		if d.db != nil && len(pm.Snapshots.VMStorage) > 0 {
			updates := make([]evmdb.AccountUpdate, 0, len(pm.Snapshots.VMStorage))
			for addr, acc := range pm.Snapshots.VMStorage {
				updates = append(updates, evmdb.AccountUpdate{
					Kind:    evmdb.UpdateKindCreation,
					Address: addr,
					Code:    acc.Code,
					Balance: acc.Balance,
					Storage: acc.Slots,
				})
			}
			block := header.Number
			d.db.Update(updates, &block)
		}

		for id, snapshot := range pm.Snapshots.States {
			if filter, ok := d.registeredFilter(protocolID); ok && !filter(snapshot) {
				continue
			}

			tokens, ok := d.lookupTokens(snapshot.Component.Tokens)
			if !ok {
				d.log.Debugw("skipping pool referencing unknown token", "pool_id", id)
				continue
			}

			decoder, ok := d.registeredDecoder(protocolID)
			if !ok {
				if d.skipFailures {
					d.log.Warnw("missing decoder registration", "pool_id", id, "protocol", protocolID)
					continue
				}
				return nil, &FatalError{Reason: fmt.Sprintf("missing decoder registration for %s", protocolID)}
			}

			state, err := decoder(snapshot, header, tokens)
			if err != nil {
				if d.skipFailures {
					d.log.Warnw("state decoding failure", "pool_id", id, "error", err)
					continue
				}
				return nil, &FatalError{Reason: err.Error()}
			}

			newPairs[id] = snapshot.Component
			updatedStates[id] = state
		}

		if pm.Deltas != nil {
			if d.db != nil && len(pm.Deltas.AccountUpdates) > 0 {
				updates := make([]evmdb.AccountUpdate, 0, len(pm.Deltas.AccountUpdates))
				for addr, au := range pm.Deltas.AccountUpdates {
					updates = append(updates, evmdb.AccountUpdate{
						Kind:    accountUpdateKind(au.Change),
						Address: addr,
						Code:    au.Code,
						Balance: au.Balance,
						Storage: au.Slots,
					})
				}
				block := header.Number
				d.db.Update(updates, &block)
			}

			if err := d.applyStateDeltas(pm.Deltas.StateUpdates, updatedStates); err != nil {
				return nil, err
			}
		}
	}

	d.mu.Lock()
	for id, state := range updatedStates {
		d.poolStates[id] = state
	}
	d.mu.Unlock()

	return &BlockUpdate{
		BlockNumber:  header.Number,
		States:       updatedStates,
		NewPairs:     newPairs,
		RemovedPairs: removedPairs,
	}, nil
}

func accountUpdateKind(c ChangeType) evmdb.UpdateKind {
	switch c {
	case ChangeCreation:
		return evmdb.UpdateKindCreation
	case ChangeDeletion:
		return evmdb.UpdateKindDeletion
	default:
		return evmdb.UpdateKindUpdate
	}
}

func (d *Decoder) ingestNewTokens(newTokens map[common.Address]protocol.TokenMeta) error {
	if len(newTokens) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for addr, meta := range newTokens {
		if meta.Quality < d.minTokenQuality {
			continue
		}
		if _, ok := d.tokens[addr]; ok {
			continue
		}
		d.tokens[addr] = protocol.Token{
			Address:  addr,
			Symbol:   meta.Symbol,
			Decimals: meta.Decimals,
			Quality:  meta.Quality,
		}
	}
	return nil
}

func (d *Decoder) computeRemovedPairs(removed map[string]protocol.ProtocolComponent) (map[string]protocol.ProtocolComponent, error) {
	if len(removed) == 0 {
		return nil, nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]protocol.ProtocolComponent, len(removed))
	for id, comp := range removed {
		if !common.IsHexAddress(id) {
			if d.skipFailures {
				continue
			}
			return nil, &FatalError{Reason: fmt.Sprintf("malformed removed component id %q", id)}
		}
		allKnown := true
		for _, t := range comp.Tokens {
			if _, ok := d.tokens[t]; !ok {
				allKnown = false
				break
			}
		}
		if !allKnown {
			// The component's tokens were never admitted, so it was never
			// surfaced as a pair either; silently drop it.
			continue
		}
		out[id] = comp
	}
	return out, nil
}

func (d *Decoder) lookupTokens(addrs []common.Address) (map[common.Address]protocol.Token, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[common.Address]protocol.Token, len(addrs))
	for _, a := range addrs {
		tok, ok := d.tokens[a]
		if !ok {
			return nil, false
		}
		out[a] = tok
	}
	return out, true
}

func (d *Decoder) registeredDecoder(protocolID string) (DecoderFunc, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn, ok := d.registry[protocolID]
	return fn, ok
}

func (d *Decoder) registeredFilter(protocolID string) (FilterFunc, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn, ok := d.filters[protocolID]
	return fn, ok
}

func (d *Decoder) applyStateDeltas(deltas map[string]protocol.ProtocolStateDelta, updatedStates map[string]protocol.ProtocolSim) error {
	if len(deltas) == 0 {
		return nil
	}
	d.mu.RLock()
	knownTokens := make([]protocol.Token, 0, len(d.tokens))
	for _, t := range d.tokens {
		knownTokens = append(knownTokens, t)
	}
	persisted := d.poolStates
	d.mu.RUnlock()

	for id, delta := range deltas {
		if state, ok := updatedStates[id]; ok {
			next, err := state.DeltaTransition(delta, knownTokens)
			if err != nil {
				return &FatalError{Reason: fmt.Sprintf("transition failure for %s: %s", id, err)}
			}
			updatedStates[id] = next
			continue
		}
		if state, ok := persisted[id]; ok {
			next, err := state.Clone().DeltaTransition(delta, knownTokens)
			if err != nil {
				return &FatalError{Reason: fmt.Sprintf("transition failure for %s: %s", id, err)}
			}
			updatedStates[id] = next
			continue
		}
		d.log.Warnw("delta for unknown component", "pool_id", id)
	}
	return nil
}
