package memtrie

// Costs carries the protocol constants used by the memory-usage cost model.
// There is no CLI or environment-variable layer for these — callers
// construct a Costs value directly and pass it to New.
type Costs struct {
	NodeCost    uint64
	ByteOfKey   uint64
	ByteOfValue uint64
}

// DefaultCosts mirrors nearcore's TRIE_COSTS table (original_source's
// updating.rs), the protocol this engine's design is grounded on.
var DefaultCosts = Costs{
	NodeCost:    50,
	ByteOfKey:   2,
	ByteOfValue: 1,
}

// inlineValueThreshold is the byte length above which a value is referenced
// by hash instead of carried inline in its ValueRef: past this size the
// engine only needs the byte length and the content hash to account for it.
const inlineValueThreshold = 32
