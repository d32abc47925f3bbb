// Package logstore holds the append-only record of emitted event logs, keyed
// by block height.
//
// Blocks are appended one at a time, in strictly increasing and contiguous
// height order; a block's logs become visible all at once or not at all.
// Readers work from a Snapshot: the head height is read exactly once when the
// snapshot is taken, so a range query never observes blocks appended while it
// is running and symbolic bounds (earliest, latest, pending) resolve against a
// single head.
//
// Two implementations are provided: MemoryStore, an RWMutex-guarded slice, and
// PebbleStore, which persists blocks in a Pebble database and survives
// restarts.
package logstore
