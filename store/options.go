package store

import (
	"github.com/dgraph-io/badger/v2"
	"github.com/dgraph-io/badger/v2/options"
)

// DefaultOptions returns the Badger options this keyserver opens its
// metadata database with. Tuned for a small, frequently-read key-value
// workload rather than the bulk-loaded index the teacher configuration
// targets: tables and the value log are read with plain file I/O instead
// of being memory-mapped, and bloom filters are not loaded on open, since
// the database here stays modest (one entry per identity, one blob for
// peers). Table sizes are Badger's defaults, and Badger's own logger is
// disabled.
func DefaultOptions(dir string) badger.Options {
	return badger.DefaultOptions(dir).
		WithValueLogLoadingMode(options.FileIO).
		WithTableLoadingMode(options.FileIO).
		WithLoadBloomsOnOpen(false).
		WithLogger(nil)
}
