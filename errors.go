package memtrie

import (
	"fmt"

	"github.com/wgyt/memtrie/internal/triearena"
)

// StorageError is the single recoverable error category observable to
// callers: the arena could not produce the node behind an Old(_) reference
// (corrupted handle, missing page).
type StorageError struct {
	Handle triearena.Handle
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("memtrie: storage fault resolving handle %d: %v", e.Handle, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// programmerError panics: a double-take of a slot, a place over a non-hole,
// or a post-order traversal reaching an orphaned Empty are bugs in the
// engine itself, not recoverable caller-visible conditions, so they abort
// the session rather than returning an error.
func programmerError(format string, args ...interface{}) {
	panic(fmt.Sprintf("memtrie: "+format, args...))
}
