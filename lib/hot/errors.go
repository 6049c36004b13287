package hot

import "github.com/cockroachdb/errors"

var (
	// ErrArenaOverflow is the panic value (wrapped) raised when an arena would
	// grow past the 47-bit offset space. The map cannot keep its invariants
	// after this point, so there is no in-band error path.
	ErrArenaOverflow = errors.New("hot: arena offset exceeds 47-bit address space")

	// ErrKeyTooLong is the panic value (wrapped) raised when a key longer than
	// MaxKeyLen is inserted.
	ErrKeyTooLong = errors.New("hot: key exceeds maximum length")

	// ErrIteratorInvalidated is the panic value raised when an Iterator is
	// advanced after its map was mutated.
	ErrIteratorInvalidated = errors.New("hot: iterator used after map mutation")
)
