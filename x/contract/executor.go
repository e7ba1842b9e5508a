package contract

import (
	"fmt"
	"sync"
)

// Executor is the uniform interface every hosted contract implements. Handle
// must be pure over (state, calldata): no I/O, no wall clock, no suspension,
// so the same transition runs byte-identical inside the proving environment.
type Executor interface {
	// Handle executes the blob Calldata.Index points at, mutating the
	// executor's state. A returned error or Output.Success == false voids
	// the whole transaction; the rollup store discards the mutation.
	Handle(cd *Calldata) (Output, error)

	// Commit returns the provable-subset serialization of the state. It must
	// be bit-exact with the proving environment for the same input sequence.
	Commit() []byte

	// Clone returns a deep copy. Used for snapshot-before-mutate.
	Clone() Executor

	// MarshalBinary serializes the full state (including non-provable
	// fields) for the executor snapshot file.
	MarshalBinary() ([]byte, error)
}

// Deserializer restores an executor from MarshalBinary output.
type Deserializer func(data []byte) (Executor, error)

// Registry maps contract names to snapshot deserializers. The rollup
// executor stays generic over contract type via this table; runtime type
// identity is never consulted.
type Registry struct {
	mu    sync.RWMutex
	deser map[ContractName]Deserializer
}

func NewRegistry() *Registry {
	return &Registry{deser: make(map[ContractName]Deserializer)}
}

// Register installs the deserializer for a contract name. Last writer wins.
func (r *Registry) Register(name ContractName, d Deserializer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deser[name] = d
}

// Restore rebuilds an executor from snapshot bytes.
func (r *Registry) Restore(name ContractName, data []byte) (Executor, error) {
	r.mu.RLock()
	d, ok := r.deser[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no deserializer for %s", ErrUnknownContract, name)
	}
	return d(data)
}
