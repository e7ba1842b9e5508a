package contract

import "errors"

// Error taxonomy for contract transitions and the rollup executor. Callers
// classify failures with errors.Is; every variant rejects the offending
// transaction without corrupting state.
var (
	// ErrValidation marks a malformed, out-of-phase or out-of-range action.
	ErrValidation = errors.New("validation error")

	// ErrDuplicateAction marks a replay-protection hit: the caller already
	// consumed this action UUID.
	ErrDuplicateAction = errors.New("duplicate action")

	// ErrUnknownContract marks a blob addressed to a contract the executor
	// does not track.
	ErrUnknownContract = errors.New("unknown contract")

	// ErrCompositionMismatch marks a missing or mismatching paired blob in a
	// cross-contract transaction. Always a hard rejection.
	ErrCompositionMismatch = errors.New("composition mismatch")

	// ErrOverflow marks arithmetic over/underflow on balances.
	ErrOverflow = errors.New("arithmetic overflow")

	// ErrStateDesync marks a supposedly-confirmed transaction failing on
	// replay against settled state. Indicates executor/ledger divergence.
	ErrStateDesync = errors.New("state desync")
)
