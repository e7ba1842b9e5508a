// Package prover hands settled transactions to an external proving service.
// Proving runs strictly behind settlement: jobs carry the pre-state
// commitment and the transaction, never live executor state, so the worker
// can lag or fail without touching the execution path.
package prover

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyli-org/degen-party/x/contract"
)

// Job is one proof request: re-execute tx on top of the given pre-state
// commitment inside the proving environment.
type Job struct {
	Contract  contract.ContractName `json:"contract"`
	PreState  []byte                `json:"pre_state"`
	Tx        contract.Transaction  `json:"tx"`
	TxCtx     contract.TxContext    `json:"tx_ctx"`
	PostState []byte                `json:"post_state"`
}

// Artifact is a finished proof.
type Artifact struct {
	TxHash common.Hash `json:"tx_hash"`
	Proof  []byte      `json:"proof"`
}

// Prover produces a proof artifact for one job.
type Prover interface {
	Prove(ctx context.Context, job Job) (Artifact, error)
}
