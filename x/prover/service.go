package prover

import (
	"context"
	"crypto/sha256"

	"github.com/rs/zerolog"

	"github.com/hyli-org/degen-party/log"
)

// Service runs proof jobs off the executor's critical path. Jobs queue on a
// bounded channel; when the queue is full the executor drops the job and the
// transaction simply settles without a local proof.
type Service struct {
	prover  Prover
	jobs    chan Job
	results chan Artifact
	logger  zerolog.Logger
}

func NewService(p Prover, queueDepth int) *Service {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	return &Service{
		prover:  p,
		jobs:    make(chan Job, queueDepth),
		results: make(chan Artifact, queueDepth),
		logger:  log.Logger.With().Str("component", "prover-service").Logger(),
	}
}

// Submit queues a job. Returns false when the queue is full.
func (s *Service) Submit(job Job) bool {
	select {
	case s.jobs <- job:
		return true
	default:
		s.logger.Warn().Stringer("tx", job.Tx.Hash()).Msg("proof queue full, dropping job")
		return false
	}
}

// Results is the feed of finished proofs.
func (s *Service) Results() <-chan Artifact {
	return s.results
}

// Run consumes jobs until ctx is cancelled. Failures are logged and the job
// dropped; settlement already happened, a missing proof is recoverable by
// re-proving from the snapshot.
func (s *Service) Run(ctx context.Context) error {
	defer close(s.results)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-s.jobs:
			artifact, err := s.prover.Prove(ctx, job)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error().Err(err).Stringer("tx", job.Tx.Hash()).Msg("proof generation failed")
				continue
			}
			select {
			case s.results <- artifact:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// TestProver produces deterministic pseudo-proofs for tests and local runs:
// the digest of the job's commitments and transaction hash.
type TestProver struct{}

func (TestProver) Prove(_ context.Context, job Job) (Artifact, error) {
	hash := job.Tx.Hash()
	h := sha256.New()
	h.Write(job.PreState)
	h.Write(hash[:])
	h.Write(job.PostState)
	return Artifact{TxHash: hash, Proof: h.Sum(nil)}, nil
}

var _ Prover = TestProver{}
