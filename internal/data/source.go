package data

import (
	"fmt"
	"math/rand"

	"github.com/cadenza-ml/cadenza/internal/errors"
)

// TrainingSource yields shuffled, fixed-size batches from the training
// split, reshuffling at each epoch boundary. Trailing incomplete batches
// are dropped.
//
// In multi-worker mode the shuffled order is partitioned disjointly across
// ranks by contiguous stride: every rank draws the same seeded permutation,
// takes its own contiguous slice, and drops its own trailing partial batch.
// Because the per-rank slice length depends only on the dataset size and
// world size, every rank yields the identical batch count per epoch, which
// keeps the per-step gradient collective aligned.
type TrainingSource struct {
	ds        Dataset
	batchSize int
	rank      int
	worldSize int
	seed      int64
	collator  Collator

	epoch   int
	batches [][]int // example index batches for the current epoch
	cursor  int
}

// NewTrainingSource builds a training source for one worker.
func NewTrainingSource(ds Dataset, batchSize int, rank, worldSize int, seed int64, collator Collator) (*TrainingSource, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if worldSize < 1 {
		return nil, fmt.Errorf("world size must be at least 1, got %d", worldSize)
	}
	if rank < 0 || rank >= worldSize {
		return nil, fmt.Errorf("rank %d out of range for world size %d", rank, worldSize)
	}

	s := &TrainingSource{
		ds:        ds,
		batchSize: batchSize,
		rank:      rank,
		worldSize: worldSize,
		seed:      seed,
		collator:  collator,
	}
	if s.BatchesPerEpoch() == 0 {
		return nil, fmt.Errorf("training split of %d examples yields no full batches for batch size %d across %d workers",
			len(ds), batchSize, worldSize)
	}
	s.reshuffle()
	return s, nil
}

// BatchesPerEpoch returns the per-rank batch count. It is identical for
// every rank of the same world size.
func (s *TrainingSource) BatchesPerEpoch() int {
	perRank := len(s.ds) / s.worldSize
	return perRank / s.batchSize
}

// Epoch returns the zero-based epoch of the batch Next will return.
func (s *TrainingSource) Epoch() int {
	return s.epoch
}

// reshuffle draws the epoch's permutation and carves this rank's shard.
// Every rank must derive the same permutation, so the RNG is seeded from
// the shared seed plus the epoch, never the rank.
func (s *TrainingSource) reshuffle() {
	rng := rand.New(rand.NewSource(s.seed + int64(s.epoch)))
	order := rng.Perm(len(s.ds))

	perRank := len(s.ds) / s.worldSize
	shard := order[s.rank*perRank : (s.rank+1)*perRank]

	count := s.BatchesPerEpoch()
	s.batches = make([][]int, count)
	for i := 0; i < count; i++ {
		s.batches[i] = shard[i*s.batchSize : (i+1)*s.batchSize]
	}
	s.cursor = 0
}

// Next returns the next training batch, wrapping to a freshly shuffled
// epoch when the current one is exhausted.
func (s *TrainingSource) Next() (*Batch, error) {
	if s.cursor >= len(s.batches) {
		s.epoch++
		s.reshuffle()
	}

	indices := s.batches[s.cursor]
	s.cursor++

	examples := make([]Example, len(indices))
	for i, idx := range indices {
		examples[i] = s.ds[idx]
	}
	return s.collator.Collate(examples)
}

// ValidationSource yields the full validation split in sequential order.
// The final partial batch is kept: validation must cover every held-out
// example. It is never sharded across ranks.
type ValidationSource struct {
	ds        Dataset
	batchSize int
	collator  Collator
}

// NewValidationSource builds a validation source over the full split.
func NewValidationSource(ds Dataset, batchSize int, collator Collator) (*ValidationSource, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if len(ds) == 0 {
		return nil, errors.New("validation split is empty")
	}
	return &ValidationSource{ds: ds, batchSize: batchSize, collator: collator}, nil
}

// NumBatches returns the batch count, counting the final partial batch.
func (s *ValidationSource) NumBatches() int {
	return (len(s.ds) + s.batchSize - 1) / s.batchSize
}

// NumExamples returns the validation split size.
func (s *ValidationSource) NumExamples() int {
	return len(s.ds)
}

// ForEach runs fn over every validation batch exactly once, in order.
// Iteration stops at the first error.
func (s *ValidationSource) ForEach(fn func(i int, b *Batch) error) error {
	for i := 0; i < s.NumBatches(); i++ {
		lo := i * s.batchSize
		hi := lo + s.batchSize
		if hi > len(s.ds) {
			hi = len(s.ds)
		}

		batch, err := s.collator.Collate(s.ds[lo:hi])
		if err != nil {
			return err
		}
		if err := fn(i, batch); err != nil {
			return err
		}
	}
	return nil
}
