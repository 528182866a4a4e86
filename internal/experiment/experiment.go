// Package experiment drives the training loop: it owns the iteration
// counter, the train and validation steps, rank-aware observability, and
// checkpoint scheduling.
//
// A Runner advances through Created, Configured, Running (with transient
// Validating excursions), Finished. All side-effecting work beyond the
// per-rank log line — metric emission, validation, checkpoint writes — is
// restricted to rank 0.
package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/cadenza-ml/cadenza/internal/checkpoint"
	"github.com/cadenza-ml/cadenza/internal/config"
	"github.com/cadenza-ml/cadenza/internal/data"
	"github.com/cadenza-ml/cadenza/internal/dist"
	"github.com/cadenza-ml/cadenza/internal/errors"
	"github.com/cadenza-ml/cadenza/internal/logging"
	"github.com/cadenza-ml/cadenza/internal/model"
	"github.com/cadenza-ml/cadenza/internal/observe"
)

// State is the runner's lifecycle phase.
type State int

const (
	StateCreated State = iota
	StateConfigured
	StateRunning
	StateValidating
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateValidating:
		return "validating"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ModelFactory builds the model and criterion from the loaded config.
type ModelFactory func(cfg *config.Config, seed int64) (model.Model, model.Criterion, error)

// Options configures a Runner before Setup.
type Options struct {
	// Name identifies the experiment in logs.
	Name string
	// Dataset is the full example set; Split carves the validation head
	// off it per data.valid_size.
	Dataset data.Dataset
	// Seed drives the per-epoch shuffle and model initialization.
	Seed int64
	// Channel receives metrics; nil means discard.
	Channel observe.Channel
	// Logger receives structured step logs; nil means discard.
	Logger *logging.Logger
	// Store persists checkpoints; nil disables checkpointing.
	Store *checkpoint.Store
	// Resume restores the latest snapshot from Store before training.
	Resume bool
	// NewModel overrides the default reference model factory.
	NewModel ModelFactory
}

// Runner executes one worker's share of the experiment.
type Runner struct {
	opts  Options
	state State

	cfg       *config.Config
	worker    *dist.Worker
	model     model.Model
	criterion model.Criterion
	optimizer *model.Adam
	trainSrc  *data.TrainingSource
	validSrc  *data.ValidationSource
	channel   observe.Channel
	log       *logging.Logger

	iteration int
}

// New creates a runner in the Created state.
func New(opts Options) *Runner {
	return &Runner{opts: opts, state: StateCreated}
}

// Setup builds the model, criterion, optimizer, and both batch sources
// from the frozen config tree, moving the runner to Configured. Any
// invalid or missing configuration fails here, before training starts.
func (r *Runner) Setup(tree *config.Tree, w *dist.Worker) error {
	if r.state != StateCreated {
		return fmt.Errorf("setup called in state %s", r.state)
	}
	if !tree.Frozen() {
		return errors.NewConfigError("config tree must be frozen before setup", errors.ErrFrozen)
	}

	cfg, err := config.Load(tree)
	if err != nil {
		return err
	}

	r.cfg = cfg
	r.worker = w

	r.channel = r.opts.Channel
	if r.channel == nil {
		r.channel = observe.Nop{}
	}
	r.log = r.opts.Logger
	if r.log == nil {
		r.log = logging.NopLogger()
	}
	r.log = r.log.WithRank(w.Rank)
	if r.opts.Name != "" {
		r.log = r.log.WithExperiment(r.opts.Name)
	}

	collator := data.Collator{
		PaddingIdx: int64(cfg.Data.PaddingIdx),
		NMels:      cfg.Data.NMels,
	}
	valid, train := data.Split(r.opts.Dataset, cfg.Data.ValidSize)

	r.trainSrc, err = data.NewTrainingSource(train, cfg.Data.BatchSize, w.Rank, w.WorldSize, r.opts.Seed, collator)
	if err != nil {
		return fmt.Errorf("failed to build training source: %w", err)
	}
	if w.IsLead() && len(valid) > 0 {
		r.validSrc, err = data.NewValidationSource(valid, cfg.Data.BatchSize, collator)
		if err != nil {
			return fmt.Errorf("failed to build validation source: %w", err)
		}
	}

	factory := r.opts.NewModel
	if factory == nil {
		factory = func(cfg *config.Config, seed int64) (model.Model, model.Criterion, error) {
			m, err := model.NewRefModel(cfg.Model.VocabSize, cfg.Data.NMels, seed)
			if err != nil {
				return nil, nil, err
			}
			return m, model.RefCriterion{}, nil
		}
	}
	r.model, r.criterion, err = factory(cfg, r.opts.Seed)
	if err != nil {
		return fmt.Errorf("failed to build model: %w", err)
	}

	r.optimizer = model.NewAdam(r.model.Parameters(),
		cfg.Training.LR, 0.9, 0.999, 1e-8, cfg.Training.WeightDecay)

	if r.opts.Resume && r.opts.Store != nil {
		snap, err := r.opts.Store.LoadLatest()
		if err != nil {
			return fmt.Errorf("failed to load checkpoint: %w", err)
		}
		if snap != nil {
			if err := snap.Apply(r.model.Parameters(), r.optimizer); err != nil {
				return fmt.Errorf("failed to restore checkpoint: %w", err)
			}
			r.iteration = snap.Iteration
			r.log.Info("resumed from checkpoint", "iteration", r.iteration)
		}
	}

	r.state = StateConfigured
	r.log.Info("experiment configured",
		"world_size", w.WorldSize,
		"train_examples", len(train),
		"valid_examples", len(valid),
		"batches_per_epoch", r.trainSrc.BatchesPerEpoch())
	return nil
}

// State returns the current lifecycle phase.
func (r *Runner) State() State {
	return r.state
}

// Iteration returns the global step counter.
func (r *Runner) Iteration() int {
	return r.iteration
}

// TrainBatch executes exactly one optimization step: fetch, forward, loss,
// backward, gradient synchronization in multi-worker mode, clip, update.
// The iteration counter advances by one on every rank in every mode.
func (r *Runner) TrainBatch() error {
	if r.state != StateConfigured && r.state != StateRunning {
		return fmt.Errorf("train step called in state %s", r.state)
	}

	fetchStart := time.Now()
	batch, err := r.trainSrc.Next()
	if err != nil {
		return err
	}
	fetchDur := time.Since(fetchStart)

	stepStart := time.Now()

	params := r.model.Parameters()
	model.ZeroGrads(params)
	r.model.SetTraining(true)

	out, err := r.model.Forward(batch)
	if err != nil {
		return err
	}
	losses, err := r.criterion.Compute(out, batch)
	if err != nil {
		return err
	}
	if err := r.model.Backward(batch, out); err != nil {
		return err
	}

	if r.worker.WorldSize > 1 {
		if err := r.syncGradients(params); err != nil {
			return err
		}
	}

	model.ClipGradsByGlobalNorm(params, r.cfg.Training.GradClipThresh)
	r.optimizer.Step(params)

	stepDur := time.Since(stepStart)

	logArgs := []any{
		"iteration", r.iteration,
		"fetch_ms", fetchDur.Milliseconds(),
		"step_ms", stepDur.Milliseconds(),
	}
	for _, key := range losses.Keys() {
		logArgs = append(logArgs, key, losses[key])
	}
	r.log.Info("train step", logArgs...)

	if r.worker.IsLead() {
		for _, key := range losses.Keys() {
			if err := r.channel.LogScalar("train_loss/"+key, losses[key], r.iteration); err != nil {
				return err
			}
		}
	}

	r.iteration++
	return nil
}

// syncGradients averages this rank's gradients with every peer through the
// group collective. All ranks block here until the slowest arrives.
func (r *Runner) syncGradients(params []*model.Param) error {
	total := 0
	for _, p := range params {
		total += len(p.Grad)
	}
	flat := make([]float64, 0, total)
	for _, p := range params {
		flat = append(flat, p.Grad...)
	}

	mean, err := r.worker.AllReduceMean(flat)
	if err != nil {
		return err
	}

	off := 0
	for _, p := range params {
		copy(p.Grad, mean[off:off+len(p.Grad)])
		off += len(p.Grad)
	}
	return nil
}

// Valid runs one full validation pass. Only rank 0 executes it; every
// other rank returns immediately with no barrier, catching up with rank 0
// at the next step's gradient collective. The pass is read-only: inference
// mode for its whole duration, no optimizer activity, and the iteration
// counter is untouched.
func (r *Runner) Valid() error {
	if !r.worker.IsLead() {
		return nil
	}
	if r.validSrc == nil {
		return nil
	}
	if r.state != StateConfigured && r.state != StateRunning {
		return fmt.Errorf("validation called in state %s", r.state)
	}

	prevState := r.state
	r.state = StateValidating
	defer func() { r.state = prevState }()

	wasTraining := r.model.Training()
	r.model.SetTraining(false)
	defer r.model.SetTraining(wasTraining)

	start := time.Now()
	sums := make(model.Losses)
	batches := 0
	sentence := 0

	err := r.validSrc.ForEach(func(i int, batch *data.Batch) error {
		out, err := r.model.Forward(batch)
		if err != nil {
			return err
		}
		losses, err := r.criterion.Compute(out, batch)
		if err != nil {
			return err
		}
		for key, v := range losses {
			sums[key] += v
		}
		batches++

		for j := 0; j < batch.Size(); j++ {
			tag := fmt.Sprintf("valid_sentence_%d_alignments", sentence)
			if err := r.channel.LogArtifact(tag, out.Alignments[j], r.iteration); err != nil {
				return err
			}
			sentence++
		}
		return nil
	})
	if err != nil {
		return err
	}

	logArgs := []any{
		"iteration", r.iteration,
		"examples", sentence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	}
	for _, key := range sums.Keys() {
		avg := sums[key] / float64(batches)
		logArgs = append(logArgs, key, avg)
		if err := r.channel.LogScalar("valid/"+key, avg, r.iteration); err != nil {
			return err
		}
	}
	r.log.Info("validation pass", logArgs...)
	return nil
}

// Run drives the main loop until training.max_iteration: train step, then
// a validation pass every training.valid_interval steps and a rank-0
// checkpoint every training.save_interval steps, plus a final checkpoint
// on completion.
func (r *Runner) Run(ctx context.Context) error {
	if r.state != StateConfigured {
		return fmt.Errorf("run called in state %s", r.state)
	}
	r.state = StateRunning
	r.log.Info("training started",
		"iteration", r.iteration,
		"max_iteration", r.cfg.Training.MaxIteration)

	for r.iteration < r.cfg.Training.MaxIteration {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.TrainBatch(); err != nil {
			return err
		}
		if r.cfg.Training.ValidInterval > 0 && r.iteration%r.cfg.Training.ValidInterval == 0 {
			if err := r.Valid(); err != nil {
				return err
			}
		}
		if r.cfg.Training.SaveInterval > 0 && r.iteration%r.cfg.Training.SaveInterval == 0 {
			if err := r.saveCheckpoint(); err != nil {
				return err
			}
		}
	}

	if err := r.saveCheckpoint(); err != nil {
		return err
	}
	r.state = StateFinished
	r.log.Info("training finished", "iteration", r.iteration)
	return nil
}

// Snapshot captures the runner's restorable state.
func (r *Runner) Snapshot() *checkpoint.Snapshot {
	return checkpoint.Capture(r.iteration, r.model.Parameters(), r.optimizer)
}

// Restore applies a snapshot, repositioning the iteration counter.
func (r *Runner) Restore(snap *checkpoint.Snapshot) error {
	if err := snap.Apply(r.model.Parameters(), r.optimizer); err != nil {
		return err
	}
	r.iteration = snap.Iteration
	return nil
}

func (r *Runner) saveCheckpoint() error {
	if !r.worker.IsLead() || r.opts.Store == nil {
		return nil
	}
	path, err := r.opts.Store.Save(r.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	r.log.Info("checkpoint saved", "iteration", r.iteration, "path", path)
	return nil
}
