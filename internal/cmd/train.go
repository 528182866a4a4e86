package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/cadenza-ml/cadenza/internal/checkpoint"
	"github.com/cadenza-ml/cadenza/internal/config"
	"github.com/cadenza-ml/cadenza/internal/data"
	"github.com/cadenza-ml/cadenza/internal/dist"
	"github.com/cadenza-ml/cadenza/internal/event"
	"github.com/cadenza-ml/cadenza/internal/experiment"
	"github.com/cadenza-ml/cadenza/internal/logging"
	"github.com/cadenza-ml/cadenza/internal/observe"
	"github.com/cadenza-ml/cadenza/internal/tui"
)

var trainFlags struct {
	configFile string
	opts       []string
	dataFile   string
	outputDir  string
	device     string
	nprocs     int
	seed       int64
	resume     bool
	watch      bool
	logLevel   string
	name       string
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run a training experiment",
	Long: `Train an acoustic model: resolve and freeze the config tree, plan the
worker launch, and drive the training loop with periodic validation and
rank-0 checkpointing under the output directory.`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringVarP(&trainFlags.configFile, "config", "c", "", "YAML config overriding the compiled defaults")
	trainCmd.Flags().StringSliceVar(&trainFlags.opts, "opts", nil, "config overrides as key=value, applied after --config")
	trainCmd.Flags().StringVar(&trainFlags.dataFile, "data", "", "JSONL dataset file (required)")
	trainCmd.Flags().StringVarP(&trainFlags.outputDir, "output-dir", "o", "runs/default", "directory for logs, metrics, and checkpoints")
	trainCmd.Flags().StringVar(&trainFlags.device, "device", dist.DeviceCPU, "device kind: cpu or gpu")
	trainCmd.Flags().IntVar(&trainFlags.nprocs, "nprocs", 1, "worker count (data-parallel on gpu only)")
	trainCmd.Flags().Int64Var(&trainFlags.seed, "seed", 0, "shuffle and initialization seed")
	trainCmd.Flags().BoolVar(&trainFlags.resume, "resume", false, "resume from the latest checkpoint in the output directory")
	trainCmd.Flags().BoolVarP(&trainFlags.watch, "watch", "w", false, "attach the live terminal monitor")
	trainCmd.Flags().StringVar(&trainFlags.logLevel, "log-level", "info", "log level: "+strings.Join(logging.ValidLevels(), ", "))
	trainCmd.Flags().StringVar(&trainFlags.name, "name", "", "experiment name (default: output directory base name)")
	_ = trainCmd.MarkFlagRequired("data")
}

func runTrain(cmd *cobra.Command, args []string) error {
	tree, err := resolveTree(config.Defaults(), trainFlags.configFile, trainFlags.opts)
	if err != nil {
		return err
	}
	tree.Freeze()

	plan, err := dist.PlanLaunch(trainFlags.nprocs, trainFlags.device)
	if err != nil {
		return err
	}

	dataset, err := data.LoadFile(trainFlags.dataFile)
	if err != nil {
		return err
	}

	name := trainFlags.name
	if name == "" {
		name = filepath.Base(trainFlags.outputDir)
	}

	if err := os.MkdirAll(trainFlags.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := dumpConfig(tree, filepath.Join(trainFlags.outputDir, "config.yaml")); err != nil {
		return err
	}

	logger, err := logging.NewLogger(trainFlags.outputDir, trainFlags.logLevel)
	if err != nil {
		return err
	}
	defer logger.Close()

	sink, err := observe.NewFileSink(trainFlags.outputDir)
	if err != nil {
		return err
	}
	defer sink.Close()

	store, err := checkpoint.NewStore(filepath.Join(trainFlags.outputDir, "checkpoints"))
	if err != nil {
		return err
	}

	bus := event.NewBus()
	channel := observe.Multi{sink, observe.NewBusChannel(bus)}

	cfg, err := config.Load(tree)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var mu sync.Mutex
	finalIteration := 0

	trainBody := func() error {
		bus.Publish(event.NewRunStartedEvent(name, plan.WorkerCount, cfg.Training.MaxIteration))
		err := dist.Run(ctx, plan, func(w *dist.Worker) error {
			r := experiment.New(experiment.Options{
				Name:    name,
				Dataset: dataset,
				Seed:    trainFlags.seed,
				Channel: channel,
				Logger:  logger,
				Store:   store,
				Resume:  trainFlags.resume,
			})
			if err := r.Setup(tree, w); err != nil {
				return err
			}
			if err := r.Run(ctx); err != nil {
				return err
			}
			if w.IsLead() {
				mu.Lock()
				finalIteration = r.Iteration()
				mu.Unlock()
			}
			return nil
		})
		mu.Lock()
		bus.Publish(event.NewRunFinishedEvent(name, finalIteration, err))
		mu.Unlock()
		return err
	}

	if !trainFlags.watch {
		return trainBody()
	}

	// Watch mode: training runs in the background while the monitor owns
	// the terminal. The monitor is a pure observer; quitting it does not
	// stop training, but we wait for the run before returning.
	done := make(chan error, 1)
	go func() { done <- trainBody() }()

	if err := tui.NewMonitor(bus).Run(); err != nil {
		logger.Warn("monitor exited", "error", err)
	}
	return <-done
}

// resolveTree applies a YAML file and flat key=value overrides on top of a
// default tree, in that order, so explicit overrides always win.
func resolveTree(tree *config.Tree, file string, opts []string) (*config.Tree, error) {
	if file != "" {
		if err := tree.MergeFromFile(file); err != nil {
			return nil, err
		}
	}
	pairs, err := parseOpts(opts)
	if err != nil {
		return nil, err
	}
	if len(pairs) > 0 {
		if err := tree.MergeFromList(pairs); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

// parseOpts turns key=value elements into the alternating key, value list
// the tree merge expects.
func parseOpts(opts []string) ([]string, error) {
	pairs := make([]string, 0, 2*len(opts))
	for _, opt := range opts {
		key, value, found := strings.Cut(opt, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("bad override %q: want key=value", opt)
		}
		pairs = append(pairs, key, value)
	}
	return pairs, nil
}

func dumpConfig(tree *config.Tree, path string) error {
	raw, err := tree.Dump()
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write config dump: %w", err)
	}
	return nil
}
