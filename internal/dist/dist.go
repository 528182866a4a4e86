// Package dist plans and runs data-parallel worker groups.
//
// Workers are goroutines sharing one process, coordinated through an
// in-process collective: every rank contributes its gradient vector to
// AllReduceMean and blocks until all ranks have arrived, then receives the
// element-wise mean. A failure on any rank aborts the whole group so no
// peer blocks forever on a collective that can never complete.
package dist

import (
	"context"
	"fmt"
	"sync"

	"github.com/cadenza-ml/cadenza/internal/errors"
)

// Supported device kinds.
const (
	DeviceCPU = "cpu"
	DeviceGPU = "gpu"
)

// Mode selects between a single in-process worker and a spawned group.
type Mode int

const (
	// ModeSingle runs the training body once, on rank 0 of a world of 1.
	ModeSingle Mode = iota
	// ModeMulti spawns WorkerCount ranks that synchronize per step.
	ModeMulti
)

func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeMulti:
		return "multi"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// LaunchPlan is the resolved launch decision for one run.
type LaunchPlan struct {
	Mode        Mode
	WorkerCount int
	Device      string
}

// PlanLaunch resolves the requested worker count and device into a launch
// plan. A group is spawned only when more than one worker is requested on
// an accelerator device; on CPU the request collapses to a single worker,
// matching the convention that CPU runs are never data-parallel.
func PlanLaunch(nprocs int, device string) (LaunchPlan, error) {
	if nprocs < 1 {
		return LaunchPlan{}, errors.NewLaunchError("worker count must be at least 1", errors.ErrBadPlan).
			WithWorkerCount(nprocs)
	}
	if device != DeviceCPU && device != DeviceGPU {
		return LaunchPlan{}, errors.NewLaunchError(
			fmt.Sprintf("unknown device %q (want %q or %q)", device, DeviceCPU, DeviceGPU),
			errors.ErrBadPlan)
	}

	if nprocs > 1 && device == DeviceGPU {
		return LaunchPlan{Mode: ModeMulti, WorkerCount: nprocs, Device: device}, nil
	}
	return LaunchPlan{Mode: ModeSingle, WorkerCount: 1, Device: device}, nil
}

// Worker is one rank's view of the group, passed to the training body.
type Worker struct {
	Rank      int
	WorldSize int

	group *group
}

// IsLead reports whether this worker is rank 0. Observability and
// checkpointing are lead-only concerns.
func (w *Worker) IsLead() bool {
	return w.Rank == 0
}

// AllReduceMean blocks until every rank in the group has contributed a
// vector of the same length, then returns the element-wise mean to all of
// them. With a world size of 1 it returns a copy of the input immediately.
func (w *Worker) AllReduceMean(values []float64) ([]float64, error) {
	if w.WorldSize == 1 {
		return append([]float64(nil), values...), nil
	}
	return w.group.allReduceMean(values)
}

// Run executes body once per rank of the plan and blocks until every rank
// returns. The first body error or panic aborts the group, unblocking any
// rank waiting inside a collective; canceling ctx does the same. The
// returned error joins every rank's failure.
func Run(ctx context.Context, plan LaunchPlan, body func(w *Worker) error) error {
	if plan.WorkerCount < 1 {
		return errors.NewLaunchError("launch plan has no workers", errors.ErrBadPlan).
			WithWorkerCount(plan.WorkerCount)
	}
	if plan.Mode == ModeSingle && plan.WorkerCount != 1 {
		return errors.NewLaunchError("single mode requires exactly one worker", errors.ErrBadPlan).
			WithWorkerCount(plan.WorkerCount)
	}

	g := newGroup(plan.WorkerCount)

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			g.abort(ctx.Err())
		case <-watchDone:
		}
	}()

	rankErrs := make([]error, plan.WorkerCount)
	var wg sync.WaitGroup
	for rank := 0; rank < plan.WorkerCount; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					err := errors.NewLaunchError(fmt.Sprintf("worker panicked: %v", r), errors.ErrWorkerStart).
						WithRank(rank).
						WithWorkerCount(plan.WorkerCount)
					rankErrs[rank] = err
					g.abort(err)
				}
			}()

			w := &Worker{Rank: rank, WorldSize: plan.WorkerCount, group: g}
			if err := body(w); err != nil {
				rankErrs[rank] = errors.NewLaunchError("worker failed", err).
					WithRank(rank).
					WithWorkerCount(plan.WorkerCount)
				g.abort(rankErrs[rank])
			}
		}(rank)
	}
	wg.Wait()

	var joined []error
	for _, err := range rankErrs {
		if err != nil {
			joined = append(joined, err)
		}
	}
	return errors.Join(joined...)
}
