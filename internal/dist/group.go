package dist

import (
	"fmt"
	"sync"

	"github.com/cadenza-ml/cadenza/internal/errors"
)

// group is the shared collective state behind one worker group. It is a
// reusable barrier: each round accumulates one vector per rank, and the
// final arrival of a round computes the mean, publishes it, and wakes the
// waiters. A round's result cannot be overwritten until every rank has
// both read it and entered the next round.
type group struct {
	worldSize int

	mu      sync.Mutex
	cond    *sync.Cond
	sum     []float64
	arrived int
	round   int
	result  []float64

	aborted  bool
	abortErr error
}

func newGroup(worldSize int) *group {
	g := &group{worldSize: worldSize}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// abort marks the group failed and wakes every rank blocked in a
// collective. The first abort wins; later calls are ignored.
func (g *group) abort(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.aborted {
		return
	}
	g.aborted = true
	g.abortErr = err
	g.cond.Broadcast()
}

func (g *group) allReduceMean(values []float64) ([]float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.aborted {
		return nil, errors.Wrap(g.abortErr, "collective unavailable")
	}

	if g.sum == nil {
		g.sum = make([]float64, len(values))
	}
	if len(values) != len(g.sum) {
		err := errors.NewLaunchError(
			fmt.Sprintf("collective size mismatch: got %d values, peers sent %d", len(values), len(g.sum)),
			errors.ErrGroupAborted)
		g.aborted = true
		g.abortErr = err
		g.cond.Broadcast()
		return nil, err
	}

	for i, v := range values {
		g.sum[i] += v
	}
	g.arrived++
	myRound := g.round

	if g.arrived == g.worldSize {
		mean := make([]float64, len(g.sum))
		inv := 1.0 / float64(g.worldSize)
		for i, s := range g.sum {
			mean[i] = s * inv
		}
		g.result = mean
		g.sum = nil
		g.arrived = 0
		g.round++
		g.cond.Broadcast()
	} else {
		for g.round == myRound && !g.aborted {
			g.cond.Wait()
		}
		if g.aborted {
			return nil, errors.Wrap(g.abortErr, "collective aborted")
		}
	}

	return append([]float64(nil), g.result...), nil
}
