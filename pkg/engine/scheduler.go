package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// UnitStatus is the outcome of running one graph unit.
type UnitStatus string

const (
	UnitSucceeded UnitStatus = "succeeded"
	UnitFailed    UnitStatus = "failed"
	UnitSkipped   UnitStatus = "skipped"
)

// UnitResult records how a unit ran.
type UnitResult struct {
	ID     string
	Status UnitStatus
	Err    error

	// BlockedBy names the failed or skipped dependency of a skipped unit.
	BlockedBy string

	Duration time.Duration
}

// UnitFunc does the work of one unit.
type UnitFunc func(ctx context.Context, node *GraphNode) error

// ScheduleOptions tunes a single Run.
type ScheduleOptions struct {
	// MaxParallel caps the workers of this run below the scheduler limit.
	MaxParallel int

	// FailFast stops after the first level with a failed unit.
	FailFast bool

	// OnResult is called once per unit as soon as its result is known.
	// Calls may come from several goroutines.
	OnResult func(*UnitResult)
}

// ParallelScheduler runs the units of a Graph level by level. Units of
// one level run concurrently. A unit whose dependency did not succeed is
// skipped.
type ParallelScheduler struct {
	// maxParallel is the maximum number of concurrent workers
	maxParallel int

	mu         sync.RWMutex
	unitStatus map[string]UnitStatus
}

// NewParallelScheduler creates a new parallel scheduler.
func NewParallelScheduler(maxParallel int) *ParallelScheduler {
	if maxParallel <= 0 {
		maxParallel = 10
	}
	return &ParallelScheduler{maxParallel: maxParallel}
}

// Run calls fn for every unit of graph. Results are returned in level
// order, sorted by ID within a level. The error is non-nil only when ctx
// ends or FailFast stops the run; unit failures are in the results.
func (s *ParallelScheduler) Run(
	ctx context.Context,
	graph *Graph,
	fn UnitFunc,
	opts ScheduleOptions,
) ([]*UnitResult, error) {
	if graph == nil {
		return nil, NewInvariantError("graph is nil", nil).WithCode(ErrCodeValidation)
	}

	s.mu.Lock()
	s.unitStatus = make(map[string]UnitStatus, len(graph.Nodes))
	s.mu.Unlock()

	results := make([]*UnitResult, 0, len(graph.Nodes))
	for level, ids := range graph.Levels {
		if err := ctx.Err(); err != nil {
			return results, NewInvariantError("run cancelled", err).WithCode(ErrCodeCancelled)
		}

		levelResults := s.runLevel(ctx, graph, ids, fn, opts)
		results = append(results, levelResults...)

		if opts.FailFast {
			for _, r := range levelResults {
				if r.Status == UnitFailed {
					return results, fmt.Errorf("level %d failed: %w", level, r.Err)
				}
			}
		}
	}
	return results, nil
}

// runLevel runs the units of one level with a worker pool.
func (s *ParallelScheduler) runLevel(
	ctx context.Context,
	graph *Graph,
	ids []string,
	fn UnitFunc,
	opts ScheduleOptions,
) []*UnitResult {
	workerCount := s.maxParallel
	if opts.MaxParallel > 0 && opts.MaxParallel < workerCount {
		workerCount = opts.MaxParallel
	}
	if len(ids) < workerCount {
		workerCount = len(ids)
	}

	results := make([]*UnitResult, len(ids))
	workQueue := make(chan int, len(ids))
	for i := range ids {
		workQueue <- i
	}
	close(workQueue)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range workQueue {
				node := graph.Nodes[ids[idx]]

				var result *UnitResult
				if blocker := s.blockingDependency(node); blocker != "" {
					result = &UnitResult{ID: node.ID, Status: UnitSkipped, BlockedBy: blocker}
				} else {
					result = s.runUnit(ctx, node, fn)
				}

				s.updateUnitStatus(node.ID, result.Status)
				results[idx] = result
				if opts.OnResult != nil {
					opts.OnResult(result)
				}
			}
		}()
	}
	wg.Wait()

	return results
}

func (s *ParallelScheduler) runUnit(ctx context.Context, node *GraphNode, fn UnitFunc) *UnitResult {
	start := time.Now()
	err := fn(ctx, node)

	result := &UnitResult{ID: node.ID, Status: UnitSucceeded, Duration: time.Since(start)}
	if err != nil {
		result.Status = UnitFailed
		result.Err = err
	}
	return result
}

// blockingDependency returns the first dependency of node that did not
// succeed, or "" when all of them did.
func (s *ParallelScheduler) blockingDependency(node *GraphNode) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, dep := range node.Dependencies {
		if s.unitStatus[dep] != UnitSucceeded {
			return dep
		}
	}
	return ""
}

func (s *ParallelScheduler) updateUnitStatus(id string, status UnitStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unitStatus[id] = status
}

// Summary counts results by status.
func Summary(results []*UnitResult) map[UnitStatus]int {
	counts := make(map[UnitStatus]int, 3)
	for _, r := range results {
		counts[r.Status]++
	}
	return counts
}
