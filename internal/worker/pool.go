// Package worker runs independent render jobs (tiles, animation frames) in
// parallel. Each job samples its own grid; a noise.Field is shared read-only.
package worker

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Task is one unit of work. Run returns the path (or other identifier) of
// what it produced.
type Task struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}

// Result is the outcome of a Task.
type Result struct {
	Task    Task
	Index   int
	Path    string
	Err     error
	Elapsed time.Duration
}

// ProgressFunc is called after each task completes.
type ProgressFunc func(completed, total, failed int)

// Config configures the worker pool.
type Config struct {
	Workers    int
	OnProgress ProgressFunc
	Logger     *slog.Logger
}

// Pool runs tasks on a fixed number of goroutines.
type Pool struct {
	workers    int
	onProgress ProgressFunc
	logger     *slog.Logger
}

type indexedTask struct {
	index int
	task  Task
}

// New creates a pool. Workers defaults to 1.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		workers:    workers,
		onProgress: cfg.OnProgress,
		logger:     cfg.Logger,
	}
}

func (p *Pool) log() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}
	return slog.Default()
}

// Run executes all tasks and returns one result per task in task order. It
// blocks until every task has finished. Tasks not started before ctx is
// cancelled report ctx.Err().
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	taskCh := make(chan indexedTask)
	resultCh := make(chan Result, p.workers)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, taskCh, resultCh)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(taskCh)
		for i, task := range tasks {
			select {
			case taskCh <- indexedTask{index: i, task: task}:
			case <-ctx.Done():
				for j := i; j < len(tasks); j++ {
					resultCh <- Result{Task: tasks[j], Index: j, Err: ctx.Err()}
				}
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]Result, 0, len(tasks))
	completed, failed := 0, 0
	for result := range resultCh {
		results = append(results, result)
		completed++
		if result.Err != nil {
			failed++
			p.log().Debug("task failed", "task", result.Task.Name, "error", result.Err)
		}
		if p.onProgress != nil {
			p.onProgress(completed, len(tasks), failed)
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results
}

func (p *Pool) worker(ctx context.Context, tasks <-chan indexedTask, results chan<- Result) {
	for it := range tasks {
		if err := ctx.Err(); err != nil {
			results <- Result{Task: it.task, Index: it.index, Err: err}
			continue
		}

		start := time.Now()
		path, err := it.task.Run(ctx)
		results <- Result{
			Task:    it.task,
			Index:   it.index,
			Path:    path,
			Err:     err,
			Elapsed: time.Since(start),
		}
	}
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
