package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRenderer struct {
	delay     time.Duration
	fail      map[string]bool
	callCount atomic.Int32
}

func (f *fakeRenderer) task(name string) Task {
	return Task{
		Name: name,
		Run: func(ctx context.Context) (string, error) {
			f.callCount.Add(1)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(f.delay):
			}
			if f.fail[name] {
				return "", errors.New("simulated failure")
			}
			return "/tmp/" + name + ".png", nil
		},
	}
}

func (f *fakeRenderer) tasks(n int) []Task {
	tasks := make([]Task, n)
	for i := range tasks {
		tasks[i] = f.task(fmt.Sprintf("frame_%04d", i))
	}
	return tasks
}

func TestPool_BasicExecution(t *testing.T) {
	r := &fakeRenderer{delay: 10 * time.Millisecond}
	pool := New(Config{Workers: 2})

	tasks := r.tasks(5)
	results := pool.Run(context.Background(), tasks)

	if len(results) != len(tasks) {
		t.Fatalf("Expected %d results, got %d", len(tasks), len(results))
	}
	for i, res := range results {
		if res.Err != nil {
			t.Errorf("Unexpected error for %s: %v", res.Task.Name, res.Err)
		}
		if res.Index != i || res.Task.Name != tasks[i].Name {
			t.Errorf("result %d is for task %d (%s), want task order", i, res.Index, res.Task.Name)
		}
		if res.Path != "/tmp/"+tasks[i].Name+".png" {
			t.Errorf("unexpected path %q", res.Path)
		}
	}
}

func TestPool_Parallelism(t *testing.T) {
	r := &fakeRenderer{delay: 50 * time.Millisecond}
	pool := New(Config{Workers: 4})

	start := time.Now()
	pool.Run(context.Background(), r.tasks(4))
	elapsed := time.Since(start)

	// four 50ms tasks on four workers should take well under 200ms
	if elapsed > 150*time.Millisecond {
		t.Errorf("Expected parallel execution (<150ms), took %v", elapsed)
	}
}

func TestPool_ErrorHandling(t *testing.T) {
	r := &fakeRenderer{delay: time.Millisecond, fail: map[string]bool{"frame_0001": true}}
	pool := New(Config{Workers: 2})

	results := pool.Run(context.Background(), r.tasks(3))

	failed := Failed(results)
	if len(failed) != 1 {
		t.Fatalf("Expected 1 failure, got %d", len(failed))
	}
	if failed[0].Task.Name != "frame_0001" {
		t.Errorf("wrong task failed: %s", failed[0].Task.Name)
	}
}

func TestPool_Cancellation(t *testing.T) {
	r := &fakeRenderer{delay: 100 * time.Millisecond}
	pool := New(Config{Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	results := pool.Run(ctx, r.tasks(10))
	elapsed := time.Since(start)

	if elapsed > 300*time.Millisecond {
		t.Errorf("Expected early cancellation, took %v", elapsed)
	}
	if len(results) != 10 {
		t.Fatalf("Expected a result for every task, got %d", len(results))
	}
	var cancelled int
	for _, res := range results {
		if errors.Is(res.Err, context.Canceled) {
			cancelled++
		}
	}
	if cancelled == 0 {
		t.Error("Expected cancelled results")
	}
	if int(r.callCount.Load()) >= 10 {
		t.Errorf("Expected some tasks to be skipped, all %d ran", r.callCount.Load())
	}
}

func TestPool_ProgressCallback(t *testing.T) {
	r := &fakeRenderer{delay: 5 * time.Millisecond}

	var calls atomic.Int32
	var lastCompleted, lastTotal int
	pool := New(Config{
		Workers: 2,
		OnProgress: func(completed, total, failed int) {
			calls.Add(1)
			lastCompleted = completed
			lastTotal = total
		},
	})

	pool.Run(context.Background(), r.tasks(3))

	if calls.Load() != 3 {
		t.Errorf("Expected 3 progress callbacks, got %d", calls.Load())
	}
	if lastCompleted != 3 || lastTotal != 3 {
		t.Errorf("final progress = %d/%d, want 3/3", lastCompleted, lastTotal)
	}
}

func TestPool_EmptyTasks(t *testing.T) {
	pool := New(Config{Workers: 2})
	if results := pool.Run(context.Background(), nil); len(results) != 0 {
		t.Errorf("Expected 0 results for empty tasks, got %d", len(results))
	}
}
