// Package pool bounds the number of conversions running at once.
package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Task is one conversion job. It must honor ctx cancellation.
type Task func(context.Context) error

type queuedTask struct {
	ctx  context.Context
	task Task
	done chan error
}

// Pool runs tasks on a fixed set of workers. Every task is request-coupled:
// the caller blocks until the task finishes or its context ends.
type Pool struct {
	workers     int
	queue       chan queuedTask
	workerWg    sync.WaitGroup
	quit        chan struct{}
	activeCount int32
	totalTasks  int64
	failedTasks int64
	avgExecTime int64 // nanoseconds
	started     bool
	mu          sync.RWMutex
}

// New creates a pool with the given worker count.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		workers: workers,
		queue:   make(chan queuedTask, workers*4),
		quit:    make(chan struct{}),
	}
}

// Start launches the workers. Starting an already started pool is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	for i := 0; i < p.workers; i++ {
		p.workerWg.Add(1)
		go p.worker()
	}
	p.started = true
}

func (p *Pool) worker() {
	defer p.workerWg.Done()
	for {
		select {
		case qt := <-p.queue:
			p.execute(qt)
		case <-p.quit:
			return
		}
	}
}

func (p *Pool) execute(qt queuedTask) {
	start := time.Now()
	atomic.AddInt32(&p.activeCount, 1)
	atomic.AddInt64(&p.totalTasks, 1)

	var err error
	if qt.ctx.Err() != nil {
		err = qt.ctx.Err()
	} else {
		err = qt.task(qt.ctx)
	}
	if err != nil {
		atomic.AddInt64(&p.failedTasks, 1)
	}

	elapsed := time.Since(start).Nanoseconds()
	oldAvg := atomic.LoadInt64(&p.avgExecTime)
	atomic.StoreInt64(&p.avgExecTime, (oldAvg*9+elapsed)/10)
	atomic.AddInt32(&p.activeCount, -1)

	select {
	case qt.done <- err:
	case <-qt.ctx.Done():
	}
}

// Run executes task on a worker and waits for it. When the queue is full the
// task runs inline on the calling goroutine instead of being rejected.
func (p *Pool) Run(ctx context.Context, task Task) error {
	p.mu.RLock()
	started := p.started
	p.mu.RUnlock()
	if !started {
		return task(ctx)
	}

	done := make(chan error, 1)
	select {
	case p.queue <- queuedTask{ctx: ctx, task: task, done: done}:
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		atomic.AddInt64(&p.totalTasks, 1)
		err := task(ctx)
		if err != nil {
			atomic.AddInt64(&p.failedTasks, 1)
		}
		return err
	}
}

// Stop shuts the pool down and waits for in-flight tasks.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	close(p.quit)
	p.workerWg.Wait()
	p.started = false
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Workers     int           `json:"workers"`
	Active      int32         `json:"active"`
	TotalTasks  int64         `json:"total_tasks"`
	FailedTasks int64         `json:"failed_tasks"`
	AvgExecTime time.Duration `json:"avg_exec_time_ns"`
	QueueSize   int           `json:"queue_size"`
}

// GetStats returns current counters.
func (p *Pool) GetStats() Stats {
	return Stats{
		Workers:     p.workers,
		Active:      atomic.LoadInt32(&p.activeCount),
		TotalTasks:  atomic.LoadInt64(&p.totalTasks),
		FailedTasks: atomic.LoadInt64(&p.failedTasks),
		AvgExecTime: time.Duration(atomic.LoadInt64(&p.avgExecTime)),
		QueueSize:   len(p.queue),
	}
}
