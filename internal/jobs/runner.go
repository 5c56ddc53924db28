package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// Job is a maintenance task run on a fixed interval.
type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// Runner executes registered jobs on their intervals until stopped.
type Runner struct {
	jobs    []Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewRunner creates an empty job runner.
func NewRunner() *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{ctx: ctx, cancel: cancel}
}

// Register adds a job. Must be called before Start.
func (r *Runner) Register(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	log.Printf("✅ [JOBS] Registered job: %s (every %v)", job.Name(), job.Interval())
}

// Start launches one ticker loop per registered job.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}
	r.running = true

	for _, job := range r.jobs {
		r.wg.Add(1)
		go r.loop(job)
	}
	log.Printf("🚀 [JOBS] Runner started with %d jobs", len(r.jobs))
}

func (r *Runner) loop(job Job) {
	defer r.wg.Done()

	ticker := time.NewTicker(job.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := job.Run(r.ctx); err != nil {
				log.Printf("❌ [JOBS] Job '%s' failed: %v", job.Name(), err)
				continue
			}
			log.Printf("✅ [JOBS] Job '%s' completed in %v", job.Name(), time.Since(start))
		}
	}
}

// RunNow runs a job by name immediately, outside its schedule.
func (r *Runner) RunNow(name string) error {
	r.mu.Lock()
	var target Job
	for _, job := range r.jobs {
		if job.Name() == name {
			target = job
			break
		}
	}
	r.mu.Unlock()

	if target == nil {
		log.Printf("⚠️ [JOBS] Job '%s' not found", name)
		return nil
	}
	return target.Run(r.ctx)
}

// Stop cancels all job loops and waits for them to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	log.Println("🛑 [JOBS] Runner stopped")
}
