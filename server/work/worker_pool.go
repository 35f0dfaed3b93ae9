package work

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Daskott/sentinel/server/models"
	"github.com/pkg/errors"
)

type workerPool struct {
	handlers    map[string]Handler
	workers     []*worker
	requeuers   []*requeuer
	concurrency int

	// wake nudges idle workers when a job lands in the queue
	wake chan struct{}

	mu      sync.Mutex
	started bool
}

func newWorkerPool(concurrency int) (*workerPool, error) {
	wp := workerPool{
		handlers:    make(map[string]Handler),
		concurrency: concurrency,
		wake:        make(chan struct{}, concurrency),
	}

	for i := 0; i < concurrency; i++ {
		wp.workers = append(wp.workers, newWorker([]int64{0, 10, 30, 60}, wp.wake))
	}

	for _, queue := range []string{models.IN_PROGRESS_JOB, models.SCHEDULED_JOB} {
		r, err := newRequeuer(queue, wp.notify)
		if err != nil {
			return nil, err
		}
		wp.requeuers = append(wp.requeuers, r)
	}

	return &wp, nil
}

// registerHandler binds a name to a job handler for all workers in pool
func (wp *workerPool) registerHandler(name string, handler Handler) error {
	if _, ok := wp.handlers[name]; ok {
		return ErrDuplicateHandler
	}
	wp.handlers[name] = handler

	for _, worker := range wp.workers {
		err := worker.registerHandler(name, handler)

		// Only panic if we get an error that is unexpected i.e !ErrDuplicateHandler
		if err != nil && !errors.Is(err, ErrDuplicateHandler) {
			logg.Panic(err)
		}
	}
	return nil
}

// enqueue adds a job to the queue(to be executed) by creating a DB record based on 'JobParams' provided
func (wp *workerPool) enqueue(job JobParams) error {
	err := wp.create(job, models.ENQUEUED_JOB, time.Now())
	if err != nil {
		return err
	}

	wp.notify()
	return nil
}

// enqueueIn adds a job to the 'scheduled' queue, it's moved to the main queue after 'delay'
func (wp *workerPool) enqueueIn(delay time.Duration, job JobParams) error {
	return wp.create(job, models.SCHEDULED_JOB, time.Now().Add(delay))
}

// start starts all workers in pool i.e the workes can start processing jobs
func (wp *workerPool) start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.started {
		return
	}
	wp.started = true

	for _, worker := range wp.workers {
		worker.start()
	}

	for _, requeuer := range wp.requeuers {
		requeuer.start()
	}
}

// stop stops all workers in pool i.e jobs will stop being processed
func (wp *workerPool) stop() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if !wp.started {
		return
	}

	wg := sync.WaitGroup{}
	for _, w := range wp.workers {
		wg.Add(1)
		go func(w *worker) {
			w.stop()
			wg.Done()
		}(w)
	}

	for _, r := range wp.requeuers {
		wg.Add(1)
		go func(r *requeuer) {
			r.stop()
			wg.Done()
		}(r)
	}

	wg.Wait()
	wp.started = false
}

func (wp *workerPool) create(job JobParams, status string, enqueueAt time.Time) error {
	if strings.TrimSpace(job.Name) == "" || strings.TrimSpace(job.Handler) == "" {
		return fmt.Errorf("both a name & handler is required for a job")
	}

	if _, ok := wp.handlers[job.Handler]; !ok {
		return fmt.Errorf("no handler registered for %v", job.Handler)
	}

	argsAsJson, err := json.Marshal(job.Args)
	if err != nil {
		return err
	}

	return models.CreateJob(job.Name, job.Handler, string(argsAsJson), status, job.Unique, enqueueAt)
}

func (wp *workerPool) notify() {
	select {
	case wp.wake <- struct{}{}:
	default:
	}
}
