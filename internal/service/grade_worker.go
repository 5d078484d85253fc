package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/metastudy/metastudy-api/internal/observability"
)

const gradeQueueDepth = 64

// GradeWorker executes auto-grade jobs off the request path. The HTTP
// response returns as soon as a job is queued; each job gets its own
// timeout and a single retry before being dropped.
type GradeWorker struct {
	grader  *AutoGrader
	jobs    chan uint
	timeout time.Duration
	workers int
	logger  zerolog.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewGradeWorker constructs the background grading queue.
func NewGradeWorker(grader *AutoGrader, workers int, timeout time.Duration, logger zerolog.Logger) *GradeWorker {
	if workers <= 0 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &GradeWorker{
		grader:  grader,
		jobs:    make(chan uint, gradeQueueDepth),
		timeout: timeout,
		workers: workers,
		logger:  logger.With().Str("component", "grade_worker").Logger(),
		stopped: make(chan struct{}),
	}
}

// Start launches the worker goroutines.
func (w *GradeWorker) Start() {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run()
	}
}

// Enqueue queues a submission for grading. It never blocks a request: when
// the queue is full the job is dropped and counted, which surfaces in the
// job metrics rather than in a hung upload. The jobs channel is never
// closed, so a send racing Shutdown lands in the queue and is drained.
func (w *GradeWorker) Enqueue(submissionID uint) {
	select {
	case <-w.stopped:
		observability.AutoGradeJobs().WithLabelValues("rejected").Inc()
		return
	default:
	}

	select {
	case w.jobs <- submissionID:
		observability.AutoGradeJobs().WithLabelValues("queued").Inc()
	default:
		w.logger.Error().Uint("submission_id", submissionID).Msg("grade queue full, job dropped")
		observability.AutoGradeJobs().WithLabelValues("dropped").Inc()
	}
}

// Shutdown stops intake and waits for in-flight jobs, up to ctx deadline.
func (w *GradeWorker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() {
		close(w.stopped)
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *GradeWorker) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopped:
			w.drain()
			return
		case submissionID := <-w.jobs:
			w.process(submissionID)
		}
	}
}

// drain finishes jobs that were queued before intake stopped.
func (w *GradeWorker) drain() {
	for {
		select {
		case submissionID := <-w.jobs:
			w.process(submissionID)
		default:
			return
		}
	}
}

func (w *GradeWorker) process(submissionID uint) {
	const attempts = 2

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = w.gradeOnce(submissionID)
		if err == nil {
			observability.AutoGradeJobs().WithLabelValues("completed").Inc()
			return
		}

		w.logger.Warn().
			Err(err).
			Uint("submission_id", submissionID).
			Int("attempt", attempt).
			Msg("auto-grade attempt failed")
	}

	observability.AutoGradeJobs().WithLabelValues("failed").Inc()
	w.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("auto-grade job exhausted retries")
}

func (w *GradeWorker) gradeOnce(submissionID uint) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	return w.grader.Grade(ctx, submissionID)
}
