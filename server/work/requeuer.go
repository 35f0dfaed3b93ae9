package work

import (
	"errors"
	"fmt"
	"time"

	"github.com/Daskott/sentinel/colors"
	"github.com/Daskott/sentinel/server/models"
	"gorm.io/gorm"
)

// STUCK_AFTER_MINUTES is how long a job may stay in-progress before it's
// considered abandoned and put back in the queue
const STUCK_AFTER_MINUTES = 10

type requeuer struct {
	fromQueue string
	stopChan  chan struct{}
	onRequeue func()
}

var supportedQueues = map[string]bool{models.IN_PROGRESS_JOB: true, models.SCHEDULED_JOB: true}

func newRequeuer(fromQueue string, onRequeue func()) (*requeuer, error) {
	if !supportedQueues[fromQueue] {
		return nil, fmt.Errorf("%v is not a supported queue, must be in %v", fromQueue, supportedQueues)
	}

	if onRequeue == nil {
		onRequeue = func() {}
	}

	return &requeuer{
		fromQueue: fromQueue,
		stopChan:  make(chan struct{}),
		onRequeue: onRequeue,
	}, nil
}

// start starts the requeuer loop that moves jobs from 'fromQueue' back to
// 'enqueued', i.e stuck in-progress jobs & scheduled jobs that are due
func (r *requeuer) start() {
	go r.loop()
}

func (r *requeuer) stop() {
	r.stopChan <- struct{}{}
}

func (r *requeuer) loop() {
	// At some point we may need an expnential back-off,
	// but for now keep it simple
	sleepBackOff := 1 * time.Second
	rateLimiter := time.NewTicker(DefaultTickerDuration)
	defer rateLimiter.Stop()

	logg.Infof("Starting %s job requeuer", r.fromQueue)
	for {
		select {
		case <-r.stopChan:
			logg.Infof("Stopping %s job requeuer", r.fromQueue)
			return
		case <-rateLimiter.C:
			job, err := r.nextJob()

			if errors.Is(err, gorm.ErrRecordNotFound) {
				rateLimiter.Reset(sleepBackOff)
				continue
			}

			if err != nil {
				r.logError(err)
				rateLimiter.Reset(TickerDurationOnError)
				continue
			}

			r.requeue(job)
			rateLimiter.Reset(DefaultTickerDuration)
		}
	}
}

func (r *requeuer) nextJob() (*models.Job, error) {
	if r.fromQueue == models.IN_PROGRESS_JOB {
		return models.LastJobLastUpdated(STUCK_AFTER_MINUTES, models.IN_PROGRESS_JOB)
	}
	return models.FirstScheduledJobToBeQueued()
}

func (r *requeuer) requeue(job *models.Job) {
	jobStatus, err := models.FindJobStatus(models.ENQUEUED_JOB)
	if err != nil {
		r.logError(err)
		return
	}

	err = job.Update(map[string]interface{}{
		"claimed":       false,
		"job_status_id": jobStatus.ID,
		"enqueued_at":   time.Now(),
	})
	if err != nil {
		r.logError(err)
		return
	}

	r.logInfof("job with id=%v requeued", job.ID)
	r.onRequeue()
}

func (r *requeuer) logInfof(template string, args ...interface{}) {
	prefix := colors.Yellow(fmt.Sprintf("[%s job requeuer] ", r.fromQueue))
	logg.Infof(prefix+template, args...)
}

func (r *requeuer) logError(err error) {
	prefix := colors.Red(fmt.Sprintf("[%s job requeuer] ", r.fromQueue))
	logg.Errorf("%s%v", prefix, err)
}
