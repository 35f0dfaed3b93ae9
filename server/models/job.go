package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const JOIN_JOB_STATUS_QUERY = "INNER JOIN job_statuses ON job_statuses.id = jobs.job_status_id AND job_statuses.name = ?"

var ErrDuplicateJob = errors.New("job with the given name already exists in queue")

type Job struct {
	BaseModel
	Fails       int        `json:"fails"`
	Name        string     `json:"name"`
	Handler     string     `json:"handler"`
	Args        string     `json:"args"`
	LastError   string     `json:"last_error"`
	Claimed     bool       `json:"claimed" gorm:"default:false"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	JobStatusID uint       `json:"job_status_id"`
	JobStatus   *JobStatus `json:"status"`
}

// MarkAsClaimed moves the job to 'in-progress' if no other worker claimed it first
func (job *Job) MarkAsClaimed() (bool, error) {
	inProgressStatus, err := FindJobStatus(IN_PROGRESS_JOB)
	if err != nil {
		return false, err
	}

	res := db.Model(&Job{}).Where("id = ? AND claimed = ?", job.ID, false).Updates(map[string]interface{}{
		"claimed":       true,
		"job_status_id": inProgressStatus.ID,
	})

	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

func (job *Job) Update(data map[string]interface{}) error {
	return db.Model(job).Updates(data).Error
}

// CreateJob adds a job in 'status' (enqueued or scheduled). When 'unique' is set
// and a job with the same name is already waiting or running, ErrDuplicateJob is returned.
func CreateJob(name, handler, args, status string, unique bool, enqueueAt time.Time) error {
	jobStatus, err := FindJobStatus(status)
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if unique {
			queuedStatusIDs := []uint{}
			err := tx.Model(&JobStatus{}).
				Where("name IN ?", []string{ENQUEUED_JOB, IN_PROGRESS_JOB, SCHEDULED_JOB}).
				Pluck("id", &queuedStatusIDs).Error
			if err != nil {
				return err
			}

			var count int64
			err = tx.Model(&Job{}).Where("name = ? AND job_status_id IN ?", name, queuedStatusIDs).Count(&count).Error
			if err != nil {
				return err
			}

			if count > 0 {
				return ErrDuplicateJob
			}
		}

		return tx.Create(&Job{
			Name:        name,
			Handler:     handler,
			Args:        args,
			EnqueuedAt:  enqueueAt,
			JobStatusID: jobStatus.ID,
		}).Error
	})
}

func LastJob(status string, claimed bool) (*Job, error) {
	job := Job{}
	err := db.Joins(JOIN_JOB_STATUS_QUERY+" AND claimed = ?", status, claimed).Last(&job).Error
	if err != nil {
		return nil, err
	}

	return &job, nil
}

func FindJob(id uint) (*Job, error) {
	job := Job{}
	err := db.Preload("JobStatus").First(&job, id).Error
	if err != nil {
		return nil, err
	}

	return &job, nil
}

// FirstScheduledJobToBeQueued returns the oldest scheduled job whose time has come
func FirstScheduledJobToBeQueued() (*Job, error) {
	job := Job{}
	err := db.Preload("JobStatus").Joins(JOIN_JOB_STATUS_QUERY, SCHEDULED_JOB).
		Where("enqueued_at <= ?", time.Now()).Order("enqueued_at asc").First(&job).Error
	if err != nil {
		return nil, err
	}

	return &job, nil
}

func CurrentJobsStats() (*JobsStats, error) {
	stats := JobsStats{}
	counts := map[string]*int64{
		ENQUEUED_JOB:    &stats.EnqueuedJobCount,
		IN_PROGRESS_JOB: &stats.InProgressJobCount,
		SUCCESSFUL_JOB:  &stats.SuccessfulJobCount,
		DEAD_JOB:        &stats.DeadJobCount,
		SCHEDULED_JOB:   &stats.ScheduledJobCount,
	}

	for status, count := range counts {
		err := db.Joins(JOIN_JOB_STATUS_QUERY, status).Model(&Job{}).Count(count).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	return &stats, nil
}

// LastJobLastUpdated returns the last job which was last updated 'arg1' minutes ago
// and is of 'arg2' status.
// i.e last record where job.updated_at + 'arg1' minutes <= 'now'.
//
// WARNING: THIS QUERY IS UNIQE TO SQLITE, REMEMBER TO UPDATE IT IF/WHEN
// OTHER SQL DATABASES ARE SUPPORTED
func LastJobLastUpdated(minutesAgo uint, status string) (*Job, error) {
	jobStatus, err := FindJobStatus(status)
	if err != nil {
		return nil, err
	}

	job := Job{}
	err = db.Where(
		fmt.Sprintf("job_status_id = ? AND datetime(updated_at, '+%v minute') <= datetime('now')", minutesAgo),
		jobStatus.ID,
	).Last(&job).Error
	if err != nil {
		return nil, err
	}

	return &job, nil
}
