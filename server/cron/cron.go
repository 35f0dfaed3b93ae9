package cron

import (
	"time"

	"github.com/Daskott/sentinel/logger"
	"github.com/go-co-op/gocron"
)

var logg = logger.Named("cron")

// NewCronScheduler returns a scheduler running in 'timeZone', falling back
// to UTC when the zone is unknown. Tags are unique so a periodic job can be
// looked up & removed by name.
func NewCronScheduler(timeZone string) *gocron.Scheduler {
	location, err := time.LoadLocation(timeZone)
	if err != nil {
		logg.Warnf("unknown time zone %q, using UTC: %v", timeZone, err)
		location = time.UTC
	}

	scheduler := gocron.NewScheduler(location)
	scheduler.TagsUnique()

	return scheduler
}
