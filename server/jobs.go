package server

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/client/whatsapp"
	"github.com/Daskott/sentinel/server/gstorage"
	"github.com/Daskott/sentinel/server/metrics"
	"github.com/Daskott/sentinel/server/models"
	"github.com/Daskott/sentinel/server/work"
	"github.com/Daskott/sentinel/utils"
)

const (
	SMS_SOS_ALERT_JOB   = "smsSosAlert"
	BACKUP_SQLITE_JOB   = "backupSqliteDb"
	PURGE_SOS_ALERT_JOB = "purgeSosAlerts"

	DEFAULT_PURGE_SCHEDULE = "0 3 * * *"
)

// smsSosAlert texts the recipient of an alert, when a phone number is known for them
func (s *Server) smsSosAlert(args map[string]interface{}) error {
	alertID := fmt.Sprint(args["alert_id"])

	alerts, err := models.FindSosAlertsByID([]string{alertID})
	if err != nil {
		return err
	}

	if len(alerts) == 0 {
		logg.Warnf("sos alert %v no longer exists, skipping sms", alertID)
		return nil
	}
	alert := alerts[0]

	phoneNumber, err := models.PhoneNumberFor(alert.SenderUserID, alert.RecipientUserID)
	if err != nil {
		return err
	}

	if phoneNumber == "" {
		logg.Infof("no phone number for recipient %v of alert %v, skipping sms", alert.RecipientUserID, alert.ID)
		return nil
	}

	err = s.messenger.SendMessage(phoneNumber, smsBody(alert))
	if err != nil {
		metrics.SmsSent.WithLabelValues("failed").Inc()
		return err
	}

	metrics.SmsSent.WithLabelValues("sent").Inc()
	return nil
}

// backupSqliteDb uploads the db file to the configured bucket
func (s *Server) backupSqliteDb(map[string]interface{}) error {
	storageConfig := s.config.Google.Storage
	if s.storage == nil || !storageConfig.BackupEnabled() {
		return nil
	}

	return s.storage.UploadFile(storageConfig.Bucket, storageConfig.Prefix, models.DbFilePath())
}

// restoreSqliteDb pulls the last backup down before the db is opened, when no local db exists yet
func (s *Server) restoreSqliteDb(dbFilePath string) error {
	storageConfig := s.config.Google.Storage
	if s.storage == nil || !storageConfig.BackupEnabled() || utils.FileExist(dbFilePath) {
		return nil
	}

	err := s.storage.DownloadFile(storageConfig.Bucket, gstorage.ObjectName(storageConfig.Prefix, models.DB_NAME), dbFilePath)
	if errors.Is(err, gstorage.ErrObjectNotExist) {
		logg.Info("No sqlite backup found, starting with an empty db")
		os.Remove(dbFilePath)
		return nil
	}

	return err
}

// purgeSosAlerts removes alerts older than the retention period
func (s *Server) purgeSosAlerts(map[string]interface{}) error {
	retentionDays := s.config.Alerts.RetentionDays
	if retentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	count, err := models.DeleteSosAlertsCreatedBefore(cutoff)
	if err != nil {
		return err
	}

	logg.Infof("Purged %v sos alert(s) created before %v", count, cutoff.Format(time.RFC3339))
	return nil
}

func (s *Server) registerJobHandlers() error {
	handlers := map[string]work.Handler{
		SMS_SOS_ALERT_JOB:   s.smsSosAlert,
		BACKUP_SQLITE_JOB:   s.backupSqliteDb,
		PURGE_SOS_ALERT_JOB: s.purgeSosAlerts,
	}

	for name, handler := range handlers {
		if err := s.workerPool.Register(name, handler); err != nil {
			return err
		}
	}

	return nil
}

func (s *Server) enqueuePeriodicJobs() error {
	storageConfig := s.config.Google.Storage
	if s.storage != nil && storageConfig.BackupEnabled() {
		err := s.workerPool.PeriodicallyPerform(storageConfig.SqliteBackupSchedule, work.JobParams{
			Name:    BACKUP_SQLITE_JOB,
			Handler: BACKUP_SQLITE_JOB,
			Unique:  true,
			Args:    map[string]interface{}{},
		})
		if err != nil {
			return err
		}
	}

	if s.config.Alerts.RetentionDays > 0 {
		schedule := s.config.Alerts.PurgeSchedule
		if schedule == "" {
			schedule = DEFAULT_PURGE_SCHEDULE
		}

		err := s.workerPool.PeriodicallyPerform(schedule, work.JobParams{
			Name:    PURGE_SOS_ALERT_JOB,
			Handler: PURGE_SOS_ALERT_JOB,
			Unique:  true,
			Args:    map[string]interface{}{},
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func smsBody(alert models.SosAlert) string {
	body := fmt.Sprintf("SOS from %v: %v\n%v",
		alert.SenderName,
		alert.Message,
		whatsapp.MapsURL(backend.Location{Lat: alert.Location.Lat, Lon: alert.Location.Lon}),
	)

	if alert.MediaURL != "" {
		body += "\nRecording: " + alert.MediaURL
	}

	return body
}
