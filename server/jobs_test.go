package server

import (
	"errors"
	"testing"
	"time"

	"github.com/Daskott/sentinel/server/models"
	"github.com/stretchr/testify/assert"
)

func createAlert(t *testing.T, recipient string, createdAt time.Time) models.SosAlert {
	alert := models.SosAlert{
		RecordModel:     models.RecordModel{CreatedAt: createdAt},
		SenderUserID:    "jane",
		SenderName:      "Jane",
		RecipientUserID: recipient,
		Location:        models.Location{Lat: 43.65, Lon: -79.38},
		Message:         "Help Location: 43.65, -79.38",
	}
	assert.Nil(t, models.CreateSosAlerts([]models.SosAlert{alert}))

	alerts, err := models.FindSosAlerts(recipient, models.Query{Where: map[string]interface{}{}})
	assert.Nil(t, err)
	return alerts[len(alerts)-1]
}

func TestPurgeSosAlerts(t *testing.T) {
	env := newTestEnv(t, Dependencies{})

	createAlert(t, "bob", time.Now().AddDate(0, 0, -40))
	recent := createAlert(t, "carl", time.Now())

	assert.Nil(t, env.server.purgeSosAlerts(nil))

	alerts, err := models.FindSosAlerts("jane", models.Query{Where: map[string]interface{}{}})
	assert.Nil(t, err)
	assert.Len(t, alerts, 1)
	assert.Equal(t, recent.ID, alerts[0].ID)

	// Retention of 0 keeps everything
	env.server.config.Alerts.RetentionDays = 0
	createAlert(t, "bob", time.Now().AddDate(-1, 0, 0))
	assert.Nil(t, env.server.purgeSosAlerts(nil))

	alerts, err = models.FindSosAlerts("jane", models.Query{Where: map[string]interface{}{}})
	assert.Nil(t, err)
	assert.Len(t, alerts, 2)
}

func TestSmsSosAlert(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	assert.Nil(t, models.CreateContacts([]models.Contact{
		{UserID: "jane", Name: "Bob", ContactUserID: "bob", PhoneNumber: "+15555550100"},
	}))

	alert := createAlert(t, "bob", time.Now())
	assert.Nil(t, env.server.smsSosAlert(map[string]interface{}{"alert_id": alert.ID}))

	messages := env.messenger.messages()
	assert.Len(t, messages, 1)
	assert.Equal(t, "+15555550100", messages[0].to)
	assert.Contains(t, messages[0].body, "https://www.google.com/maps?q=43.65,-79.38")

	// Unknown alerts & recipients without a number are skipped
	assert.Nil(t, env.server.smsSosAlert(map[string]interface{}{"alert_id": "missing"}))
	other := createAlert(t, "carl", time.Now())
	assert.Nil(t, env.server.smsSosAlert(map[string]interface{}{"alert_id": other.ID}))
	assert.Len(t, env.messenger.messages(), 1)

	// Send failures are returned so the job is retried
	env.messenger.err = errors.New("twilio is down")
	assert.NotNil(t, env.server.smsSosAlert(map[string]interface{}{"alert_id": alert.ID}))
}

func TestSmsBody(t *testing.T) {
	alert := models.SosAlert{
		SenderName: "Jane",
		Message:    "Help",
		Location:   models.Location{Lat: 1.5, Lon: 2},
		MediaURL:   "https://storage.example.com/clip.m4a",
	}

	assert.Equal(t,
		"SOS from Jane: Help\nhttps://www.google.com/maps?q=1.5,2\nRecording: https://storage.example.com/clip.m4a",
		smsBody(alert))
}

func TestEnqueuePeriodicJobs(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	assert.Nil(t, env.server.enqueuePeriodicJobs())
	assert.Nil(t, env.server.workerPool.RemovePeriodicJob(PURGE_SOS_ALERT_JOB))

	// backups are off in the test config
	assert.NotNil(t, env.server.workerPool.RemovePeriodicJob(BACKUP_SQLITE_JOB))
}
