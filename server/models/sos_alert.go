package models

import (
	"time"

	"gorm.io/gorm"
)

type Location struct {
	Lat float64 `json:"lat" validate:"min=-90,max=90"`
	Lon float64 `json:"lon" validate:"min=-180,max=180"`
}

// SosAlert is immutable once created
type SosAlert struct {
	RecordModel
	SenderUserID    string   `json:"sender_user_id" gorm:"not null;index"`
	SenderName      string   `json:"sender_name"`
	RecipientUserID string   `json:"recipient_user_id" validate:"required" gorm:"not null;index"`
	Location        Location `json:"location" gorm:"embedded;embeddedPrefix:location_"`
	Message         string   `json:"message" validate:"required"`
	MediaURL        string   `json:"media_url,omitempty"`
}

var SosAlertColumns = map[string]bool{
	"id":                true,
	"sender_user_id":    true,
	"sender_name":       true,
	"recipient_user_id": true,
	"message":           true,
	"media_url":         true,
	"created_at":        true,
}

// CreateSosAlerts writes the whole batch in one transaction
func CreateSosAlerts(alerts []SosAlert) error {
	return db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&alerts).Error
	})
}

// FindSosAlerts returns alerts matching 'query' that 'userID' either sent or received
func FindSosAlerts(userID string, query Query) ([]SosAlert, error) {
	alerts := []SosAlert{}
	err := db.Where("(recipient_user_id = ? OR sender_user_id = ?)", userID, userID).
		Scopes(matching(query)).Limit(500).Find(&alerts).Error
	if err != nil {
		return nil, err
	}

	return alerts, nil
}

func FindSosAlertsByID(ids []string) ([]SosAlert, error) {
	alerts := []SosAlert{}
	err := db.Where("id IN ?", ids).Find(&alerts).Error
	if err != nil {
		return nil, err
	}

	return alerts, nil
}

// DeleteSosAlertsCreatedBefore purges alerts older than 'cutoff' & returns how many were removed
func DeleteSosAlertsCreatedBefore(cutoff time.Time) (int64, error) {
	res := db.Where("created_at < ?", cutoff).Delete(&SosAlert{})
	return res.RowsAffected, res.Error
}
