package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserSettings struct {
	UserID            string    `json:"user_id" gorm:"primarykey"`
	PrewrittenMessage string    `json:"prewritten_message"`
	CreatedAt         time.Time `json:"-"`
	UpdatedAt         time.Time `json:"-"`
}

var UserSettingsColumns = map[string]bool{
	"user_id":            true,
	"prewritten_message": true,
}

func FindUserSettings(query Query) ([]UserSettings, error) {
	settings := []UserSettings{}
	err := db.Scopes(matching(query)).Find(&settings).Error
	if err != nil {
		return nil, err
	}

	return settings, nil
}

// UpsertUserSettings inserts or replaces the settings row keyed by user_id.
// 'created' reports whether the row did not exist before.
func UpsertUserSettings(settings *UserSettings) (created bool, err error) {
	err = db.Transaction(func(tx *gorm.DB) error {
		err := tx.Select("user_id").First(&UserSettings{}, "user_id = ?", settings.UserID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		created = errors.Is(err, gorm.ErrRecordNotFound)

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"prewritten_message", "updated_at"}),
		}).Create(settings).Error
	})

	return created, err
}
