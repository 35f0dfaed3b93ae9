package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel is used by internal bookkeeping tables e.g. jobs
type BaseModel struct {
	ID        uint      `json:"id,omitempty" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// RecordModel is used by every table exposed through the rest api. Ids are
// uuids so they can be handed to clients without leaking row counts.
type RecordModel struct {
	ID        string    `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`
}

func (model *RecordModel) BeforeCreate(tx *gorm.DB) error {
	if model.ID == "" {
		model.ID = uuid.NewString()
	}
	return nil
}

// Query selects rows by column equality. Columns must be validated by the
// caller, they are interpolated into the statement.
type Query struct {
	Where map[string]interface{}
	Order string
}

// ---------------------------------------------------------------------------------//
// Scopes
// --------------------------------------------------------------------------------//

func matching(query Query) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		for column, value := range query.Where {
			db = db.Where(fmt.Sprintf("%v = ?", column), value)
		}

		if strings.TrimSpace(query.Order) != "" {
			db = db.Order(query.Order)
		}

		return db
	}
}
