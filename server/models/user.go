package models

import (
	"errors"
	"fmt"

	"github.com/Daskott/sentinel/server/auth"
	"gorm.io/gorm"
)

var allFieldsExceptPassword = []string{"id",
	"name",
	"email",
	"phone_number",
	"created_at",
	"updated_at",
}

type User struct {
	RecordModel
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"required,email" gorm:"not null;unique"`
	PhoneNumber string `json:"phone_number,omitempty" validate:"omitempty,e164"`
	Password    string `json:"password,omitempty" validate:"required,password" gorm:"not null"`
}

func CreateUser(user *User) error {
	passwordHash, err := auth.HashPassword(user.Password)
	if err != nil {
		return err
	}
	user.Password = passwordHash

	return db.Create(user).Error
}

func FindUserBy(field string, value interface{}) (*User, error) {
	user := User{}
	err := db.Select(allFieldsExceptPassword).First(&user, fmt.Sprintf("%v = ?", field), value).Error
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// FindUserWithPassword is only used to verify credentials
func FindUserWithPassword(email string) (*User, error) {
	user := User{}
	err := db.First(&user, "email = ?", email).Error
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func UserExists(email string) (bool, error) {
	err := db.Select("id").First(&User{}, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}
