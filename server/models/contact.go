package models

type Contact struct {
	RecordModel
	UserID        string `json:"user_id" gorm:"not null;index"`
	Name          string `json:"name" validate:"required"`
	ContactUserID string `json:"contact_user_id" validate:"required" gorm:"not null;index"`
	PhoneNumber   string `json:"phone_number,omitempty" validate:"omitempty,e164"`
}

var ContactColumns = map[string]bool{
	"id":              true,
	"user_id":         true,
	"name":            true,
	"contact_user_id": true,
	"phone_number":    true,
	"created_at":      true,
}

func CreateContacts(contacts []Contact) error {
	return db.Create(&contacts).Error
}

func FindContacts(query Query) ([]Contact, error) {
	contacts := []Contact{}
	err := db.Scopes(matching(query)).Find(&contacts).Error
	if err != nil {
		return nil, err
	}

	return contacts, nil
}

// DeleteContacts removes every contact matching 'query' & returns the removed rows
func DeleteContacts(query Query) ([]Contact, error) {
	contacts, err := FindContacts(Query{Where: query.Where})
	if err != nil || len(contacts) == 0 {
		return contacts, err
	}

	ids := []string{}
	for _, contact := range contacts {
		ids = append(ids, contact.ID)
	}

	return contacts, db.Where("id IN ?", ids).Delete(&Contact{}).Error
}

// PhoneNumberFor returns the number 'userID' saved for their contact 'contactUserID'
// falling back to the number on the contact's own account
func PhoneNumberFor(userID, contactUserID string) (string, error) {
	contact := Contact{}
	err := db.Where("user_id = ? AND contact_user_id = ? AND phone_number <> ''", userID, contactUserID).
		Limit(1).Find(&contact).Error
	if err != nil {
		return "", err
	}

	if contact.PhoneNumber != "" {
		return contact.PhoneNumber, nil
	}

	user := User{}
	err = db.Select("phone_number").Where("id = ?", contactUserID).Limit(1).Find(&user).Error
	if err != nil {
		return "", err
	}

	return user.PhoneNumber, nil
}
