package backend

import "time"

const (
	ContactsTable     = "contacts"
	UserSettingsTable = "user_settings"
	SosAlertsTable    = "sos_alerts"

	GenerateSosMessageFunction = "generate-sos-message"
	GenerateSafeRouteFunction  = "generate-safe-route"
)

type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type Contact struct {
	ID            string     `json:"id,omitempty"`
	UserID        string     `json:"user_id,omitempty"`
	Name          string     `json:"name" validate:"required"`
	ContactUserID string     `json:"contact_user_id" validate:"required"`
	PhoneNumber   string     `json:"phone_number,omitempty" validate:"omitempty,e164"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}

type UserSettings struct {
	UserID            string `json:"user_id"`
	PrewrittenMessage string `json:"prewritten_message"`
}

// SosAlert is immutable once written; one is created per contact at dispatch time.
type SosAlert struct {
	ID              string     `json:"id,omitempty"`
	SenderUserID    string     `json:"sender_user_id,omitempty"`
	SenderName      string     `json:"sender_name"`
	RecipientUserID string     `json:"recipient_user_id"`
	Location        Location   `json:"location"`
	Message         string     `json:"message"`
	MediaURL        string     `json:"media_url,omitempty"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
}

// HasRecording reports whether the sender attached an emergency recording
func (alert SosAlert) HasRecording() bool {
	return alert.MediaURL != ""
}

type SosMessageRequest struct {
	BaseMessage string `json:"baseMessage"`
}

type SosMessageResponse struct {
	Message string `json:"message"`
}

type SafeRouteRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type SafeRouteResponse struct {
	Description string `json:"description"`
}

// Account is the authenticated user as returned by the auth api
type Account struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignUpRequest struct {
	Credentials
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

type Token struct {
	AccessToken string  `json:"access_token"`
	ExpiresAt   int64   `json:"expires_at"`
	User        Account `json:"user"`
}
