package sos

import (
	"fmt"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/client/session"
	"github.com/Daskott/sentinel/utils"
)

// AlertMessage appends the sender's coordinates to 'message'
func AlertMessage(message string, position backend.Location) string {
	return fmt.Sprintf("%s Location: %s, %s",
		message, utils.FormatCoordinate(position.Lat), utils.FormatCoordinate(position.Lon))
}

// BuildAlerts creates one alert per contact. Every alert shares the same
// message & location, only the recipient differs.
func BuildAlerts(sender session.Identity, contacts []backend.Contact, message string, position backend.Location, mediaURL string) []backend.SosAlert {
	text := AlertMessage(message, position)

	alerts := make([]backend.SosAlert, 0, len(contacts))
	for _, contact := range contacts {
		alerts = append(alerts, backend.SosAlert{
			SenderUserID:    sender.UserID,
			SenderName:      sender.DisplayName(),
			RecipientUserID: contact.ContactUserID,
			Location:        position,
			Message:         text,
			MediaURL:        mediaURL,
		})
	}

	return alerts
}
