package whatsapp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/utils"
)

const BASE_URL = "https://wa.me/"

// MapsURL points at 'position' on google maps
func MapsURL(position backend.Location) string {
	return fmt.Sprintf("https://www.google.com/maps?q=%s,%s",
		utils.FormatCoordinate(position.Lat), utils.FormatCoordinate(position.Lon))
}

// Text is the prefilled message of a shared location
func Text(senderName string, position backend.Location) string {
	if senderName == "" {
		senderName = "User"
	}
	return fmt.Sprintf("%s is sharing their live location with you for safety: %s", senderName, MapsURL(position))
}

// Link builds a click-to-chat link that opens whatsapp with the location
// message prefilled. Separators in 'phone' are stripped.
func Link(phone string, position backend.Location, senderName string) (string, error) {
	digits := utils.DigitsOnly(phone)
	if digits == "" {
		return "", fmt.Errorf("whatsapp: %q is not a phone number", phone)
	}

	return BASE_URL + digits + "?text=" + encodeComponent(Text(senderName, position)), nil
}

// uriComponentUnescaper restores what encodeURIComponent leaves as is but
// url.QueryEscape escapes
var uriComponentUnescaper = strings.NewReplacer("+", "%20", "%21", "!", "%27", "'", "%28", "(", "%29", ")", "%2A", "*")

// encodeComponent escapes like a browser's encodeURIComponent
func encodeComponent(s string) string {
	return uriComponentUnescaper.Replace(url.QueryEscape(s))
}
