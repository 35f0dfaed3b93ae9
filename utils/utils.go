package utils

import (
	"log"
	"os"
	"strconv"
	"strings"
)

func FileExist(filePath string) bool {
	var err error

	if _, err = os.Stat(filePath); os.IsNotExist(err) {
		return false
	}

	if err != nil {
		log.Panic(err)
	}

	return true
}

func CreateDirIfNotExist(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return err
		}
	}

	return nil
}

// DigitsOnly strips every rune but ascii 0-9 from 's' e.g. "+1 (555) 010-9999" -> "15550109999"
func DigitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// FormatCoordinate renders a coordinate with the fewest digits needed
// e.g. 10 -> "10", 43.6532 -> "43.6532"
func FormatCoordinate(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
