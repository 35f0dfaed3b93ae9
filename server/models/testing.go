package models

import (
	"log"
	"os"
)

// InitializeTestDb opens a fresh encrypted db in a temp directory,
// every call starts from an empty schema
func InitializeTestDb() {
	dir, err := os.MkdirTemp("", "sentinel-test-")
	if err != nil {
		log.Panic(err)
	}

	err = AutoMigrate("test-passphrase", dir)
	if err != nil {
		log.Panic(err)
	}
}
