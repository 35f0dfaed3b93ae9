package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerConfig(t *testing.T) {
	savedFile, savedIsDevEnv := serverConfigFile, isDevEnv
	defer func() {
		serverConfigFile, isDevEnv = savedFile, savedIsDevEnv
	}()

	t.Run("Should require --sconfig outside dev mode", func(t *testing.T) {
		serverConfigFile, isDevEnv = "", false

		_, err := serverConfig()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "--sconfig is required")
	})

	t.Run("Should load the bundled dev config", func(t *testing.T) {
		serverConfigFile, isDevEnv = "", true

		config, err := serverConfig()
		require.NoError(t, err)
		assert.Equal(t, 3000, config.Sentinel.Listener.Port)
		assert.Equal(t, "America/Toronto", config.Sentinel.Cron.TimeZone)
		assert.Equal(t, 30, config.Alerts.RetentionDays)
		assert.False(t, config.Google.Storage.RecordingsEnabled())
	})

	t.Run("Should let env vars override the file", func(t *testing.T) {
		serverConfigFile, isDevEnv = "", true
		t.Setenv("SENTINEL_TWILIO_AUTHTOKEN", "from-env")

		config, err := serverConfig()
		require.NoError(t, err)
		assert.Equal(t, "from-env", config.Twilio.AuthToken)
	})

	t.Run("Should read secrets from their usual env vars", func(t *testing.T) {
		serverConfigFile, isDevEnv = "", true
		t.Setenv("OPENAI_API_KEY", "sk-test")
		t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/tmp/creds.json")

		config, err := serverConfig()
		require.NoError(t, err)
		assert.Equal(t, "sk-test", config.OpenAI.APIKey)
		assert.Equal(t, "/tmp/creds.json", config.Google.ApplicationCredentials)
	})

	t.Run("Should reject an invalid config file", func(t *testing.T) {
		serverConfigFile = filepath.Join(t.TempDir(), "server.yml")
		isDevEnv = false
		require.NoError(t, os.WriteFile(serverConfigFile, []byte("sqlite:\n  passPhrase: secret\n"), 0600))

		_, err := serverConfig()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server config")
	})
}
