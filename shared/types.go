package shared

import "strconv"

// ---------------------------------------------------------------------------------//
// Server config
// --------------------------------------------------------------------------------//

type ServerConfig struct {
	Sqlite    SqliteConfig    `mapstructure:"sqlite" validate:"required"`
	Sentinel  SentinelConfig  `mapstructure:"sentinel" validate:"required"`
	Google    GoogleConfig    `mapstructure:"google"`
	Twilio    TwilioConfig    `mapstructure:"twilio"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Functions FunctionsConfig `mapstructure:"functions"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
}

type SqliteConfig struct {
	PassPhrase string `mapstructure:"passPhrase" validate:"required"`
}

type SentinelConfig struct {
	PrivateKeyPem string         `mapstructure:"privateKeyPem" validate:"required"`
	URL           string         `mapstructure:"url"`
	Cron          CronConfig     `mapstructure:"cron" validate:"required"`
	Listener      ListenerConfig `mapstructure:"listener" validate:"required"`
}

type GoogleConfig struct {
	ApplicationCredentials string        `mapstructure:"applicationCredentials"`
	Storage                StorageConfig `mapstructure:"storage"`
}

type CronConfig struct {
	TimeZone string `mapstructure:"timeZone" validate:"required"`
}

type ListenerConfig struct {
	Port int `mapstructure:"port" validate:"required"`
}

type StorageConfig struct {
	Bucket                    string      `mapstructure:"bucket" validate:"required_with=EnableSqliteBackupAndSync"`
	Prefix                    string      `mapstructure:"prefix" validate:"required_with=EnableSqliteBackupAndSync"`
	SqliteBackupSchedule      string      `mapstructure:"sqliteBackupSchedule" validate:"required_with=EnableSqliteBackupAndSync"`
	EnableSqliteBackupAndSync interface{} `mapstructure:"enableSqliteBackupAndSync" validate:"omitempty,bool"`
	EnableRecordings          interface{} `mapstructure:"enableRecordings" validate:"omitempty,bool"`
	RecordingsPrefix          string      `mapstructure:"recordingsPrefix"`
}

// BackupEnabled reports whether the sqlite db is backed up to & restored from the bucket
func (config StorageConfig) BackupEnabled() bool {
	return enabled(config.EnableSqliteBackupAndSync)
}

// RecordingsEnabled reports whether emergency recordings may be uploaded to the bucket
func (config StorageConfig) RecordingsEnabled() bool {
	return enabled(config.EnableRecordings)
}

type TwilioConfig struct {
	AccountSid          string `mapstructure:"accountSid"`
	AuthToken           string `mapstructure:"authToken"`
	MessagingServiceSid string `mapstructure:"messagingServiceSid"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"apiKey"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"baseURL" validate:"omitempty,url"`
}

type FunctionsConfig struct {
	// Max function invocations per user per minute, 0 means the default is used
	RatePerMinute int `mapstructure:"ratePerMinute" validate:"min=0"`
	Burst         int `mapstructure:"burst" validate:"min=0"`
}

type AlertsConfig struct {
	// RetentionDays is how long sos alerts are kept, 0 keeps them forever
	RetentionDays int    `mapstructure:"retentionDays" validate:"min=0"`
	PurgeSchedule string `mapstructure:"purgeSchedule"`
}

// ---------------------------------------------------------------------------------//
// Client config
// --------------------------------------------------------------------------------//

type ClientConfig struct {
	Backend  BackendConfig  `mapstructure:"backend" validate:"required"`
	Session  SessionConfig  `mapstructure:"session"`
	Location LocationConfig `mapstructure:"location"`
}

type BackendConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

type SessionConfig struct {
	UserID      string `mapstructure:"userId"`
	Name        string `mapstructure:"name"`
	AccessToken string `mapstructure:"accessToken"`
}

type LocationConfig struct {
	Lat            *float64 `mapstructure:"lat" validate:"omitempty,min=-90,max=90"`
	Lon            *float64 `mapstructure:"lon" validate:"omitempty,min=-180,max=180"`
	TimeoutSeconds int      `mapstructure:"timeoutSeconds" validate:"min=0"`
	LookupURL      string   `mapstructure:"lookupURL" validate:"omitempty,url"`
}

// enabled accepts yaml booleans as well as env var strings e.g. "true"
func enabled(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		return err == nil && b
	}
	return false
}
