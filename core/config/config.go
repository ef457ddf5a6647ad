package config

import (
	"strings"
	"time"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App        AppConfig
	MCP        MCPConfig
	Database   DatabaseConfig
	Scheduler  SchedulerConfig
	SMS        SMSConfig
	Whatsapp   WhatsappConfig
	AMQP       AMQPConfig
	WorkerPool WorkerPoolConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	BasePath           string
	CorsAllowedOrigins []string
	ServerID           string
	StorageDir         string
}

type MCPConfig struct {
	Port string
	Host string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // File path for SQLite, DB Name for Postgres
	ValkeyEnabled   bool
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
}

// SchedulerConfig drives both pollers (worker process and the one embedded in the REST server).
type SchedulerConfig struct {
	Interval          time.Duration
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
	LockTTL           time.Duration
	Embedded          bool
	Timezone          string
	DateLayout        string
	TimeLayout        string
}

type SMSConfig struct {
	APIURL      string
	APIKey      string
	APIPassword string
	SenderID    string
	Timeout     time.Duration
}

type WhatsappConfig struct {
	Driver    string // wasender | native
	APIURL    string
	APIKey    string
	SessionID string
	DBURI     string
	LogLevel  string
	Timeout   time.Duration
}

type AMQPConfig struct {
	URL   string
	Queue string
}

type WorkerPoolConfig struct {
	Size      int
	QueueSize int
}

// Global provides access to the loaded configuration globally
var Global *Config

// LoadConfig loads configuration from Environment Variables or defaults.
func LoadConfig() (*Config, error) {
	debug := getEnvBool("APP_DEBUG", false)

	corsOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	if v := getEnv("APP_CORS_ALLOWED_ORIGINS", ""); v != "" {
		corsOrigins = strings.Split(v, ",")
	}

	storageDir := getEnv("APP_STORAGE_DIR", "storages")

	cfg := &Config{
		App: AppConfig{
			Version:            "v1.0.0",
			Port:               getEnv("APP_PORT", "3000"),
			Debug:              debug,
			Environment:        getEnv("APP_ENV", "development"),
			BasePath:           getEnv("APP_BASE_PATH", ""),
			CorsAllowedOrigins: corsOrigins,
			ServerID:           getEnv("SERVER_ID", ""),
			StorageDir:         storageDir,
		},
		MCP: MCPConfig{Port: getEnv("MCP_PORT", "8080"), Host: getEnv("MCP_HOST", "localhost")},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", storageDir+"/bulk.db"),
			ValkeyEnabled:   getEnvBool("VALKEY_ENABLED", false),
			ValkeyAddress:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
			ValkeyPassword:  getEnv("VALKEY_PASSWORD", ""),
			ValkeyDB:        getEnvInt("VALKEY_DB", 0),
			ValkeyKeyPrefix: getEnv("VALKEY_KEY_PREFIX", "azbulk:"),
		},
		Scheduler: SchedulerConfig{
			Interval:          getEnvDuration("SCHEDULER_INTERVAL", time.Minute),
			HeartbeatInterval: getEnvDuration("SCHEDULER_HEARTBEAT_INTERVAL", 15*time.Second),
			StaleAfter:        getEnvDuration("SCHEDULER_STALE_AFTER", 5*time.Minute),
			LockTTL:           getEnvDuration("SCHEDULER_LOCK_TTL", 10*time.Minute),
			Embedded:          getEnvBool("SCHEDULER_EMBEDDED", true),
			Timezone:          getEnv("SCHEDULER_TIMEZONE", "Africa/Dar_es_Salaam"),
			DateLayout:        getEnv("SCHEDULER_DATE_LAYOUT", "02/01/2006"),
			TimeLayout:        getEnv("SCHEDULER_TIME_LAYOUT", "15:04"),
		},
		SMS: SMSConfig{
			APIURL:      getEnv("SMS_API_URL", "https://mshastra.com/sendurl.aspx"),
			APIKey:      getEnv("SMS_API_KEY", ""),
			APIPassword: getEnv("SMS_API_PASSWORD", ""),
			SenderID:    getEnv("SMS_SENDER_ID", ""),
			Timeout:     getEnvDuration("SMS_TIMEOUT", 30*time.Second),
		},
		Whatsapp: WhatsappConfig{
			Driver:    getEnv("WHATSAPP_DRIVER", "wasender"),
			APIURL:    getEnv("WHATSAPP_API_URL", "https://wasenderapi.com/api"),
			APIKey:    getEnv("WHATSAPP_API_KEY", ""),
			SessionID: getEnv("WHATSAPP_SESSION", ""),
			DBURI:     getEnv("WHATSAPP_DB_URI", "file:"+storageDir+"/whatsapp.db?_foreign_keys=on"),
			LogLevel:  getEnv("WHATSAPP_LOG_LEVEL", "ERROR"),
			Timeout:   getEnvDuration("WHATSAPP_TIMEOUT", 30*time.Second),
		},
		AMQP: AMQPConfig{
			URL:   getEnv("AMQP_URL", ""),
			Queue: getEnv("AMQP_QUEUE", "scheduled_message_events"),
		},
		WorkerPool: WorkerPoolConfig{
			Size:      getEnvInt("MESSAGE_WORKER_POOL_SIZE", 4),
			QueueSize: getEnvInt("MESSAGE_WORKER_QUEUE_SIZE", 100),
		},
	}

	Global = cfg
	return cfg, nil
}
