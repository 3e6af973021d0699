package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	JWTSecret  string
	ServerPort string

	// StorageDir is the root for uploaded proof images and local level videos.
	StorageDir string

	// StreamAllowedHosts is the set of hosts an external video link may point
	// at. Checked when an admin sets the link, not when a learner streams it.
	StreamAllowedHosts []string

	// StreamUpstreamTimeout bounds the header exchange with a proxied video
	// host. The body transfer itself is only bounded by the client connection.
	StreamUpstreamTimeout time.Duration

	// NotifyQueueSize is the buffer of the outbound notification queue.
	NotifyQueueSize int

	SMTPAddr string // host:port, empty disables outbound mail
	SMTPFrom string
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file, using environment variables")
	}

	return &Config{
		AppEnv:                getEnv("APP_ENV", "development"),
		DBHost:                getEnv("DB_HOST", "localhost"),
		DBPort:                getEnv("DB_PORT", "5432"),
		DBUser:                getEnv("DB_USER", "postgres"),
		DBPassword:            getEnv("DB_PASSWORD", "postgres"),
		DBName:                getEnv("DB_NAME", "coursegate"),
		JWTSecret:             getEnv("JWT_SECRET", "secret"),
		ServerPort:            getEnv("SERVER_PORT", "8080"),
		StorageDir:            getEnv("STORAGE_DIR", "./storage"),
		StreamAllowedHosts:    getEnvList("STREAM_ALLOWED_HOSTS", "drive.google.com,dl.dropboxusercontent.com"),
		StreamUpstreamTimeout: getEnvDuration("STREAM_UPSTREAM_TIMEOUT", 30*time.Second),
		NotifyQueueSize:       getEnvInt("NOTIFY_QUEUE_SIZE", 256),
		SMTPAddr:              getEnv("SMTP_ADDR", ""),
		SMTPFrom:              getEnv("SMTP_FROM", "no-reply@coursegate.local"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
