package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries all service settings. Sandbox settings are handed to the
// executor as an explicit struct; nothing reads the environment after startup.
type Config struct {
	Server      ServerConfig
	Sandbox     SandboxConfig
	Limiter     LimiterConfig
	Workers     int
	QueueSize   int
	DatabaseURL string
	NatsURL     string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  int // seconds
	WriteTimeout int
	IdleTimeout  int
}

// SandboxConfig describes the isolation unit every execution gets.
// None of these are overridable per request.
type SandboxConfig struct {
	Image          string
	TimeoutSeconds int
	Memory         string // docker string form, e.g. "512m"
	CPUs           string
	User           string
	TmpfsSize      string
}

type LimiterConfig struct {
	GlobalRPS     float64
	PerIPRPS      float64
	PerIPBurst    int
	MaxConcurrent int
}

// Load reads configuration from the environment, with .env support for
// local development. Missing keys fall back to defaults.
func Load() (*Config, error) {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load(".env")

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:  getEnvInt("SERVER_IDLE_TIMEOUT", 120),
		},
		Sandbox: SandboxConfig{
			Image:          getEnv("SANDBOX_IMAGE", "mlcraft-sandbox:latest"),
			TimeoutSeconds: getEnvInt("SANDBOX_TIMEOUT", 30),
			Memory:         getEnv("SANDBOX_MEMORY", "512m"),
			CPUs:           getEnv("SANDBOX_CPUS", "1"),
			User:           getEnv("SANDBOX_USER", "nobody"),
			TmpfsSize:      getEnv("SANDBOX_TMPFS_SIZE", "64m"),
		},
		Limiter: LimiterConfig{
			GlobalRPS:     float64(getEnvInt("LIMITER_GLOBAL_RPS", 100)),
			PerIPRPS:      float64(getEnvInt("LIMITER_PER_IP_RPS", 10)),
			PerIPBurst:    getEnvInt("LIMITER_PER_IP_BURST", 20),
			MaxConcurrent: getEnvInt("LIMITER_MAX_CONCURRENT", 50),
		},
		Workers:     getEnvInt("WORKERS", 5),
		QueueSize:   getEnvInt("QUEUE_SIZE", 100),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		NatsURL:     getEnv("NATS_URL", ""),
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
