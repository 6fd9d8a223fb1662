package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                 string
	AllowedOrigin        string
	DatabaseURL          string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	GeminiAPIKey         string
	GeminiModel          string
	GeminiTimeoutSeconds int
	Environment          string
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	geminiTimeout, err := strconv.Atoi(getEnv("GEMINI_TIMEOUT_SECONDS", "20"))
	if err != nil || geminiTimeout < 1 {
		geminiTimeout = 20
	}

	return Config{
		Port:                 getEnv("PORT", "8080"),
		AllowedOrigin:        getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              redisDB,
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		GeminiModel:          os.Getenv("GEMINI_MODEL"),
		GeminiTimeoutSeconds: geminiTimeout,
		Environment:          getEnv("APP_ENV", "development"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
