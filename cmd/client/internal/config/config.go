package config

import (
	"os"
)

// Config holds cmd/client's environment-driven settings for the demo
// write+read driver.
type Config struct {
	Message string
}

// LoadConfig reads Config from the environment.
func LoadConfig() *Config {
	return &Config{
		Message: getEnv("MYCO_DEMO_MESSAGE", "hello from myco"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

