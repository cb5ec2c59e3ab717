package config

import "os"

// Config holds cmd/server2's environment-driven settings, following the
// teacher's cmd/<service>/internal/config.Config + getEnv(key, fallback)
// convention.
type Config struct {
	Port             string
	AuthKeyHex       string
	PostgresDSN      string
	S3Endpoint       string
	S3AccessKey      string
	S3SecretKey      string
	S3Bucket         string
	BenchmarkBackend string // "none", "postgres", or "s3"
}

// LoadConfig reads Config from the environment, falling back to
// development-friendly defaults.
func LoadConfig() *Config {
	return &Config{
		Port:             getEnv("PORT", "9001"),
		AuthKeyHex:       getEnv("MYCO_AUTH_KEY", ""),
		PostgresDSN:      getEnv("DATABASE_URL", ""),
		S3Endpoint:       getEnv("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:      getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:      getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:         getEnv("S3_BUCKET", "myco-benchmarks"),
		BenchmarkBackend: getEnv("MYCO_BENCHMARK_BACKEND", "none"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
