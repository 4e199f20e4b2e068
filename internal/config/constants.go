package config

import "time"

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 4000
	defaultEnv        = "development"

	defaultDBDriver   = "mysql"
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "random_call"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"
	defaultRedisHost  = "localhost"
	defaultRedisPort  = 6379
	defaultRedisDB    = 0

	defaultRadiusKm       = 10.0
	defaultCandidateLimit = 100
	defaultMaxAttempts    = 3

	defaultReaperInterval   = 5 * time.Minute
	defaultStaleAfter       = 30 * time.Minute
	defaultManualStaleAfter = time.Hour

	defaultRelayQueueSize = 64
	defaultMatchPerMinute = 30
)

const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)
