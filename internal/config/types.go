package config

import "time"

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	Env            string                `yaml:"env"` // "development" | "production"
	AllowedOrigins []string              `yaml:"allowed_origins"`
	JWTSecret      string                `yaml:"jwt_secret"`
	Timezone       string                `yaml:"timezone"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	Paths          RuntimePathsConfig    `yaml:"paths"`
	ICEServers     []ICEServer           `yaml:"ice_servers"`
	Match          MatchConfig           `yaml:"match"`
	Reaper         ReaperConfig          `yaml:"reaper"`
	Relay          RelayConfig           `yaml:"relay"`
	RateLimit      RateLimitConfig       `yaml:"rate_limit"`

	// DSN and RedisURL are derived from Database and Redis after loading.
	DSN      string `yaml:"-"`
	RedisURL string `yaml:"-"`

	baseDir string
}

type DatabaseRuntimeConfig struct {
	Driver    string            `yaml:"driver"` // "mysql" | "memory"
	DSN       string            `yaml:"dsn"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime bool              `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
	Migrate   bool              `yaml:"migrate"`
}

type RedisRuntimeConfig struct {
	Enable   bool   `yaml:"enable"`
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`
}

type RuntimePathsConfig struct {
	Logs string `yaml:"logs"`
}

// ICEServer is handed to both call ends as-is.
type ICEServer struct {
	URLs       []string `yaml:"urls"       json:"urls"`
	Username   string   `yaml:"username"   json:"username,omitempty"`
	Credential string   `yaml:"credential" json:"credential,omitempty"`
}

type MatchConfig struct {
	DefaultRadiusKm float64 `yaml:"default_radius_km"`
	CandidateLimit  int     `yaml:"candidate_limit"`
	MaxAttempts     int     `yaml:"max_attempts"`
}

type ReaperConfig struct {
	Interval         time.Duration `yaml:"interval"`
	StaleAfter       time.Duration `yaml:"stale_after"`
	ManualStaleAfter time.Duration `yaml:"manual_stale_after"`
}

type RelayConfig struct {
	Fanout    bool `yaml:"fanout"`
	QueueSize int  `yaml:"queue_size"`
}

type RateLimitConfig struct {
	MatchPerMinute int `yaml:"match_per_minute"` // 0 disables
}
