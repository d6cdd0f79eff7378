package config

import "time"

// Config holds runtime settings for the captionkeeper CLI.
//
// Durations are time.Duration values; the JSON loader accepts them as
// strings like "5m" or integer nanoseconds.
type Config struct {
	APIBaseURL        string
	StoragePath       string
	RequestTimeout    time.Duration
	RefreshBuffer     time.Duration
	FavoriteDebounce  time.Duration
	PageSize          int
	RateLimit         float64
	RateBurst         int
	GoogleUserInfoURL string
	LogLevel          string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "http://127.0.0.1:8000"
	c.StoragePath = "captionkeeper.db"
	c.RequestTimeout = 15 * time.Second
	c.RefreshBuffer = 5 * time.Minute
	c.FavoriteDebounce = 500 * time.Millisecond
	c.PageSize = 21
	c.RateLimit = 10
	c.RateBurst = 5
	c.GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	c.LogLevel = "warn"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
