package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/captionkeeper/internal/flagx"
	"github.com/dmitrijs2005/captionkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer
// fields tell an absent key apart from a zero value.
type JsonConfig struct {
	APIBaseURL        *string         `json:"api_base_url"`
	StoragePath       *string         `json:"storage_path"`
	RequestTimeout    *timex.Duration `json:"request_timeout"`
	RefreshBuffer     *timex.Duration `json:"refresh_buffer"`
	FavoriteDebounce  *timex.Duration `json:"favorite_debounce"`
	PageSize          *int            `json:"page_size"`
	RateLimit         *float64        `json:"rate_limit"`
	RateBurst         *int            `json:"rate_burst"`
	GoogleUserInfoURL *string         `json:"google_userinfo_url"`
	LogLevel          *string         `json:"log_level"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c or -config. Without that flag nothing happens. Read and unmarshal
// errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setIf(&cfg.APIBaseURL, jc.APIBaseURL)
	setIf(&cfg.StoragePath, jc.StoragePath)
	setIf(&cfg.PageSize, jc.PageSize)
	setIf(&cfg.RateLimit, jc.RateLimit)
	setIf(&cfg.RateBurst, jc.RateBurst)
	setIf(&cfg.GoogleUserInfoURL, jc.GoogleUserInfoURL)
	setIf(&cfg.LogLevel, jc.LogLevel)
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.RefreshBuffer != nil {
		cfg.RefreshBuffer = jc.RefreshBuffer.Duration
	}
	if jc.FavoriteDebounce != nil {
		cfg.FavoriteDebounce = jc.FavoriteDebounce.Duration
	}
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
