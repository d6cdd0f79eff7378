// Package config loads runtime configuration for the captionkeeper CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the caption API
//	-d string   path of the local SQLite store
//	-t int      per-request timeout (seconds)
//	-p int      page size of the caption listings
//	-r float    outbound requests per second
//	-l string   log level (debug, info, warn, error)
//
// # JSON schema
//
// Durations use timex.Duration, so values can be either strings like "5m"
// or integer nanoseconds. Absent keys keep their earlier value:
//
//	{
//	  "api_base_url": "https://api.example.com",
//	  "storage_path": "/var/lib/captionkeeper/client.db",
//	  "request_timeout": "15s",
//	  "refresh_buffer": "5m",
//	  "favorite_debounce": "500ms",
//	  "page_size": 21,
//	  "rate_limit": 10,
//	  "rate_burst": 5,
//	  "google_userinfo_url": "https://www.googleapis.com/oauth2/v3/userinfo",
//	  "log_level": "info"
//	}
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
