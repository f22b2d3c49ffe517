// Package config provides configuration management for the downloader.
//
// This package handles:
//   - Loading and saving settings from JSON files
//   - Default configuration values
//   - Validation of user-supplied options
//   - Building the API root from a base URL and token
//
// # Default Settings
//
// Use DefaultSettings() to get sensible defaults:
//
//	settings := config.DefaultSettings()
//	// Talks to http://127.0.0.1:9321
//	// Writes XML files into ./downloads
//	// Six workers, five retries
//
// # Loading from File
//
//	settings, err := config.Load("/path/to/config.json")
//	if err != nil {
//	    // Uses defaults if file doesn't exist
//	}
//
// # Saving Settings
//
//	settings.Output = "/data/danmu"
//	err := settings.Save("/path/to/config.json")
//
// # API Root
//
// The backend expects the access token as the first path segment:
//
//	root, err := config.APIRoot("example.com", "secret")
//	// "https://example.com/secret"
//
// Loopback hosts default to http, everything else to https.
package config
