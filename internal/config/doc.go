// Package config loads, normalizes, and validates converter configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// BONKSTICKS_API_TOKEN and BEATSAVER_BASE_URL. The Config type centralizes
// every knob the server and CLI need so cache/log directories and upstream
// catalog settings are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
