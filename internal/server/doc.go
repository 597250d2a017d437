// Package server exposes the converter over HTTP.
//
// Public routes serve the playback client: /search proxies catalog searches,
// /{id}/mapdata converts on demand, and /{id}/song and /{id}/cover return
// cached media. Operator routes under /api report in-flight jobs, cache
// usage, and conversion history; they require a bearer token when
// paths.api_token is configured. Start takes an exclusive lock file so only
// one server instance owns the cache directory.
package server
