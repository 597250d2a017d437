// Package converter runs the fetch, parse, and persist pipeline for a map
// identifier and serves converted artifacts.
//
// Service.MapData is the entry point. It consults the job registry so
// concurrent requests for the same identifier share one pipeline run: the
// owner fetches catalog metadata, downloads and unpacks the package, builds
// the converted document, and returns it immediately while a tracked
// goroutine persists the artifacts. Waiters wake after persistence and either
// read the fresh cache entry or receive the owner's in-memory result or
// error. Close drains pending persistence before shutdown.
package converter
