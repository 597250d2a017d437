// Package jobs coordinates conversions so that at most one pipeline runs per
// map identifier.
//
// A Registry maps identifiers to in-flight Jobs. Acquire either makes the
// caller the owner of a new job, tells it to read the cache directly, or
// blocks until the current job finishes and tells it to re-check. Owners
// advance their job through FetchingMetadata, Downloading, Parsing, and
// Persisting, then Release it; release wakes every waiter with the owner's
// result or error and removes the record.
package jobs
