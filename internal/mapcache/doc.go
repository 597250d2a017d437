// Package mapcache persists converted levels on disk, one directory per map
// identifier holding map.json, song.egg, and an optional cover.
//
// # Visibility
//
// A directory under the cache root is a complete entry. WriteAll stages all
// artifacts in a hidden sibling directory and renames it into place, so a
// failed write never leaves a half-populated entry behind.
//
// # Size Management
//
// When cache.max_entries is positive the store prunes the least recently
// used entries after every write. Reads refresh an entry's modification time.
// Use `bonksticks cache stats` to inspect current usage.
package mapcache
