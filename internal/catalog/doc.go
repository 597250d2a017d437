// Package catalog is the BeatSaver REST client used to resolve level
// identifiers, proxy searches, and download level packages.
//
// Map lookups return the full detail document; the first version entry is
// the latest upload and the only one the converter consumes. Search results
// can be reduced to SimpleMapInfo, the compact shape the playback client
// renders in its browser. Options let tests inject an HTTP client pointed at
// an httptest server.
package catalog
