// Package main hosts the bonksticks CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the conversion server, converts single
// maps from the terminal, and inspects the map cache and conversion history.
// It centralizes configuration resolution and logger setup so subcommands
// only wire internal packages together.
package main
