// Package preflight provides readiness checks for the filesystem paths and
// the upstream catalog the converter depends on.
//
// These checks run in two contexts:
//   - "bonksticks serve" calls RunAll before binding and refuses to start
//     when the cache directory is unusable.
//   - "bonksticks doctor" prints every result so operators can see which
//     dependency is misconfigured.
package preflight
