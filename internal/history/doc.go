// Package history records finished conversions in a SQLite ledger at
// <log_dir>/history.db so operators can review what was converted, how long
// it took, and why a conversion failed.
package history
