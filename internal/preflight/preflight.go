package preflight

import (
	"context"

	"github.com/art0007i/bonk-sticks-map-converter/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Required bool
	Detail   string
}

// RunAll executes all preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		required(CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir)),
	}
	if cfg.Paths.LogDir != "" {
		results = append(results, required(CheckDirectoryAccess("Log directory", cfg.Paths.LogDir)))
	}
	results = append(results, CheckCatalog(ctx, cfg.Catalog))
	return results
}

// FirstRequiredFailure returns the first failing required check, if any.
func FirstRequiredFailure(results []Result) (Result, bool) {
	for _, r := range results {
		if r.Required && !r.Passed {
			return r, true
		}
	}
	return Result{}, false
}

func required(r Result) Result {
	r.Required = true
	return r
}
