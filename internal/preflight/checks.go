package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/art0007i/bonk-sticks-map-converter/internal/catalog"
	"github.com/art0007i/bonk-sticks-map-converter/internal/config"
)

const catalogCheckTimeout = 10 * time.Second

// CheckCatalog verifies that the map catalog answers a one-page search.
// A single attempt is made with a short timeout.
func CheckCatalog(ctx context.Context, cfg config.Catalog) Result {
	const name = "Map catalog"

	client, err := catalog.New(cfg.BaseURL, cfg.UserAgent, catalog.WithTimeout(catalogCheckTimeout))
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}

	checkCtx, cancel := context.WithTimeout(ctx, catalogCheckTimeout)
	defer cancel()

	if _, err := client.Search(checkCtx, catalog.SearchOptions{Order: catalog.SortLatest}, 0); err != nil {
		return Result{Name: name, Detail: summarizeCatalogError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", cfg.BaseURL)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeCatalogError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "search timed out (catalog unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "search timed out (catalog unreachable)"
	}
	return err.Error()
}
