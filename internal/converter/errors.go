package converter

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidID rejects identifiers that cannot be looked up or cached.
	ErrInvalidID = errors.New("invalid map id")
	// ErrLookup marks a failed catalog lookup.
	ErrLookup = errors.New("catalog lookup failed")
	// ErrDownload marks a failed package download.
	ErrDownload = errors.New("package download failed")
	// ErrArchive marks an unreadable package or missing info document.
	ErrArchive = errors.New("invalid level package")
	// ErrMissingSong marks a package whose info document names a song file
	// the archive does not contain. The converted document is still served
	// but nothing is cached.
	ErrMissingSong = errors.New("song file missing from package")
	// ErrPersist marks a failed cache write.
	ErrPersist = errors.New("cache persistence failed")
	// ErrNotFound marks an artifact that is not cached and not pending.
	ErrNotFound = errors.New("artifact not found")
	// ErrInternal marks failures that are neither upstream nor input faults.
	ErrInternal = errors.New("internal conversion error")
)

// Wrap builds an error message that includes step context while tagging it
// with the provided marker for later classification.
func Wrap(marker error, step, operation, message string, err error) error {
	detail := buildDetail(step, operation, message)
	if marker == nil {
		marker = ErrInternal
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(step, operation, message string) string {
	parts := make([]string, 0, 3)
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "conversion failure"
	}
	return strings.Join(parts, ": ")
}
