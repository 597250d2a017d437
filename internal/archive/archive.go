// Package archive materializes level packages into in-memory file sets.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// MaxUncompressedBytes bounds the total size a single package may expand to.
const MaxUncompressedBytes int64 = 1 << 30

var (
	// ErrInvalid marks bytes that are not a readable zip package.
	ErrInvalid = errors.New("invalid level package")
	// ErrTooLarge marks a package that expands past MaxUncompressedBytes.
	ErrTooLarge = errors.New("level package too large")
)

// Files maps archive-relative paths to fully buffered contents. Paths match
// case-insensitively. A Files value is never mutated after Open returns.
type Files struct {
	entries map[string]entry
}

type entry struct {
	name string
	data []byte
}

// Open reads every regular file in a zip package into memory.
func Open(data []byte) (*Files, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	files := &Files{entries: make(map[string]entry, len(zr.File))}
	var total int64
	for _, file := range zr.File {
		if file.FileInfo().IsDir() {
			continue
		}
		name := cleanName(file.Name)
		if name == "" {
			continue
		}
		content, err := readEntry(file, MaxUncompressedBytes-total)
		if err != nil {
			return nil, err
		}
		total += int64(len(content))

		key := foldName(name)
		if _, exists := files.entries[key]; exists {
			continue
		}
		files.entries[key] = entry{name: name, data: content}
	}
	return files, nil
}

func readEntry(file *zip.File, budget int64) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrInvalid, file.Name, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(io.LimitReader(rc, budget+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalid, file.Name, err)
	}
	if int64(len(content)) > budget {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, file.Name, MaxUncompressedBytes)
	}
	return content, nil
}

// Lookup returns the contents of name, matched case-insensitively.
func (f *Files) Lookup(name string) ([]byte, bool) {
	if f == nil {
		return nil, false
	}
	e, ok := f.entries[foldName(cleanName(name))]
	if !ok {
		return nil, false
	}
	return e.data, true
}

// Names lists the stored paths in their original case, sorted.
func (f *Files) Names() []string {
	if f == nil {
		return nil
	}
	names := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of stored files.
func (f *Files) Len() int {
	if f == nil {
		return 0
	}
	return len(f.entries)
}

func cleanName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	if name == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

func foldName(name string) string {
	return cases.Fold().String(name)
}
