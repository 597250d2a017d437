package converter

import (
	"os"
	"path/filepath"

	"github.com/art0007i/bonk-sticks-map-converter/internal/mapcache"
)

func removeFile(store *mapcache.Store, id string, kind mapcache.Kind) error {
	return os.Remove(filepath.Join(store.Root(), id, kind.FileName()))
}
