package commands

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hxnx/cardinal/internal/features/shared"
	"github.com/hxnx/cardinal/internal/music"
)

const localPrefix = "local:"

// Handlers serves the /노래 subcommands.
type Handlers struct {
	app *shared.App
}

func New(app *shared.App) *Handlers {
	return &Handlers{app: app}
}

// localRecord maps "local:<name>" or a bare file name inside storageDir to
// a local record. Names never escape storageDir.
func localRecord(storageDir, input, ownerID string) (music.Record, bool) {
	if storageDir == "" {
		return music.Record{}, false
	}

	name := strings.TrimSpace(strings.TrimPrefix(input, localPrefix))
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return music.Record{}, false
	}

	path := filepath.Join(storageDir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return music.Record{}, false
	}

	return music.Record{
		Kind:    music.MediaKindLocal,
		OwnerID: ownerID,
		Title:   strings.TrimSuffix(name, filepath.Ext(name)),
		Path:    path,
	}, true
}
