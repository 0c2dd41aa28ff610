package shared

import (
	"github.com/hxnx/cardinal/internal/database"
	"github.com/hxnx/cardinal/internal/music"
)

// App is what command handlers need from the running bot.
type App struct {
	Coordinator *music.Coordinator
	Music       *music.Service
	Radio       RadioBindings
	History     *database.HistoryRepository

	// RadioURL is used when /라디오 is run without a stream URL.
	RadioURL   string
	StorageDir string
}

// RadioBindings stores which channels a guild's radio uses.
type RadioBindings interface {
	Bind(b database.Binding) error
	Unbind(guildID string) error
	Lookup(guildID string) (database.Binding, bool)
}
