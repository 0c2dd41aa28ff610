package bot

import (
	"context"
	"sync"

	"github.com/hxnx/cardinal/internal/database"
	"github.com/hxnx/cardinal/internal/music"
	"github.com/rs/zerolog/log"
)

const radioTitle = "라디오"

// radioBindings caches guild radio bindings in front of Postgres so the
// radio keeps working when the database is unavailable.
type radioBindings struct {
	repo       *database.BindingRepository
	defaultURL string

	mu    sync.RWMutex
	cache map[string]database.Binding
}

func newRadioBindings(repo *database.BindingRepository, defaultURL string) *radioBindings {
	return &radioBindings{
		repo:       repo,
		defaultURL: defaultURL,
		cache:      make(map[string]database.Binding),
	}
}

func (r *radioBindings) Bind(b database.Binding) error {
	r.mu.Lock()
	r.cache[b.GuildID] = b
	r.mu.Unlock()
	return r.repo.Upsert(b)
}

func (r *radioBindings) Unbind(guildID string) error {
	r.mu.Lock()
	delete(r.cache, guildID)
	r.mu.Unlock()
	return r.repo.Delete(guildID)
}

func (r *radioBindings) Lookup(guildID string) (database.Binding, bool) {
	r.mu.RLock()
	b, ok := r.cache[guildID]
	r.mu.RUnlock()
	if ok {
		return b, true
	}

	b, ok, err := r.repo.Get(guildID)
	if err != nil {
		log.Warn().Err(err).Str("guild", guildID).Msg("failed to load radio binding")
		return database.Binding{}, false
	}
	if !ok {
		return database.Binding{}, false
	}

	r.mu.Lock()
	r.cache[guildID] = b
	r.mu.Unlock()
	return b, true
}

// Load fills the cache from the database and returns every binding.
func (r *radioBindings) Load() []database.Binding {
	stored, err := r.repo.List()
	if err != nil {
		log.Warn().Err(err).Msg("failed to list radio bindings")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range stored {
		r.cache[b.GuildID] = b
	}
	all := make([]database.Binding, 0, len(r.cache))
	for _, b := range r.cache {
		all = append(all, b)
	}
	return all
}

// Radio is the coordinator's fallback when a guild's queue is empty.
func (r *radioBindings) Radio(_ context.Context, guildID string) (music.Record, bool) {
	b, ok := r.Lookup(guildID)
	if !ok {
		return music.Record{}, false
	}
	streamURL := b.StreamURL
	if streamURL == "" {
		streamURL = r.defaultURL
	}
	if streamURL == "" {
		return music.Record{}, false
	}
	return music.Record{
		Kind:    music.MediaKindLive,
		GuildID: guildID,
		Title:   radioTitle,
		URL:     streamURL,
	}, true
}

func (r *radioBindings) textChannel(guildID string) string {
	b, ok := r.Lookup(guildID)
	if !ok {
		return ""
	}
	return b.TextChannelID
}
