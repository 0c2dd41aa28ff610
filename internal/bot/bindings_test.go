package bot

import (
	"context"
	"testing"

	"github.com/hxnx/cardinal/internal/database"
	"github.com/hxnx/cardinal/internal/music"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryBindings(defaultURL string) *radioBindings {
	return newRadioBindings(database.NewBindingRepositoryWithDB(nil), defaultURL)
}

func TestRadioBindingsCache(t *testing.T) {
	r := memoryBindings("")
	require.NoError(t, r.Bind(database.Binding{GuildID: "g1", VoiceChannelID: "v1", TextChannelID: "t1"}))

	b, ok := r.Lookup("g1")
	require.True(t, ok)
	assert.Equal(t, "v1", b.VoiceChannelID)
	assert.Equal(t, "t1", r.textChannel("g1"))

	require.NoError(t, r.Unbind("g1"))
	_, ok = r.Lookup("g1")
	assert.False(t, ok)
	assert.Empty(t, r.textChannel("g1"))
}

func TestRadioBindingsLoad(t *testing.T) {
	r := memoryBindings("")
	require.NoError(t, r.Bind(database.Binding{GuildID: "g1", VoiceChannelID: "v1", TextChannelID: "t1"}))
	require.NoError(t, r.Bind(database.Binding{GuildID: "g2", VoiceChannelID: "v2", TextChannelID: "t2"}))

	assert.Len(t, r.Load(), 2)
}

func TestRadioFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("unbound guild", func(t *testing.T) {
		_, ok := memoryBindings("http://radio/live").Radio(ctx, "g1")
		assert.False(t, ok)
	})

	t.Run("default stream", func(t *testing.T) {
		r := memoryBindings("http://radio/live")
		require.NoError(t, r.Bind(database.Binding{GuildID: "g1", VoiceChannelID: "v1", TextChannelID: "t1"}))

		rec, ok := r.Radio(ctx, "g1")
		require.True(t, ok)
		assert.Equal(t, music.MediaKindLive, rec.Kind)
		assert.Equal(t, "g1", rec.GuildID)
		assert.Equal(t, "http://radio/live", rec.URL)
		assert.Equal(t, radioTitle, rec.Title)
	})

	t.Run("bound stream wins", func(t *testing.T) {
		r := memoryBindings("http://radio/live")
		require.NoError(t, r.Bind(database.Binding{GuildID: "g1", VoiceChannelID: "v1", TextChannelID: "t1", StreamURL: "https://other/stream"}))

		rec, ok := r.Radio(ctx, "g1")
		require.True(t, ok)
		assert.Equal(t, "https://other/stream", rec.URL)
	})

	t.Run("no stream at all", func(t *testing.T) {
		r := memoryBindings("")
		require.NoError(t, r.Bind(database.Binding{GuildID: "g1", VoiceChannelID: "v1", TextChannelID: "t1"}))

		_, ok := r.Radio(ctx, "g1")
		assert.False(t, ok)
	})
}
