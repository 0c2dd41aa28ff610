package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hxnx/cardinal/internal/music"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRecord(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jingle.mp3"), []byte("id3"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	rec, ok := localRecord(dir, "local:jingle.mp3", "u1")
	require.True(t, ok)
	assert.Equal(t, music.MediaKindLocal, rec.Kind)
	assert.Equal(t, "jingle", rec.Title)
	assert.Equal(t, filepath.Join(dir, "jingle.mp3"), rec.Path)
	assert.Equal(t, "u1", rec.OwnerID)

	_, ok = localRecord(dir, "jingle.mp3", "u1")
	assert.True(t, ok)

	for _, input := range []string{"local:missing.mp3", "local:../jingle.mp3", "local:sub", "local:", "https://youtu.be/x"} {
		_, ok := localRecord(dir, input, "u1")
		assert.False(t, ok, input)
	}

	_, ok = localRecord("", "jingle.mp3", "u1")
	assert.False(t, ok)
}
