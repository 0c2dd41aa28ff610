package queueview

import (
	"fmt"
	"testing"
	"time"

	"github.com/hxnx/cardinal/internal/music"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginate(t *testing.T) {
	tests := []struct {
		name                 string
		total, page, perPage int
		wantPage, wantPages  int
		wantStart, wantEnd   int
	}{
		{name: "empty", total: 0, page: 1, perPage: 10, wantPage: 1, wantPages: 1, wantStart: 0, wantEnd: 0},
		{name: "second page", total: 25, page: 2, perPage: 10, wantPage: 2, wantPages: 3, wantStart: 10, wantEnd: 20},
		{name: "page past end", total: 25, page: 9, perPage: 10, wantPage: 3, wantPages: 3, wantStart: 20, wantEnd: 25},
		{name: "default size", total: 5, page: 0, perPage: 0, wantPage: 1, wantPages: 1, wantStart: 0, wantEnd: 5},
		{name: "size capped", total: 60, page: 1, perPage: 100, wantPage: 1, wantPages: 3, wantStart: 0, wantEnd: 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Paginate(tt.total, tt.page, tt.perPage)
			assert.Equal(t, tt.wantPage, info.Page)
			assert.Equal(t, tt.wantPages, info.TotalPages)
			assert.Equal(t, tt.wantStart, info.StartIndex)
			assert.Equal(t, tt.wantEnd, info.EndIndex)
		})
	}
}

func TestQueuePageCustomIDRoundTrip(t *testing.T) {
	id := MakeQueuePageCustomID(3, 40)
	assert.Equal(t, "music_queue_page:3:25", id)

	page, perPage, ok := ParseQueuePageCustomID(id)
	require.True(t, ok)
	assert.Equal(t, 3, page)
	assert.Equal(t, 25, perPage)

	for _, bad := range []string{"music_queue_page:0:10", "music_queue_page:1", "other:1:2", "music_queue_page:a:1"} {
		_, _, ok := ParseQueuePageCustomID(bad)
		assert.False(t, ok, bad)
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "실시간", FormatDuration(0))
	assert.Equal(t, "03:07", FormatDuration(187*time.Second))
	assert.Equal(t, "1:01:05", FormatDuration(time.Hour+65*time.Second))
}

func TestRecordLine(t *testing.T) {
	remote := music.Record{Kind: music.MediaKindRemote, Title: "곡", URL: "https://youtu.be/x", Duration: 61 * time.Second}
	assert.Equal(t, "[곡](https://youtu.be/x) `01:01`", RecordLine(remote))

	local := music.Record{Kind: music.MediaKindLocal, Path: "/music/a.mp3", URL: "file"}
	assert.Equal(t, "알 수 없는 제목 `실시간`", RecordLine(local))
}

func TestNowPlayingLine(t *testing.T) {
	live := NowPlaying{Record: music.Record{Kind: music.MediaKindLive}}
	assert.Contains(t, NowPlayingLine(live), "라디오")

	np := NowPlaying{Record: music.Record{Kind: music.MediaKindRemote, Title: "곡", Duration: time.Minute}, Elapsed: 30 * time.Second, Paused: true}
	assert.Equal(t, "⏸️ **곡** `00:30 / 01:00`", NowPlayingLine(np))
}

func TestBuildQueueComponentsPaging(t *testing.T) {
	items := make([]music.QueueItem, 12)
	for i := range items {
		items[i].Record = music.Record{Kind: music.MediaKindRemote, Title: fmt.Sprintf("곡 %d", i+1)}
	}

	components, info := BuildQueueComponents(nil, items, 2, 10)
	require.Len(t, components, 1)
	assert.Equal(t, 10, info.StartIndex)
	assert.Equal(t, 12, info.EndIndex)

	_, single := BuildQueueComponents(&NowPlaying{}, items[:3], 1, 10)
	assert.Equal(t, 1, single.TotalPages)
}
