package queueview

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/cardinal/internal/music"
)

const (
	CustomIDPrefix = "music_queue_page"
	DefaultPerPage = 10
	MaxPerPage     = 25
)

// NowPlaying is the header line shown above the queue.
type NowPlaying struct {
	Record  music.Record
	Elapsed time.Duration
	Paused  bool
}

type PageInfo struct {
	Page       int
	PerPage    int
	TotalItems int
	TotalPages int
	StartIndex int
	EndIndex   int
}

func Paginate(total, page, perPage int) PageInfo {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	perPage = clamp(perPage, 1, MaxPerPage)
	totalPages := max(1, (total+perPage-1)/perPage)
	page = clamp(page, 1, totalPages)

	start := (page - 1) * perPage
	return PageInfo{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
		StartIndex: start,
		EndIndex:   min(start+perPage, total),
	}
}

func BuildQueueComponents(current *NowPlaying, items []music.QueueItem, page int, perPage int) ([]discordgo.MessageComponent, PageInfo) {
	info := Paginate(len(items), page, perPage)

	lines := make([]string, 0, info.EndIndex-info.StartIndex)
	for i := info.StartIndex; i < info.EndIndex; i++ {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, RecordLine(items[i].Record)))
	}

	listContent := "대기열이 비어 있습니다."
	if len(lines) > 0 {
		listContent = strings.Join(lines, "\n")
	}

	divider := true
	spacing := discordgo.SeparatorSpacingSizeSmall
	accent := 0xC9A0FF

	body := []discordgo.MessageComponent{
		discordgo.TextDisplay{Content: "📋 **대기열**"},
	}
	if current != nil {
		body = append(body, discordgo.TextDisplay{Content: NowPlayingLine(*current)})
	}
	body = append(body,
		discordgo.TextDisplay{Content: fmt.Sprintf("페이지 **%d/%d** · 전체 **%d곡**", info.Page, info.TotalPages, info.TotalItems)},
		discordgo.Separator{Divider: &divider, Spacing: &spacing},
		discordgo.TextDisplay{Content: listContent},
	)
	if info.TotalPages > 1 {
		body = append(body,
			discordgo.Separator{Divider: &divider, Spacing: &spacing},
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Style:    discordgo.SecondaryButton,
						Label:    "이전",
						CustomID: MakeQueuePageCustomID(info.Page-1, info.PerPage),
						Disabled: info.Page <= 1,
					},
					discordgo.Button{
						Style:    discordgo.SecondaryButton,
						Label:    "다음",
						CustomID: MakeQueuePageCustomID(info.Page+1, info.PerPage),
						Disabled: info.Page >= info.TotalPages,
					},
				},
			},
		)
	}

	return []discordgo.MessageComponent{
		discordgo.Container{AccentColor: &accent, Components: body},
	}, info
}

func RecordLine(rec music.Record) string {
	title := strings.TrimSpace(rec.Title)
	if title == "" {
		title = "알 수 없는 제목"
	}
	line := title
	if rec.URL != "" && rec.Kind != music.MediaKindLocal {
		line = fmt.Sprintf("[%s](%s)", title, rec.URL)
	}
	return fmt.Sprintf("%s `%s`", line, FormatDuration(rec.Duration))
}

func NowPlayingLine(np NowPlaying) string {
	icon := "▶️"
	if np.Paused {
		icon = "⏸️"
	}
	if np.Record.Kind == music.MediaKindLive {
		return fmt.Sprintf("%s 📻 **라디오** 재생 중", icon)
	}
	title := strings.TrimSpace(np.Record.Title)
	if title == "" {
		title = "알 수 없는 제목"
	}
	return fmt.Sprintf("%s **%s** `%s / %s`", icon, title, FormatDuration(np.Elapsed), FormatDuration(np.Record.Duration))
}

// FormatDuration renders d as mm:ss, or 실시간 when unknown.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "실시간"
	}

	totalSeconds := int(d.Seconds())
	if totalSeconds >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", totalSeconds/3600, totalSeconds%3600/60, totalSeconds%60)
	}
	return fmt.Sprintf("%02d:%02d", totalSeconds/60, totalSeconds%60)
}

func MakeQueuePageCustomID(page int, perPage int) string {
	if page < 1 {
		page = 1
	}
	perPage = clamp(perPage, 1, MaxPerPage)
	return fmt.Sprintf("%s:%d:%d", CustomIDPrefix, page, perPage)
}

func ParseQueuePageCustomID(customID string) (page int, perPage int, ok bool) {
	rest, found := strings.CutPrefix(customID, CustomIDPrefix+":")
	if !found {
		return 0, 0, false
	}

	pageRaw, perPageRaw, found := strings.Cut(rest, ":")
	if !found {
		return 0, 0, false
	}

	pageVal, err := strconv.Atoi(pageRaw)
	if err != nil || pageVal < 1 {
		return 0, 0, false
	}

	perPageVal, err := strconv.Atoi(perPageRaw)
	if err != nil || perPageVal < 1 {
		return 0, 0, false
	}

	return pageVal, clamp(perPageVal, 1, MaxPerPage), true
}

func clamp(value, minValue, maxValue int) int {
	return max(minValue, min(maxValue, value))
}
