package music

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

var ErrResolveFailed = errors.New("failed to resolve track metadata")

type YTDLPResolver struct {
	Binary  string
	TempDir string
}

func NewYTDLPResolver(binary string) *YTDLPResolver {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YTDLPResolver{
		Binary:  binary,
		TempDir: os.TempDir(),
	}
}

// Resolve looks up a URL or a search query and returns a remote record
// without format URLs; those are fetched at play time.
func (r *YTDLPResolver) Resolve(ctx context.Context, input string) (Record, error) {
	item, err := r.dump(ctx, input)
	if err != nil {
		return Record{}, err
	}

	link := item.WebpageURL
	if link == "" {
		link = item.URL
	}
	if link == "" {
		return Record{}, fmt.Errorf("%w: missing track url", ErrResolveFailed)
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = "Unknown Title"
	}

	duration := time.Duration(item.Duration * float64(time.Second))
	if duration < 0 {
		duration = 0
	}

	id := item.ID
	if !isYouTubeURL(link) {
		id = ""
	}

	return Record{
		Kind:     MediaKindRemote,
		ID:       id,
		Title:    title,
		URL:      link,
		Duration: duration,
	}, nil
}

// Formats implements FormatResolver using the audio-only formats yt-dlp
// reports for the record's page URL.
func (r *YTDLPResolver) Formats(ctx context.Context, rec Record) ([]Format, error) {
	target := rec.URL
	if target == "" && rec.ID != "" {
		target = "https://www.youtube.com/watch?v=" + rec.ID
	}

	item, err := r.dump(ctx, target)
	if err != nil {
		return nil, err
	}

	var audioOnly []ytDLPFormat
	for _, f := range item.Formats {
		if f.URL == "" || f.ACodec == "" || f.ACodec == "none" {
			continue
		}
		if f.VCodec != "" && f.VCodec != "none" {
			continue
		}
		audioOnly = append(audioOnly, f)
	}
	sort.SliceStable(audioOnly, func(i, j int) bool {
		return audioOnly[i].rank() > audioOnly[j].rank()
	})

	formats := make([]Format, 0, len(audioOnly))
	for _, f := range audioOnly {
		codec, _, _ := strings.Cut(f.ACodec, ".")
		formats = append(formats, Format{
			URL:      f.URL,
			Encoding: codec,
			Bitrate:  int(f.ABR * 1000),
		})
	}

	if len(formats) == 0 {
		return nil, fmt.Errorf("%w: no audio formats", ErrResolveFailed)
	}
	return formats, nil
}

func (r *YTDLPResolver) dump(ctx context.Context, input string) (ytDLPItem, error) {
	target := strings.TrimSpace(input)
	if target == "" {
		return ytDLPItem{}, fmt.Errorf("%w: empty input", ErrResolveFailed)
	}
	if !looksLikeURL(target) {
		target = "ytsearch1:" + target
	}

	args := []string{
		"--no-warnings",
		"--dump-single-json",
		"--skip-download",
		"--no-playlist",
		"--paths",
		r.TempDir,
		target,
	}

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Env = append(os.Environ(), "TMPDIR="+r.TempDir)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return ytDLPItem{}, fmt.Errorf("%w: yt-dlp failed: %v: %s", ErrResolveFailed, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return ytDLPItem{}, fmt.Errorf("%w: yt-dlp failed: %v", ErrResolveFailed, err)
	}

	return parseYTDLP(output)
}

func parseYTDLP(output []byte) (ytDLPItem, error) {
	var root ytDLPItem
	if err := json.Unmarshal(output, &root); err != nil {
		return ytDLPItem{}, fmt.Errorf("%w: invalid json: %v", ErrResolveFailed, err)
	}
	return pickYTDLPItem(root)
}

type ytDLPFormat struct {
	FormatID string  `json:"format_id"`
	URL      string  `json:"url"`
	ACodec   string  `json:"acodec"`
	VCodec   string  `json:"vcodec"`
	ABR      float64 `json:"abr"`
}

func (f ytDLPFormat) rank() float64 {
	rank := f.ABR
	if strings.HasPrefix(f.ACodec, "opus") {
		rank += 1 << 20
	}
	return rank
}

type ytDLPItem struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	WebpageURL string        `json:"webpage_url"`
	URL        string        `json:"url"`
	Duration   float64       `json:"duration"`
	Formats    []ytDLPFormat `json:"formats"`
	Entries    []ytDLPItem   `json:"entries"`
}

func pickYTDLPItem(root ytDLPItem) (ytDLPItem, error) {
	if len(root.Entries) == 0 {
		return root, nil
	}

	for _, entry := range root.Entries {
		if entry.WebpageURL != "" || entry.URL != "" || entry.Title != "" {
			return entry, nil
		}
	}

	return ytDLPItem{}, fmt.Errorf("%w: no usable entries", ErrResolveFailed)
}

func looksLikeURL(value string) bool {
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return true
	}

	u, err := url.Parse(value)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func isYouTubeURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Host)
	return strings.Contains(host, "youtube.com") || strings.Contains(host, "youtu.be")
}
