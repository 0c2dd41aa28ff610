package music

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/kkdai/youtube/v2"
	"github.com/rs/zerolog/log"
)

var ErrFormatsUnavailable = errors.New("no audio formats available")

// YouTubeFormats lists audio renditions of a video, best bitrate first.
type YouTubeFormats struct {
	client youtube.Client
}

func NewYouTubeFormats(httpClient *http.Client) *YouTubeFormats {
	return &YouTubeFormats{client: youtube.Client{HTTPClient: httpClient}}
}

func (y *YouTubeFormats) Formats(ctx context.Context, rec Record) ([]Format, error) {
	id := rec.ID
	if id == "" {
		id = rec.URL
	}
	if id == "" {
		return nil, fmt.Errorf("%w: record has no video id", ErrFormatsUnavailable)
	}

	video, err := y.client.GetVideoContext(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormatsUnavailable, err)
	}

	candidates := video.Formats.WithAudioChannels().Type("audio")
	sort.SliceStable(candidates, func(i, j int) bool {
		return audioRank(candidates[i]) > audioRank(candidates[j])
	})

	formats := make([]Format, 0, len(candidates))
	for i := range candidates {
		f := candidates[i]
		streamURL, err := y.client.GetStreamURLContext(ctx, video, &f)
		if err != nil {
			log.Debug().Err(err).Int("itag", f.ItagNo).Msg("skipping format")
			continue
		}
		formats = append(formats, Format{
			URL:      streamURL,
			Encoding: encodingOf(f.MimeType),
			Bitrate:  f.Bitrate,
		})
	}

	if len(formats) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrFormatsUnavailable, id)
	}
	return formats, nil
}

// audioRank prefers opus over other codecs, then higher bitrate.
func audioRank(f youtube.Format) int {
	rank := f.Bitrate
	if encodingOf(f.MimeType) == "opus" {
		rank += 1 << 24
	}
	return rank
}

func encodingOf(mimeType string) string {
	_, params, ok := strings.Cut(mimeType, "codecs=")
	if !ok {
		base, _, _ := strings.Cut(mimeType, ";")
		return strings.TrimPrefix(base, "audio/")
	}
	codec := strings.Trim(params, `"' `)
	codec, _, _ = strings.Cut(codec, ",")
	codec, _, _ = strings.Cut(codec, ".")
	return codec
}

// FormatChain tries resolvers in order until one yields formats.
type FormatChain []FormatResolver

func (c FormatChain) Formats(ctx context.Context, rec Record) ([]Format, error) {
	var errs []error
	for _, r := range c {
		if r == nil {
			continue
		}
		formats, err := r.Formats(ctx, rec)
		if err == nil && len(formats) > 0 {
			return formats, nil
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil, ErrFormatsUnavailable
	}
	return nil, errors.Join(errs...)
}
