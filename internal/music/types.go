package music

import (
	"context"
	"io"
	"time"
)

type MediaKind string

const (
	// MediaKindRemote is an on-demand item fetched over HTTP from one of
	// several format URLs.
	MediaKindRemote MediaKind = "ytdl"
	MediaKindLocal  MediaKind = "local"
	// MediaKindLive is an internet radio stream carrying ICY metadata.
	MediaKindLive MediaKind = "live"
)

func (k MediaKind) Valid() bool {
	switch k {
	case MediaKindRemote, MediaKindLocal, MediaKindLive:
		return true
	default:
		return false
	}
}

type RepeatMode string

const (
	RepeatModeNone  RepeatMode = "none"
	RepeatModeTrack RepeatMode = "track"
	RepeatModeQueue RepeatMode = "queue"
)

// Format is one fetchable rendition of a remote item.
type Format struct {
	URL      string `json:"url"`
	Encoding string `json:"encoding"`
	Bitrate  int    `json:"bitrate,omitempty"`
}

// Record is what the queue stores for one item.
type Record struct {
	Kind     MediaKind     `json:"type"`
	OwnerID  string        `json:"owner_id"`
	GuildID  string        `json:"guild_id"`
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	URL      string        `json:"url"`
	Path     string        `json:"path"`
	Encoding string        `json:"encoding"`
	Duration time.Duration `json:"duration"`
	Formats  []Format      `json:"formats,omitempty"`
}

type QueueItem struct {
	Record     Record    `json:"record"`
	Priority   int       `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type QueueSettings struct {
	RepeatMode RepeatMode `json:"repeat_mode"`
	Volume     int        `json:"volume"`
}

type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	OutcomeStopped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Result is the single terminal notification of a session.
type Result struct {
	Outcome Outcome
	Err     error
}

// Reporter is told exactly once when a session finishes. It may be called
// from the session's own event goroutine and must not block.
type Reporter interface {
	QueuedDonePlaying(m *QueuedMedia, res Result)
}

type StreamEventKind int

const (
	StreamTimestamp StreamEventKind = iota
	StreamEnd
	StreamUnpipe
	StreamError
)

type StreamEvent struct {
	Kind      StreamEventKind
	Timestamp time.Duration
	Err       error
}

// Stream is the handle a Sink returns for one attached input.
type Stream interface {
	Cork()
	Uncork()
	UnpipeAll()
	Events() <-chan StreamEvent
}

// Sink consumes interleaved s16le PCM and forwards it to the voice transport.
type Sink interface {
	Play(r io.Reader, channels int) (Stream, error)
}

type TranscoderOptions struct {
	// Source is a local file handed to the decoder. Ignored when Input is set;
	// network bodies always arrive through Input.
	Source     string
	Input      io.Reader
	Format     string
	InputArgs  []string
	OutputArgs []string
}

// Transcoder is an external decode/encode process.
// Done yields one value, nil on natural end, then is closed.
type Transcoder interface {
	Play() (io.Reader, error)
	Stop() error
	Destroy()
	Done() <-chan error
}

type TranscoderFactory func(opts TranscoderOptions) (Transcoder, error)

// FormatResolver lists the fetchable formats of a remote record, best first.
type FormatResolver interface {
	Formats(ctx context.Context, rec Record) ([]Format, error)
}
