package music

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/hxnx/cardinal/internal/audio"
	"github.com/rs/zerolog/log"
)

var ErrTranscoderStarted = errors.New("transcoder already started")

// NewFFmpegFactory returns a factory spawning binary (default "ffmpeg") to
// decode any input into interleaved PCM at the voice sample rate.
func NewFFmpegFactory(binary string) TranscoderFactory {
	if binary == "" {
		binary = "ffmpeg"
	}
	return func(opts TranscoderOptions) (Transcoder, error) {
		if opts.Input == nil && opts.Source == "" {
			return nil, fmt.Errorf("%w: transcoder needs a source", ErrMissingLocator)
		}
		if opts.Format == "" {
			opts.Format = defaultOutputFormat
		}
		ctx, cancel := context.WithCancel(context.Background())
		return &ffmpegTranscoder{
			binary: binary,
			opts:   opts,
			ctx:    ctx,
			cancel: cancel,
			done:   make(chan error, 1),
		}, nil
	}
}

func ffmpegArgs(opts TranscoderOptions) []string {
	source := opts.Source
	if opts.Input != nil {
		source = "pipe:0"
	}

	args := []string{"-hide_banner", "-loglevel", "warning"}
	args = append(args, opts.InputArgs...)
	args = append(args,
		"-i", source,
		"-vn",
		"-f", opts.Format,
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
	)
	args = append(args, opts.OutputArgs...)
	return append(args, "pipe:1")
}

type ffmpegTranscoder struct {
	binary string
	opts   TranscoderOptions
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	started bool
	stopped bool

	finishOnce sync.Once
	done       chan error
}

func (t *ffmpegTranscoder) Play() (io.Reader, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return nil, ErrTranscoderStarted
	}
	t.started = true

	cmd := exec.CommandContext(t.ctx, t.binary, ffmpegArgs(t.opts)...)
	if t.opts.Input != nil {
		cmd.Stdin = t.opts.Input
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	go func() {
		reader := bufio.NewReader(stderr)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				log.Debug().Str("binary", t.binary).Msg(line)
			}
			if err != nil {
				return
			}
		}
	}()

	t.cmd = cmd
	t.stdout = stdout

	return &doneReader{r: stdout, t: t}, nil
}

func (t *ffmpegTranscoder) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return nil
	}
	t.stopped = true
	t.cancel()
	return nil
}

func (t *ffmpegTranscoder) Destroy() {
	_ = t.Stop()
	t.mu.Lock()
	stdout := t.stdout
	t.mu.Unlock()
	if stdout != nil {
		_ = stdout.Close()
	}
	t.finishOnce.Do(func() { go t.finish(nil) })
}

func (t *ffmpegTranscoder) Done() <-chan error {
	return t.done
}

// finish waits for the process after its output hit EOF, so every frame
// was read before Done fires.
func (t *ffmpegTranscoder) finish(readErr error) {
	t.mu.Lock()
	cmd := t.cmd
	stopped := t.stopped
	t.mu.Unlock()

	err := readErr
	if cmd != nil {
		if waitErr := cmd.Wait(); waitErr != nil && err == nil {
			err = waitErr
		}
	}
	if stopped {
		err = nil
	}
	if err != nil {
		err = fmt.Errorf("ffmpeg: %w", err)
	}
	t.done <- err
	close(t.done)
}

// doneReader fires the transcoder's completion once its output is drained.
type doneReader struct {
	r io.Reader
	t *ffmpegTranscoder
}

func (d *doneReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if err != nil {
		readErr := err
		if errors.Is(err, io.EOF) {
			readErr = nil
		}
		d.t.finishOnce.Do(func() { go d.t.finish(readErr) })
	}
	return n, err
}
