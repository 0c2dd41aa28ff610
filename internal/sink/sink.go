// Package sink sends PCM audio into Discord voice connections.
package sink

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/cardinal/internal/audio"
	"github.com/hxnx/cardinal/internal/music"
	"github.com/rs/zerolog/log"
	"gopkg.in/hraban/opus.v2"
)

var (
	ErrVoiceNotReady  = errors.New("voice connection not ready")
	ErrUnsupportedPCM = errors.New("unsupported channel count")
)

const (
	FrameDuration      = 20 * time.Millisecond
	opusBitrate        = 128000
	maxOpusPacket      = 4000
	defaultSendTimeout = time.Second
)

// Encoder turns one frame of interleaved PCM into an Opus packet.
type Encoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

func NewOpusEncoder() (Encoder, error) {
	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		return nil, err
	}
	if err := enc.SetBitrate(opusBitrate); err != nil {
		return nil, err
	}
	return enc, nil
}

// Voice is a music.Sink writing into a single voice connection.
type Voice struct {
	vc         *discordgo.VoiceConnection
	newEncoder func() (Encoder, error)
}

func NewVoice(vc *discordgo.VoiceConnection) *Voice {
	return &Voice{vc: vc, newEncoder: NewOpusEncoder}
}

func (v *Voice) Play(r io.Reader, channels int) (music.Stream, error) {
	if !isReady(v.vc) {
		return nil, ErrVoiceNotReady
	}
	enc, err := v.newEncoder()
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	vc := v.vc
	stream, err := startStream(r, channels, enc, vc.OpusSend, func(speaking bool) {
		if !isReady(vc) {
			return
		}
		_ = vc.Speaking(speaking)
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// Stream pumps 20ms frames from a reader into an Opus packet channel.
type Stream struct {
	src      io.Reader
	enc      Encoder
	out      chan<- []byte
	speaking func(bool)
	timeout  time.Duration

	events chan music.StreamEvent
	quit   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	corked bool
	resume chan struct{}
}

func startStream(r io.Reader, channels int, enc Encoder, out chan<- []byte, speaking func(bool)) (*Stream, error) {
	if channels != audio.Channels {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedPCM, channels)
	}
	if speaking == nil {
		speaking = func(bool) {}
	}
	s := &Stream{
		src:      r,
		enc:      enc,
		out:      out,
		speaking: speaking,
		timeout:  defaultSendTimeout,
		events:   make(chan music.StreamEvent, 64),
		quit:     make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

func (s *Stream) Events() <-chan music.StreamEvent {
	return s.events
}

func (s *Stream) Cork() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.corked {
		return
	}
	s.corked = true
	s.resume = make(chan struct{})
}

func (s *Stream) Uncork() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.corked {
		return
	}
	s.corked = false
	close(s.resume)
}

func (s *Stream) UnpipeAll() {
	s.once.Do(func() { close(s.quit) })
}

func (s *Stream) waitUncorked() bool {
	s.mu.Lock()
	corked, resume := s.corked, s.resume
	s.mu.Unlock()
	if !corked {
		return true
	}

	s.speaking(false)
	select {
	case <-resume:
		s.speaking(true)
		return true
	case <-s.quit:
		return false
	}
}

func (s *Stream) pump() {
	pcmBytes := make([]byte, audio.FrameBytes)
	pcm := make([]int16, audio.FrameSamples*audio.Channels)
	packet := make([]byte, maxOpusPacket)

	var frames int64
	s.speaking(true)
	defer s.speaking(false)

	for {
		if !s.waitUncorked() {
			s.emit(music.StreamEvent{Kind: music.StreamUnpipe})
			return
		}

		n, err := io.ReadFull(s.src, pcmBytes)
		if n == 0 && err != nil {
			s.finish(err)
			return
		}
		if n < len(pcmBytes) {
			clear(pcmBytes[n:])
		}

		for i := range pcm {
			pcm[i] = int16(binary.LittleEndian.Uint16(pcmBytes[i*2:]))
		}

		size, encErr := s.enc.Encode(pcm, packet)
		if encErr != nil {
			s.emit(music.StreamEvent{Kind: music.StreamError, Err: fmt.Errorf("opus encode: %w", encErr)})
			return
		}
		frame := make([]byte, size)
		copy(frame, packet[:size])

		select {
		case s.out <- frame:
			frames++
			s.notify(music.StreamEvent{
				Kind:      music.StreamTimestamp,
				Timestamp: time.Duration(frames) * FrameDuration,
			})
		case <-s.quit:
			s.emit(music.StreamEvent{Kind: music.StreamUnpipe})
			return
		case <-time.After(s.timeout):
			log.Warn().Int64("frame", frames).Msg("timeout sending opus frame")
		}

		if err != nil {
			s.finish(err)
			return
		}
	}
}

func (s *Stream) finish(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		s.emit(music.StreamEvent{Kind: music.StreamEnd})
		return
	}
	select {
	case <-s.quit:
		s.emit(music.StreamEvent{Kind: music.StreamUnpipe})
	default:
		s.emit(music.StreamEvent{Kind: music.StreamError, Err: err})
	}
}

// notify drops timestamps when the consumer lags.
func (s *Stream) notify(ev music.StreamEvent) {
	select {
	case s.events <- ev:
	default:
	}
}

func (s *Stream) emit(ev music.StreamEvent) {
	select {
	case s.events <- ev:
	case <-s.quit:
	}
}
