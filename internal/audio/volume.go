package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync/atomic"
)

const (
	SampleRate = 48000
	Channels   = 2

	// FrameSamples is the per-channel sample count of one 20ms frame.
	FrameSamples = 960
	// FrameBytes is one 20ms frame of interleaved s16le PCM.
	FrameBytes = FrameSamples * Channels * 2

	maxSample = 32767
	minSample = -32767
)

// Volume rescales signed 16-bit little-endian PCM by a gain factor.
// The gain may be changed while chunks are in flight; each chunk reads it once.
type Volume struct {
	bits atomic.Uint64
}

func NewVolume(gain float64) *Volume {
	v := &Volume{}
	v.SetGain(gain)
	return v
}

// NewVolumePercent maps 0-100 (or higher) onto a linear gain.
func NewVolumePercent(percent int) *Volume {
	return NewVolume(PercentToGain(percent))
}

func PercentToGain(percent int) float64 {
	if percent < 0 {
		percent = 0
	}
	return float64(percent) / 100
}

func (v *Volume) SetGain(gain float64) {
	if gain < 0 || math.IsNaN(gain) {
		gain = 0
	}
	if math.IsInf(gain, 1) {
		gain = math.MaxFloat64
	}
	v.bits.Store(math.Float64bits(gain))
}

func (v *Volume) Gain() float64 {
	return math.Float64frombits(v.bits.Load())
}

// Process returns a scaled copy of chunk with the same length.
// A trailing odd byte is copied through unscaled.
func (v *Volume) Process(chunk []byte) []byte {
	out := make([]byte, len(chunk))
	v.processInto(out, chunk)
	return out
}

func (v *Volume) processInto(dst, src []byte) {
	gain := v.Gain()

	even := len(src) &^ 1
	for i := 0; i < even; i += 2 {
		sample := int16(binary.LittleEndian.Uint16(src[i:]))
		binary.LittleEndian.PutUint16(dst[i:], uint16(scaleSample(sample, gain)))
	}
	if even < len(src) {
		dst[even] = src[even]
	}
}

func scaleSample(sample int16, gain float64) int16 {
	// clamp before converting; out-of-range float to int is undefined
	scaled := float64(sample) * gain
	if scaled >= maxSample {
		return maxSample
	}
	if scaled <= minSample {
		return minSample
	}
	return int16(scaled)
}

// Reader applies a Volume to everything read from the wrapped reader.
// Samples split across reads are held back until complete so the output
// never loses its 2-byte alignment.
type Reader struct {
	src    io.Reader
	vol    *Volume
	carry  []byte
	ready  []byte
	buf    []byte
	outBuf []byte
	err    error
}

func NewReader(src io.Reader, vol *Volume) *Reader {
	return &Reader{
		src:    src,
		vol:    vol,
		buf:    make([]byte, FrameBytes),
		outBuf: make([]byte, FrameBytes+1),
	}
}

func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for len(r.ready) == 0 {
		if r.err != nil {
			if len(r.carry) > 0 {
				// incomplete final sample goes out unscaled
				r.ready = append(r.outBuf[:0], r.carry...)
				r.carry = nil
				break
			}
			return 0, r.err
		}
		r.fill()
	}

	n := copy(p, r.ready)
	r.ready = r.ready[n:]
	return n, nil
}

func (r *Reader) fill() {
	n, err := r.src.Read(r.buf[len(r.carry):])
	if err != nil {
		r.err = err
	}

	// the carried byte was read into its own slice; move it ahead of the new bytes
	data := r.buf[:len(r.carry)+n]
	copy(data, r.carry)
	whole := len(data) &^ 1

	r.vol.processInto(r.outBuf[:whole], data[:whole])
	r.ready = r.outBuf[:whole]

	if whole < len(data) {
		r.carry = append(r.carry[:0], data[whole])
	} else {
		r.carry = r.carry[:0]
	}
}
