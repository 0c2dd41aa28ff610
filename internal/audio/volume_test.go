package audio

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"math/rand"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplesToBytes(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func bytesToSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func TestVolumeProcessHalfGain(t *testing.T) {
	v := NewVolume(0.5)

	out := v.Process([]byte{0x00, 0x40, 0x00, 0xC0})

	assert.Equal(t, []byte{0x00, 0x20, 0x00, 0xE0}, out)
}

func TestVolumeProcessTruncatesTowardZero(t *testing.T) {
	v := NewVolume(0.5)

	out := bytesToSamples(v.Process(samplesToBytes(3, -3, 1, -1)))

	assert.Equal(t, []int16{1, -1, 0, 0}, out)
}

func TestVolumeProcessClampsAboveUnity(t *testing.T) {
	tests := []struct {
		name string
		gain float64
		in   []int16
		want []int16
	}{
		{name: "double", gain: 2, in: []int16{20000, -20000, 100}, want: []int16{32767, -32767, 200}},
		{name: "min sample", gain: 1, in: []int16{-32768}, want: []int16{-32767}},
		{name: "large gain", gain: 50, in: []int16{1000, -1000, 0}, want: []int16{32767, -32767, 0}},
		{name: "beyond int64 range", gain: 1e15, in: []int16{16384, -16384, 0}, want: []int16{32767, -32767, 0}},
		{name: "infinite gain", gain: math.Inf(1), in: []int16{16384, -16384, 0}, want: []int16{32767, -32767, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVolume(tt.gain)
			assert.Equal(t, tt.want, bytesToSamples(v.Process(samplesToBytes(tt.in...))))
		})
	}
}

func TestVolumeProcessNeverIncreasesMagnitudeBelowUnity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 200; round++ {
		gain := rng.Float64()
		in := make([]int16, 64)
		for i := range in {
			in[i] = int16(rng.Intn(65536) - 32768)
		}

		chunk := samplesToBytes(in...)
		out := NewVolume(gain).Process(chunk)
		require.Len(t, out, len(chunk))

		for i, s := range bytesToSamples(out) {
			assert.LessOrEqual(t, abs(int(s)), abs(int(in[i])), "gain %f sample %d", gain, in[i])
		}
	}
}

func TestVolumeProcessOddTrailingByte(t *testing.T) {
	v := NewVolume(0.5)

	out := v.Process([]byte{0x00, 0x40, 0x7F})

	assert.Equal(t, []byte{0x00, 0x20, 0x7F}, out)
}

func TestVolumeProcessEmptyChunk(t *testing.T) {
	assert.Empty(t, NewVolume(1).Process(nil))
}

func TestVolumeSetGain(t *testing.T) {
	v := NewVolumePercent(30)
	assert.InDelta(t, 0.3, v.Gain(), 1e-9)

	v.SetGain(-1)
	assert.Equal(t, 0.0, v.Gain())

	v.SetGain(1.5)
	assert.Equal(t, 1.5, v.Gain())

	v.SetGain(math.NaN())
	assert.Equal(t, 0.0, v.Gain())

	v.SetGain(math.Inf(1))
	assert.Equal(t, math.MaxFloat64, v.Gain())
}

func TestReaderKeepsAlignmentAcrossOneByteReads(t *testing.T) {
	in := samplesToBytes(16384, -16384, 1000, -1000, 32767)
	r := NewReader(iotest.OneByteReader(bytes.NewReader(in)), NewVolume(0.5))

	out, err := io.ReadAll(r)
	require.NoError(t, err)

	assert.Equal(t, []int16{8192, -8192, 500, -500, 16383}, bytesToSamples(out))
}

func TestReaderSmallDestination(t *testing.T) {
	in := samplesToBytes(16384, -16384)
	r := NewReader(bytes.NewReader(in), NewVolume(0.5))

	var out []byte
	p := make([]byte, 1)
	for {
		n, err := r.Read(p)
		out = append(out, p[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	assert.Equal(t, []byte{0x00, 0x20, 0x00, 0xE0}, out)
}

func TestReaderPassesTrailingByteAtEOF(t *testing.T) {
	in := append(samplesToBytes(200), 0x11)
	r := NewReader(bytes.NewReader(in), NewVolume(0.5))

	out, err := io.ReadAll(r)
	require.NoError(t, err)

	assert.Equal(t, append(samplesToBytes(100), 0x11), out)
}

type chunkReader struct {
	chunks [][]byte
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks = c.chunks[1:]
	return n, nil
}

func TestReaderGainChangeAppliesToNextChunk(t *testing.T) {
	vol := NewVolume(1)
	r := NewReader(&chunkReader{chunks: [][]byte{samplesToBytes(1000), samplesToBytes(1000)}}, vol)

	first := make([]byte, 2)
	_, err := io.ReadFull(r, first)
	require.NoError(t, err)
	assert.Equal(t, []int16{1000}, bytesToSamples(first))

	vol.SetGain(0.5)

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []int16{500}, bytesToSamples(rest))
}

func TestReaderPropagatesError(t *testing.T) {
	r := NewReader(iotest.ErrReader(io.ErrUnexpectedEOF), NewVolume(1))

	_, err := r.Read(make([]byte, 4))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
