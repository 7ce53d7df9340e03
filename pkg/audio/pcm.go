// Package audio converts little-endian 16-bit PCM between the format a client
// captures and the mono format a speech recognizer expects.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrMisaligned is returned for chunks that do not hold whole sample frames.
var ErrMisaligned = errors.New("audio: chunk is not a whole number of sample frames")

const bytesPerSample = 2

// Format describes a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}

func (f Format) frameSize() int { return f.Channels * bytesPerSample }

// Converter turns chunks in From into mono chunks at To.SampleRate. Create
// one per stream; it keeps no state between chunks but is not meant to be
// shared.
type Converter struct {
	From Format
	To   Format
}

// NewConverter validates both formats. The target must be mono.
func NewConverter(from, to Format) (*Converter, error) {
	if from.SampleRate <= 0 || from.Channels <= 0 {
		return nil, fmt.Errorf("audio: invalid source format %s", from)
	}
	if to.SampleRate <= 0 || to.Channels != 1 {
		return nil, fmt.Errorf("audio: target format %s must be mono with a positive rate", to)
	}
	return &Converter{From: from, To: to}, nil
}

// Passthrough reports whether Convert returns its input unchanged.
func (c *Converter) Passthrough() bool {
	return c.From == c.To
}

// Convert downmixes then resamples chunk. Downmixing first keeps the
// interpolation on a single channel.
func (c *Converter) Convert(chunk []byte) ([]byte, error) {
	if len(chunk)%c.From.frameSize() != 0 {
		return nil, fmt.Errorf("%w: %d bytes of %s", ErrMisaligned, len(chunk), c.From)
	}
	if c.Passthrough() {
		return chunk, nil
	}
	return Resample(Downmix(chunk, c.From.Channels), c.From.SampleRate, c.To.SampleRate), nil
}

// Downmix averages interleaved channels into mono. A trailing partial frame
// is dropped.
func Downmix(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frame := channels * bytesPerSample
	frames := len(pcm) / frame
	out := make([]byte, frames*bytesPerSample)
	for i := range frames {
		var sum int32
		for ch := range channels {
			off := i*frame + ch*bytesPerSample
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[off:])))
		}
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(clamp16(sum/int32(channels))))
	}
	return out
}

// Resample converts mono PCM from src to dst Hz by linear interpolation.
// Non-positive or equal rates return pcm unchanged.
func Resample(pcm []byte, src, dst int) []byte {
	if src <= 0 || dst <= 0 || src == dst || len(pcm) < bytesPerSample {
		return pcm
	}
	in := len(pcm) / bytesPerSample
	n := int(int64(in) * int64(dst) / int64(src))
	out := make([]byte, n*bytesPerSample)
	step := float64(src) / float64(dst)

	sample := func(i int) float64 {
		if i >= in {
			i = in - 1
		}
		return float64(int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:])))
	}
	for i := range n {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		v := sample(j)*(1-frac) + sample(j+1)*frac
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(clamp16(int32(math.Round(v)))))
	}
	return out
}

func clamp16(v int32) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
