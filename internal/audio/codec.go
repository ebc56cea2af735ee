package audio

import (
	"errors"
	"fmt"
)

type Codec string

const (
	CodecPCM      Codec = "pcm"
	CodecG711Ulaw Codec = "g711_ulaw"
	CodecG711Alaw Codec = "g711_alaw"
)

// TargetRate is the sample rate every frame is normalized to before it goes upstream.
const TargetRate = 16000

var (
	// ErrEmptyChunk is returned for zero-length input.
	ErrEmptyChunk = errors.New("empty audio chunk")
	// ErrMisaligned is returned when the input length is not a whole number of frames.
	ErrMisaligned = errors.New("audio chunk not aligned to frame width")
)

// decoder holds a codec's decode function, its bytes per sample and its fixed output sample rate.
// A rate of 0 means "use the caller-supplied sampleRate" (e.g. PCM passthrough).
type decoder struct {
	fn    func([]byte) []float32
	width int
	rate  int
}

// decoders maps each supported codec to its decode function and output sample rate.
var decoders = map[Codec]decoder{
	CodecPCM:      {fn: decodePCM, width: 2, rate: 0},
	CodecG711Ulaw: {fn: decodeG711Ulaw, width: 1, rate: 8000},
	CodecG711Alaw: {fn: decodeG711Alaw, width: 1, rate: 8000},
}

// Format describes the audio a client declared at start_recording.
type Format struct {
	Codec      Codec `json:"codec,omitempty"`
	SampleRate int   `json:"sample_rate"`
	Channels   int   `json:"channels,omitempty"`
}

// Validate reports whether the format can be decoded.
func (f Format) Validate() error {
	if _, ok := decoders[f.codec()]; !ok {
		return fmt.Errorf("unsupported codec: %s", f.Codec)
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if ch := f.channels(); ch != 1 && ch != 2 {
		return fmt.Errorf("unsupported channel count: %d", f.Channels)
	}
	return nil
}

// FrameWidth is the number of bytes per multi-channel frame.
func (f Format) FrameWidth() int {
	return decoders[f.codec()].width * f.channels()
}

func (f Format) codec() Codec {
	if f.Codec == "" {
		return CodecPCM
	}
	return f.Codec
}

func (f Format) channels() int {
	if f.Channels <= 0 {
		return 1
	}
	return f.Channels
}

// decodedRate is the sample rate of the decoder's output.
func (f Format) decodedRate() int {
	if r := decoders[f.codec()].rate; r != 0 {
		return r
	}
	return f.SampleRate
}

// isTarget reports whether the input is already mono PCM16 at TargetRate.
func (f Format) isTarget() bool {
	return f.codec() == CodecPCM && f.channels() == 1 && f.SampleRate == TargetRate
}

// Decode converts encoded audio bytes to mono float32 PCM samples normalized to [-1, 1].
// Returns samples and the sample rate.
func Decode(data []byte, f Format) ([]float32, int, error) {
	dec, ok := decoders[f.codec()]
	if !ok {
		return nil, 0, fmt.Errorf("unsupported codec: %s", f.Codec)
	}
	if len(data) == 0 {
		return nil, 0, ErrEmptyChunk
	}
	if len(data)%(dec.width*f.channels()) != 0 {
		return nil, 0, fmt.Errorf("%w: %d bytes, frame width %d", ErrMisaligned, len(data), dec.width*f.channels())
	}
	samples := dec.fn(data)
	if f.channels() == 2 {
		samples = downmix(samples)
	}
	return samples, f.decodedRate(), nil
}
