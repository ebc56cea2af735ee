package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Engine names accepted by NewConverter.
const (
	EngineSinc = "sinc"
	EngineSoxr = "soxr"
)

// Converter turns one client chunk into mono PCM16 at TargetRate.
// Implementations may keep state between chunks and are not safe for concurrent use.
type Converter interface {
	Convert(data []byte) ([]byte, error)
}

type converterFactory func(src Format) (Converter, error)

var engines = NewRouter(map[string]converterFactory{
	EngineSinc: newSincConverter,
	EngineSoxr: newSoxrConverter,
}, EngineSinc)

// NewConverter builds a converter for src using the named engine.
// Unknown engine names fall back to the sinc engine.
func NewConverter(engine string, src Format) (Converter, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	factory, err := engines.Route(engine)
	if err != nil {
		return nil, err
	}
	return factory(src)
}

// Engines returns the registered engine names.
func Engines() []string {
	return engines.Engines()
}

// HasEngine reports whether name is a registered engine.
func HasEngine(name string) bool {
	return engines.Has(name)
}

type sincConverter struct {
	src Format
	rs  *sincResampler
}

func newSincConverter(src Format) (Converter, error) {
	return &sincConverter{src: src, rs: newSincResampler(src.decodedRate(), TargetRate)}, nil
}

func (c *sincConverter) Convert(data []byte) ([]byte, error) {
	if c.src.isTarget() {
		if len(data) == 0 {
			return nil, ErrEmptyChunk
		}
		if len(data)%2 != 0 {
			return nil, fmt.Errorf("%w: %d bytes, frame width 2", ErrMisaligned, len(data))
		}
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}
	samples, _, err := Decode(data, c.src)
	if err != nil {
		return nil, err
	}
	return EncodePCM16(c.rs.process(samples)), nil
}

// soxrConverter keeps one streaming resampler per session so filter state
// carries across chunk boundaries.
type soxrConverter struct {
	src       Format
	rate      int
	resampler resampling.Resampler
	in        []float64
}

func newSoxrConverter(src Format) (Converter, error) {
	rate := src.decodedRate()
	c := &soxrConverter{src: src, rate: rate}
	if rate == TargetRate {
		return c, nil
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(rate),
		OutputRate: float64(TargetRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("create resampler: %w", err)
	}
	c.resampler = r
	return c, nil
}

func (c *soxrConverter) Convert(data []byte) ([]byte, error) {
	samples, _, err := Decode(data, c.src)
	if err != nil {
		return nil, err
	}
	if c.resampler == nil {
		return EncodePCM16(samples), nil
	}

	c.in = c.in[:0]
	for _, s := range samples {
		c.in = append(c.in, float64(s))
	}
	out, err := c.resampler.Process(c.in)
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}

	res := make([]float32, len(out))
	for i, s := range out {
		res[i] = float32(s)
	}
	return EncodePCM16(res), nil
}
