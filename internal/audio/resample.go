package audio

import "math"

const sincTaps = 31

// sincResampler converts mono samples between two fixed rates with linear
// interpolation and a Blackman-windowed sinc low-pass. The kernel is built once
// per session; each chunk is processed independently.
type sincResampler struct {
	srcRate, dstRate int
	ratio            float64
	kernel           []float32
}

func newSincResampler(srcRate, dstRate int) *sincResampler {
	cutoff := float64(min(srcRate, dstRate)) / 2
	// The filter runs at whichever rate is higher: before decimation, after interpolation.
	filterRate := float64(max(srcRate, dstRate))
	return &sincResampler{
		srcRate: srcRate,
		dstRate: dstRate,
		ratio:   float64(srcRate) / float64(dstRate),
		kernel:  blackmanSinc(cutoff/filterRate, sincTaps),
	}
}

// process returns floor(len(samples)*dstRate/srcRate) samples.
func (r *sincResampler) process(samples []float32) []float32 {
	if r.srcRate == r.dstRate || len(samples) == 0 {
		return samples
	}
	if r.srcRate > r.dstRate {
		samples = convolve(samples, r.kernel)
	}

	out := make([]float32, int(float64(len(samples))/r.ratio))
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * r.ratio
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx] + (samples[idx+1]-samples[idx])*frac
	}

	if r.dstRate > r.srcRate {
		out = convolve(out, r.kernel)
	}
	return out
}

// convolve applies a centered FIR kernel, treating samples outside the chunk as silence.
func convolve(samples, kernel []float32) []float32 {
	half := len(kernel) / 2
	out := make([]float32, len(samples))
	for i := range samples {
		lo := max(0, half-i)
		hi := min(len(kernel), len(samples)-i+half)
		var acc float32
		for k := lo; k < hi; k++ {
			acc += samples[i+k-half] * kernel[k]
		}
		out[i] = acc
	}
	return out
}

// blackmanSinc builds a unity-gain low-pass kernel for normalized cutoff fc (cycles per sample).
func blackmanSinc(fc float64, taps int) []float32 {
	half := taps / 2
	span := float64(taps - 1)
	raw := make([]float64, taps)
	var total float64
	for i := range raw {
		v := 2 * fc
		if n := float64(i - half); n != 0 {
			v = math.Sin(2*math.Pi*fc*n) / (math.Pi * n)
		}
		phase := 2 * math.Pi * float64(i) / span
		v *= 0.42 - 0.5*math.Cos(phase) + 0.08*math.Cos(2*phase)
		raw[i] = v
		total += v
	}

	kernel := make([]float32, taps)
	for i, v := range raw {
		kernel[i] = float32(v / total)
	}
	return kernel
}
