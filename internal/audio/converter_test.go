package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func sinePCM(rate, ms int, freq float64) []byte {
	n := rate * ms / 1000
	buf := make([]byte, n*2)
	for i := range n {
		v := 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(v*math.MaxInt16)))
	}
	return buf
}

func TestConvertIdentityAtTargetRate(t *testing.T) {
	in := sinePCM(TargetRate, 100, 440)
	// include the extremes, which a float round trip would not preserve
	binary.LittleEndian.PutUint16(in[0:], uint16(0x8000))
	binary.LittleEndian.PutUint16(in[2:], uint16(0x7fff))

	c, err := NewConverter(EngineSinc, Format{Codec: CodecPCM, SampleRate: TargetRate, Channels: 1})
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}
	out, err := c.Convert(in)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Fatalf("identity conversion changed %d bytes of audio", len(in))
	}
	out[0] = 1
	if in[0] == 1 {
		t.Fatalf("output aliases the input buffer")
	}
}

func TestConvertRatio(t *testing.T) {
	for _, rate := range []int{8000, 22050, 24000, 44100, 48000} {
		in := sinePCM(rate, 100, 440)
		c, err := NewConverter(EngineSinc, Format{SampleRate: rate})
		if err != nil {
			t.Fatalf("rate %d: NewConverter: %v", rate, err)
		}
		out, err := c.Convert(in)
		if err != nil {
			t.Fatalf("rate %d: Convert: %v", rate, err)
		}
		if len(out)%2 != 0 {
			t.Fatalf("rate %d: output length %d not sample aligned", rate, len(out))
		}
		want := float64(len(in)) * TargetRate / float64(rate)
		if math.Abs(float64(len(out))-want) > 4 {
			t.Fatalf("rate %d: output %d bytes, want about %.1f", rate, len(out), want)
		}
	}
}

func TestConvert24kChunkSize(t *testing.T) {
	c, err := NewConverter("", Format{SampleRate: 24000})
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}
	out, err := c.Convert(sinePCM(24000, 100, 300))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(out) < 2130 || len(out) > 2134 {
		t.Fatalf("got %d bytes, want ~2133", len(out))
	}
}

func TestConvertRejectsMisalignedChunk(t *testing.T) {
	c, err := NewConverter(EngineSinc, Format{SampleRate: 24000})
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}
	if _, err = c.Convert([]byte{1, 2, 3}); !errors.Is(err, ErrMisaligned) {
		t.Fatalf("expected ErrMisaligned, got %v", err)
	}
	if _, err = c.Convert(nil); !errors.Is(err, ErrEmptyChunk) {
		t.Fatalf("expected ErrEmptyChunk, got %v", err)
	}

	stereo, err := NewConverter(EngineSinc, Format{SampleRate: 48000, Channels: 2})
	if err != nil {
		t.Fatalf("NewConverter stereo: %v", err)
	}
	if _, err = stereo.Convert(make([]byte, 6)); !errors.Is(err, ErrMisaligned) {
		t.Fatalf("expected ErrMisaligned for half a stereo frame, got %v", err)
	}
}

func TestConvertStereoDownmix(t *testing.T) {
	frame := make([]byte, 8)
	binary.LittleEndian.PutUint16(frame[0:], uint16(int16(1000)))
	binary.LittleEndian.PutUint16(frame[2:], uint16(int16(3000)))
	negLeft, negRight := int16(-1000), int16(-3000)
	binary.LittleEndian.PutUint16(frame[4:], uint16(negLeft))
	binary.LittleEndian.PutUint16(frame[6:], uint16(negRight))

	c, err := NewConverter(EngineSinc, Format{SampleRate: TargetRate, Channels: 2})
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}
	out, err := c.Convert(frame)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("got %d bytes, want 4", len(out))
	}
	first := int16(binary.LittleEndian.Uint16(out[0:]))
	second := int16(binary.LittleEndian.Uint16(out[2:]))
	if first < 1995 || first > 2000 || second > -1995 || second < -2000 {
		t.Fatalf("downmix got %d,%d want ~2000,-2000", first, second)
	}
}

func TestConvertG711Ulaw(t *testing.T) {
	c, err := NewConverter(EngineSinc, Format{Codec: CodecG711Ulaw, SampleRate: 8000})
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}
	in := bytes.Repeat([]byte{0xff}, 800) // μ-law silence, 100ms at 8kHz
	out, err := c.Convert(in)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(out) != 3200 {
		t.Fatalf("got %d bytes, want 3200", len(out))
	}
	for i := 0; i < len(out); i += 2 {
		if s := int16(binary.LittleEndian.Uint16(out[i:])); s != 0 {
			t.Fatalf("sample %d = %d, want silence", i/2, s)
		}
	}
}

func TestFormatValidate(t *testing.T) {
	cases := []struct {
		name string
		f    Format
		ok   bool
	}{
		{"defaults", Format{SampleRate: 24000}, true},
		{"zero rate", Format{}, false},
		{"negative rate", Format{SampleRate: -1}, false},
		{"unknown codec", Format{Codec: "opus", SampleRate: 48000}, false},
		{"too many channels", Format{SampleRate: 48000, Channels: 6}, false},
	}
	for _, tc := range cases {
		err := tc.f.Validate()
		if (err == nil) != tc.ok {
			t.Errorf("%s: Validate() = %v, ok want %v", tc.name, err, tc.ok)
		}
	}
}

func TestUnknownEngineFallsBackToSinc(t *testing.T) {
	c, err := NewConverter("does-not-exist", Format{SampleRate: 24000})
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}
	if _, ok := c.(*sincConverter); !ok {
		t.Fatalf("got %T, want *sincConverter", c)
	}
	if got := Engines(); len(got) != 2 || got[0] != EngineSinc || got[1] != EngineSoxr {
		t.Fatalf("Engines() = %v", got)
	}
}

func TestBlackmanSincUnityGain(t *testing.T) {
	var sum float32
	for _, k := range blackmanSinc(8000.0/24000, sincTaps) {
		sum += k
	}
	if math.Abs(float64(sum-1)) > 1e-5 {
		t.Fatalf("kernel sum = %v, want 1", sum)
	}
}

func TestG711Symmetry(t *testing.T) {
	for code := range 128 {
		if ulawTable[code] != -ulawTable[code|0x80] {
			t.Fatalf("ulaw %#x: %d vs %d", code, ulawTable[code], ulawTable[code|0x80])
		}
		if alawTable[code] != -alawTable[code|0x80] {
			t.Fatalf("alaw %#x: %d vs %d", code, alawTable[code], alawTable[code|0x80])
		}
	}
	if alawTable[0xD5] != 8 {
		t.Fatalf("alaw 0xd5 = %d, want 8", alawTable[0xD5])
	}
}
