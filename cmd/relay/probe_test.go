package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hubenschmidt/realtime-relay/internal/relay"
)

func TestWAVRoundTrip(t *testing.T) {
	pcm := make([]byte, 4800)
	for i := 0; i < len(pcm); i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(i-2400)))
	}
	path := filepath.Join(t.TempDir(), "reply.wav")
	if err := writeWAVFile(path, pcm, 24000); err != nil {
		t.Fatalf("writeWAVFile: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	got, rate, channels, err := readWAV(f)
	if err != nil {
		t.Fatalf("readWAV: %v", err)
	}
	if rate != 24000 || channels != 1 {
		t.Fatalf("rate=%d channels=%d", rate, channels)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("samples differ after WAV decode")
	}

	if _, _, _, err = readWAV(bytes.NewReader([]byte("not a wav file at all, definitely"))); err == nil {
		t.Fatalf("garbage accepted")
	}
}

func TestChunkPCM(t *testing.T) {
	pcm := make([]byte, 24000*2/10*3+6) // 300 ms at 24 kHz mono plus 3 samples
	chunks := chunkPCM(pcm, 24000, 1, 100)
	if len(chunks) != 4 {
		t.Fatalf("chunks = %d", len(chunks))
	}
	for _, c := range chunks[:3] {
		if len(c) != 4800 {
			t.Fatalf("chunk size %d", len(c))
		}
	}
	if len(chunks[3]) != 6 {
		t.Fatalf("tail chunk %d", len(chunks[3]))
	}

	stereo := chunkPCM(make([]byte, 7), 8000, 2, 100)
	if len(stereo) != 1 || len(stereo[0]) != 4 {
		t.Fatalf("stereo chunks not frame aligned: %v", stereo)
	}
}

func probeMsg(event string, data any, at time.Time) probeEvent {
	var ev probeEvent
	ev.msg.Event = event
	ev.msg.Data, _ = json.Marshal(data)
	ev.at = at
	return ev
}

func TestCollectReplyWaitsForEndAfterStop(t *testing.T) {
	stop := time.Now()
	events := make(chan probeEvent, 8)
	events <- probeMsg(relay.EventAudioStreamEnd, struct{}{}, stop.Add(-time.Second))
	events <- probeMsg(relay.EventTextChunk, map[string]string{"text": "hello"}, stop.Add(time.Millisecond))
	events <- probeMsg(relay.EventAudioChunk, map[string]string{"audio": base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4})}, stop.Add(time.Millisecond))
	events <- probeMsg(relay.EventAudioStreamEnd, struct{}{}, stop.Add(2*time.Millisecond))

	var text strings.Builder
	reply, err := collectReply(context.Background(), events, stop, &text)
	if err != nil {
		t.Fatalf("collectReply: %v", err)
	}
	if !bytes.Equal(reply, []byte{1, 2, 3, 4}) {
		t.Fatalf("reply = %v", reply)
	}
	if strings.TrimSpace(text.String()) != "hello" {
		t.Fatalf("text = %q", text.String())
	}
}

func TestCollectReplyProcessingError(t *testing.T) {
	events := make(chan probeEvent, 1)
	events <- probeMsg(relay.EventProcessingError, map[string]string{"error": "boom"}, time.Now())
	if _, err := collectReply(context.Background(), events, time.Now(), &strings.Builder{}); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v", err)
	}
}
