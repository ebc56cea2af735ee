package main

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/hubenschmidt/realtime-relay/internal/relay"
)

// replyRate is the sample rate of audio_chunk payloads from the upstream.
const replyRate = 24000

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Stream a WAV file through a running relay",
		Long: `Stream a 16-bit WAV file through a running relay and collect the reply.

The file is sent as audio_input_chunk events at its own sample rate, followed
by stop_recording. Text deltas are printed; audio deltas are written to --out.

Examples:
  relay probe --in question.wav --out reply.wav
  relay probe --url ws://relay:8000/ws --in question.wav --realtime --vad semantic_vad`,
		RunE: runProbe,
	}
	f := cmd.Flags()
	f.String("url", "ws://localhost:8000/ws", "relay WebSocket URL")
	f.String("in", "", "input WAV file (16-bit PCM)")
	f.String("out", "", "write the reply audio to this WAV file")
	f.Int("chunk-ms", 100, "chunk duration")
	f.Bool("realtime", false, "pace chunks at playback speed")
	f.String("vad", "", "send update_vad_config with this type first")
	f.Duration("timeout", 60*time.Second, "overall deadline")
	cmd.MarkFlagRequired("in")
	return cmd
}

type probeEvent struct {
	msg struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	at  time.Time
	err error
}

func runProbe(cmd *cobra.Command, _ []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	setupLogging(level)

	f := cmd.Flags()
	url, _ := f.GetString("url")
	in, _ := f.GetString("in")
	out, _ := f.GetString("out")
	chunkMs, _ := f.GetInt("chunk-ms")
	realtime, _ := f.GetBool("realtime")
	vad, _ := f.GetString("vad")
	timeout, _ := f.GetDuration("timeout")

	file, err := os.Open(in)
	if err != nil {
		return err
	}
	pcm, rate, channels, err := readWAV(file)
	file.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	events := make(chan probeEvent, 4096)
	go readProbeEvents(conn, events)

	if vad != "" {
		if err = sendEvent(conn, "update_vad_config", relay.VADConfig{Type: vad}); err != nil {
			return err
		}
	}
	if err = sendEvent(conn, "start_recording", relay.StartRequest{SampleRate: &rate, Channels: channels}); err != nil {
		return err
	}

	chunks := chunkPCM(pcm, rate, channels, chunkMs)
	slog.Info("streaming", "file", in, "sample_rate", rate, "channels", channels, "chunks", len(chunks))
	for _, c := range chunks {
		if err = sendEvent(conn, "audio_input_chunk", map[string]string{"audio": base64.StdEncoding.EncodeToString(c)}); err != nil {
			return err
		}
		if realtime {
			time.Sleep(time.Duration(chunkMs) * time.Millisecond)
		}
	}
	stoppedAt := time.Now()
	if err = sendEvent(conn, "stop_recording", struct{}{}); err != nil {
		return err
	}

	reply, err := collectReply(ctx, events, stoppedAt, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	slog.Info("reply received", "audio_bytes", len(reply), "duration_ms", len(reply)*1000/(replyRate*2))
	if out != "" && len(reply) > 0 {
		if err = writeWAVFile(out, reply, replyRate); err != nil {
			return err
		}
		slog.Info("reply written", "file", out)
	}
	return nil
}

// collectReply gathers audio until an audio_stream_end that arrives after stoppedAt.
func collectReply(ctx context.Context, events <-chan probeEvent, stoppedAt time.Time, textOut io.Writer) ([]byte, error) {
	var reply []byte
	for {
		select {
		case <-ctx.Done():
			return reply, ctx.Err()
		case ev := <-events:
			if ev.err != nil {
				return reply, ev.err
			}
			switch ev.msg.Event {
			case relay.EventAudioChunk:
				var p struct {
					Audio string `json:"audio"`
				}
				if err := json.Unmarshal(ev.msg.Data, &p); err != nil {
					return reply, err
				}
				b, err := base64.StdEncoding.DecodeString(p.Audio)
				if err != nil {
					return reply, fmt.Errorf("audio_chunk: %w", err)
				}
				reply = append(reply, b...)
			case relay.EventTextChunk:
				var p struct {
					Text string `json:"text"`
				}
				if json.Unmarshal(ev.msg.Data, &p) == nil {
					fmt.Fprint(textOut, p.Text)
				}
			case relay.EventProcessingError, relay.EventVADConfigUpdateError:
				return reply, fmt.Errorf("%s: %s", ev.msg.Event, ev.msg.Data)
			case relay.EventAudioStreamEnd:
				if ev.at.After(stoppedAt) {
					fmt.Fprintln(textOut)
					return reply, nil
				}
			default:
				slog.Debug("event", "name", ev.msg.Event)
			}
		}
	}
}

func readProbeEvents(conn *websocket.Conn, events chan<- probeEvent) {
	for {
		var ev probeEvent
		if err := conn.ReadJSON(&ev.msg); err != nil {
			events <- probeEvent{err: fmt.Errorf("relay connection: %w", err)}
			return
		}
		ev.at = time.Now()
		events <- ev
	}
}

func sendEvent(conn *websocket.Conn, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(map[string]any{"event": event, "data": json.RawMessage(payload)})
}

// readWAV returns interleaved little-endian PCM16 plus the file's rate and channel count.
func readWAV(r io.ReadSeeker) ([]byte, int, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, 0, errors.New("not a valid WAV file")
	}
	if dec.BitDepth != 16 {
		return nil, 0, 0, fmt.Errorf("unsupported bit depth %d, want 16", dec.BitDepth)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode: %w", err)
	}

	pcm := make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s)))
	}
	return pcm, int(dec.SampleRate), int(dec.NumChans), nil
}

func writeWAVFile(path string, pcm []byte, rate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err = writeWAV(f, pcm, rate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeWAV encodes mono little-endian PCM16 as a 16-bit WAV stream.
func writeWAV(w io.WriteSeeker, pcm []byte, rate int) error {
	data := make([]int, len(pcm)/2)
	for i := range data {
		data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	enc := wav.NewEncoder(w, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return enc.Close()
}

// chunkPCM splits pcm into chunks of ms milliseconds on frame boundaries.
func chunkPCM(pcm []byte, rate, channels, ms int) [][]byte {
	frame := 2 * channels
	size := rate * ms / 1000 * frame
	if size < frame {
		size = frame
	}
	var chunks [][]byte
	for len(pcm) > 0 {
		n := min(size, len(pcm))
		n -= n % frame
		if n == 0 {
			break
		}
		chunks = append(chunks, pcm[:n])
		pcm = pcm[n:]
	}
	return chunks
}
