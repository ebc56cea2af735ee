package main

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/hubenschmidt/realtime-relay/internal/relay"
)

func newLoadtestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Run concurrent synthetic clients against a relay",
		Long: `Run concurrent clients that each stream synthetic speech-band audio through
the relay, stop, and wait for the reply. Reports time to first reply audio
and total turn time percentiles.`,
		RunE: runLoadtest,
	}
	f := cmd.Flags()
	f.String("url", "ws://localhost:8000/ws", "relay WebSocket URL")
	f.Int("concurrency", 10, "number of concurrent clients")
	f.Duration("duration", 30*time.Second, "test duration")
	f.Int("sample-rate", 24000, "client sample rate (exercises resampling when not 16000)")
	f.Duration("audio", 3*time.Second, "synthetic audio per turn")
	return cmd
}

type callResult struct {
	success bool
	ttfaMs  float64
	totalMs float64
	err     string
}

func runLoadtest(cmd *cobra.Command, _ []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	setupLogging(orDefault(level, "warn"))

	f := cmd.Flags()
	url, _ := f.GetString("url")
	concurrency, _ := f.GetInt("concurrency")
	duration, _ := f.GetDuration("duration")
	rate, _ := f.GetInt("sample-rate")
	audioLen, _ := f.GetDuration("audio")

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Load test: %d concurrent clients for %s\n", concurrency, duration)
	fmt.Fprintf(out, "Relay: %s | Sample rate: %d\n\n", url, rate)

	var mu sync.Mutex
	var results []callResult
	var wg sync.WaitGroup

	deadline := time.Now().Add(duration)
	pcm := generateSyntheticAudio(rate, audioLen)

	for range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for time.Now().Before(deadline) {
				r := runCall(cmd.Context(), url, rate, pcm)
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	printSummary(out, results)
	return nil
}

func runCall(ctx context.Context, url string, rate int, pcm []byte) callResult {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return callResult{err: fmt.Sprintf("dial: %v", err)}
	}
	defer conn.Close()

	events := make(chan probeEvent, 4096)
	go readProbeEvents(conn, events)

	if err = sendEvent(conn, "start_recording", relay.StartRequest{SampleRate: &rate}); err != nil {
		return callResult{err: fmt.Sprintf("start: %v", err)}
	}

	const chunkMs = 20
	for _, c := range chunkPCM(pcm, rate, 1, chunkMs) {
		if err = sendEvent(conn, "audio_input_chunk", map[string]string{"audio": base64.StdEncoding.EncodeToString(c)}); err != nil {
			return callResult{err: fmt.Sprintf("send audio: %v", err)}
		}
		time.Sleep(chunkMs * time.Millisecond)
	}

	stoppedAt := time.Now()
	if err = sendEvent(conn, "stop_recording", struct{}{}); err != nil {
		return callResult{err: fmt.Sprintf("stop: %v", err)}
	}

	var firstAudio time.Time
	for {
		select {
		case <-ctx.Done():
			return callResult{err: "timeout waiting for reply"}
		case ev := <-events:
			if ev.err != nil {
				return callResult{err: ev.err.Error()}
			}
			switch ev.msg.Event {
			case relay.EventAudioChunk:
				if firstAudio.IsZero() && ev.at.After(stoppedAt) {
					firstAudio = ev.at
				}
			case relay.EventProcessingError:
				return callResult{err: string(ev.msg.Data)}
			case relay.EventAudioStreamEnd:
				if !ev.at.After(stoppedAt) {
					continue
				}
				r := callResult{success: true, totalMs: msSince(stoppedAt, ev.at)}
				if !firstAudio.IsZero() {
					r.ttfaMs = msSince(stoppedAt, firstAudio)
				}
				return r
			}
		}
	}
}

func msSince(from, to time.Time) float64 {
	return float64(to.Sub(from).Microseconds()) / 1000
}

// generateSyntheticAudio is a 440 Hz tone with light noise, loud enough to trip server VAD.
func generateSyntheticAudio(sampleRate int, dur time.Duration) []byte {
	numSamples := int(dur.Seconds() * float64(sampleRate))
	buf := make([]byte, numSamples*2)

	for i := range numSamples {
		t := float64(i) / float64(sampleRate)
		sample := math.Sin(2*math.Pi*440*t)*0.3 + (rand.Float64()-0.5)*0.05
		val := int16(sample * math.MaxInt16)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(val))
	}
	return buf
}

func printSummary(out io.Writer, results []callResult) {
	var succeeded, failed int
	var ttfaAll, totalAll []float64
	errs := map[string]int{}

	for _, r := range results {
		if !r.success {
			failed++
			errs[r.err]++
			continue
		}
		succeeded++
		if r.ttfaMs > 0 {
			ttfaAll = append(ttfaAll, r.ttfaMs)
		}
		totalAll = append(totalAll, r.totalMs)
	}

	fmt.Fprintf(out, "\n=== Load Test Results ===\n")
	fmt.Fprintf(out, "Turns completed: %d\n", succeeded)
	fmt.Fprintf(out, "Turns failed:    %d\n", failed)
	for msg, n := range errs {
		fmt.Fprintf(out, "  %4d x %s\n", n, msg)
	}

	if len(totalAll) == 0 {
		fmt.Fprintln(out, "No successful turns to report metrics")
		return
	}

	fmt.Fprintf(out, "\n%-6s %8s %8s %8s\n", "Stage", "p50", "p95", "p99")
	if len(ttfaAll) > 0 {
		fmt.Fprintf(out, "%-6s %8.0fms %8.0fms %8.0fms\n", "TTFA", percentile(ttfaAll, 50), percentile(ttfaAll, 95), percentile(ttfaAll, 99))
	}
	fmt.Fprintf(out, "%-6s %8.0fms %8.0fms %8.0fms\n", "Turn", percentile(totalAll, 50), percentile(totalAll, 95), percentile(totalAll, 99))
}

func percentile(data []float64, pct float64) float64 {
	sort.Float64s(data)
	idx := int(math.Ceil(pct/100*float64(len(data)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(data) {
		idx = len(data) - 1
	}
	return data[idx]
}
