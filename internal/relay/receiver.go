package relay

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hubenschmidt/realtime-relay/internal/metrics"
	"github.com/hubenschmidt/realtime-relay/internal/trace"
	"github.com/hubenschmidt/realtime-relay/internal/upstream"
)

// receiver translates upstream events into downstream events.
type receiver struct {
	conn        Upstream
	recvTimeout time.Duration
	sess        *Session
	tracer      *trace.Tracer
	log         *slog.Logger

	// announced is set once processing_started went out for the current turn.
	announced    bool
	speechEnd    time.Time
	firstAudio   bool
	runID        string
	runStart     time.Time
	runText      strings.Builder
	runAudioSize int64
}

func (r *receiver) run(ctx context.Context) (string, error) {
	r.log.Info("receiver started")
	defer r.endRun("interrupted")

	for {
		rctx, cancel := context.WithTimeout(ctx, r.recvTimeout)
		ev, err := r.conn.Recv(rctx)
		cancel()

		if err != nil {
			reason, stop, retErr := r.recvError(ctx, err)
			if stop {
				return reason, retErr
			}
			continue
		}

		metrics.UpstreamEvents.WithLabelValues(ev.Type).Inc()
		if ev.Type == upstream.EventTypeError {
			msg := ev.ErrorMessage()
			r.sess.fail("upstream API error: " + msg)
			if ev.Error != nil {
				return ReasonUpstreamError, ev.Error.ToError()
			}
			return ReasonUpstreamError, &upstream.Error{Message: msg}
		}
		r.handle(ev)
	}
}

// recvError decides whether a receive failure ends the receiver.
func (r *receiver) recvError(ctx context.Context, err error) (string, bool, error) {
	switch {
	case ctx.Err() != nil:
		return ReasonCanceled, true, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		if r.conn.Alive() {
			r.log.Warn("no upstream event within timeout, connection alive", "timeout", r.recvTimeout)
			return "", false, nil
		}
		r.sess.fail("upstream receive timed out")
		return ReasonTimeoutDeadConn, true, err
	case errors.Is(err, upstream.ErrMalformedEvent):
		metrics.Errors.WithLabelValues("receive", "malformed").Inc()
		r.log.Warn("skipping malformed upstream event", "error", err)
		return "", false, nil
	case errors.Is(err, upstream.ErrClosed):
		r.log.Info("upstream connection closed")
		return ReasonPeerClosed, true, nil
	default:
		metrics.Errors.WithLabelValues("receive", "connection_lost").Inc()
		r.sess.fail("upstream connection lost")
		return ReasonConnectionLost, true, err
	}
}

func (r *receiver) handle(ev *upstream.ServerEvent) {
	switch ev.Type {
	case upstream.EventTypeSpeechStarted:
		r.announced = false
		r.sess.emit(EventSpeechStarted, empty{})

	case upstream.EventTypeSpeechStopped:
		r.sess.emit(EventSpeechStopped, empty{})
		if !r.announced {
			r.announced = true
			r.speechEnd = time.Now()
			r.firstAudio = false
			r.sess.emit(EventProcessingStarted, empty{})
		}

	case upstream.EventTypeResponseCreated:
		r.endRun("superseded")
		responseID := ""
		if ev.Response != nil {
			responseID = ev.Response.ID
		}
		r.runID = r.tracer.StartRun(responseID)
		r.runStart = time.Now()
		r.sess.emit(EventResponseStarting, empty{})

	case upstream.EventTypeResponseAudioDelta, upstream.EventTypeResponseOutputAudioDelta:
		if ev.Delta == "" {
			r.log.Warn("audio delta without payload")
			return
		}
		r.observeFirstAudio()
		r.runAudioSize += int64(len(ev.Delta))
		r.sess.emit(EventAudioChunk, audioPayload{Audio: ev.Delta})

	case upstream.EventTypeResponseTextDelta, upstream.EventTypeResponseOutputTextDelta:
		if ev.Delta == "" {
			return
		}
		r.runText.WriteString(ev.Delta)
		r.sess.emit(EventTextChunk, textPayload{Text: ev.Delta})

	case upstream.EventTypeResponseDone:
		status := upstream.ResponseStatusCompleted
		if ev.Response != nil && ev.Response.Status != "" {
			status = ev.Response.Status
		}
		if status == upstream.ResponseStatusCancelled {
			r.sess.emit(EventResponseCanceled, empty{})
		}
		r.sess.emit(EventAudioStreamEnd, empty{})
		r.announced = false
		r.endRun(status)

	default:
		r.log.Debug("ignoring upstream event", "type", ev.Type)
	}
}

func (r *receiver) observeFirstAudio() {
	if r.firstAudio || r.speechEnd.IsZero() {
		return
	}
	r.firstAudio = true
	metrics.StageDuration.WithLabelValues("first_audio").Observe(time.Since(r.speechEnd).Seconds())
}

func (r *receiver) endRun(status string) {
	if r.runID == "" {
		return
	}
	ms := float64(time.Since(r.runStart).Microseconds()) / 1000
	r.tracer.EndRun(r.runID, ms, r.runText.String(), r.runAudioSize, status)
	r.runID = ""
	r.runText.Reset()
	r.runAudioSize = 0
}
