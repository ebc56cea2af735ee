package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hubenschmidt/realtime-relay/internal/metrics"
	"github.com/hubenschmidt/realtime-relay/internal/upstream"
)

// Termination reasons reported by the sender and receiver.
const (
	ReasonEndOfInput      = "end_of_input"
	ReasonTimeoutDeadConn = "timeout_dead_connection"
	ReasonSendError       = "send_error"
	ReasonPeerClosed      = "peer_closed"
	ReasonConnectionLost  = "connection_lost"
	ReasonUpstreamError   = "upstream_error"
	ReasonQueueClosed     = "queue_closed"
	ReasonCanceled        = "canceled"
)

// sender drains the session queue into input_audio_buffer.append events.
type sender struct {
	conn        Upstream
	queue       *Queue
	wait        time.Duration
	sendTimeout time.Duration
	sess        *Session
	log         *slog.Logger

	sent int
}

func (s *sender) run(ctx context.Context) (string, error) {
	s.log.Info("sender started")
	for {
		item, err := s.queue.Pop(ctx, s.wait)
		switch {
		case errors.Is(err, ErrPopTimeout):
			if !s.conn.Alive() {
				s.log.Warn("queue idle and upstream connection dead")
				return ReasonTimeoutDeadConn, nil
			}
			continue
		case errors.Is(err, ErrQueueClosed):
			return ReasonQueueClosed, nil
		case err != nil:
			return ReasonCanceled, err
		}

		if item.End {
			return s.commit(ctx)
		}

		if reason, err := s.send(ctx, item.Frame); reason != "" {
			return reason, err
		}
	}
}

func (s *sender) send(ctx context.Context, frame string) (string, error) {
	sctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	err := s.conn.AppendAudio(sctx, frame)
	cancel()
	s.queue.Ack()

	if err == nil {
		s.sent++
		metrics.FramesSent.Inc()
		return "", nil
	}
	return s.classify(ctx, "append", err)
}

// commit ends user input upstream. Nothing is committed for an empty buffer
// or a disconnected client.
func (s *sender) commit(ctx context.Context) (string, error) {
	if s.sent == 0 {
		s.log.Info("end of input with no audio sent, skipping commit")
		return ReasonEndOfInput, nil
	}
	if !s.sess.emitter.Connected() {
		s.log.Info("client disconnected, skipping commit", "frames", s.sent)
		return ReasonEndOfInput, nil
	}
	sctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	if err := s.conn.CommitInput(sctx); err != nil {
		return s.classify(ctx, "commit", err)
	}
	s.log.Info("input committed", "frames", s.sent)
	return ReasonEndOfInput, nil
}

func (s *sender) classify(ctx context.Context, op string, err error) (string, error) {
	if ctx.Err() != nil {
		return ReasonCanceled, ctx.Err()
	}
	if errors.Is(err, upstream.ErrClosed) {
		s.log.Warn("upstream closed while sending", "op", op)
		return ReasonPeerClosed, nil
	}
	metrics.Errors.WithLabelValues("send", op).Inc()
	s.sess.fail("failed to send audio upstream")
	return ReasonSendError, fmt.Errorf("%s: %w", op, err)
}
