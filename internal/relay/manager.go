package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hubenschmidt/realtime-relay/internal/audio"
	"github.com/hubenschmidt/realtime-relay/internal/metrics"
	"github.com/hubenschmidt/realtime-relay/internal/prompts"
	"github.com/hubenschmidt/realtime-relay/internal/upstream"
)

// manager drives a session from connect to cleanup.
type manager struct {
	cfg      Config
	dialer   Dialer
	registry *Registry
}

type taskResult struct {
	task   string
	reason string
	err    error
	start  time.Time
}

func (m *manager) run(ctx context.Context, sess *Session) {
	reason := ReasonCanceled
	defer func() { m.cleanup(sess, reason) }()

	conn, err := m.connect(ctx, sess)
	if err != nil {
		reason = "connect_failed"
		return
	}
	sess.setUpstream(conn)

	if err = m.configure(ctx, sess, conn); err != nil {
		reason = "configure_failed"
		return
	}

	sess.setState(StateActive)
	reason = m.race(ctx, sess, conn)
}

func (m *manager) connect(ctx context.Context, sess *Session) (Upstream, error) {
	sess.setState(StateConnecting)
	start := time.Now()

	dctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	conn, err := m.dialer.Dial(dctx)
	if err != nil {
		metrics.Errors.WithLabelValues("connect", errorType(err)).Inc()
		sess.tracer.RecordSpan("", "connect", start, "error", err.Error())
		sess.log.Error("upstream connect failed", "error", err)
		sess.fail("failed to connect to the inference service")
		return nil, err
	}

	metrics.StageDuration.WithLabelValues("connect").Observe(time.Since(start).Seconds())
	sess.tracer.RecordSpan("", "connect", start, "ok", "")
	sess.log.Info("upstream connected", "duration_ms", time.Since(start).Milliseconds())
	return conn, nil
}

func (m *manager) configure(ctx context.Context, sess *Session, conn Upstream) error {
	sess.setState(StateConfiguring)
	start := time.Now()

	err := m.awaitCreated(ctx, conn)
	if err == nil {
		sctx, cancel := context.WithTimeout(ctx, m.cfg.ConfigureTimeout)
		err = conn.UpdateSession(sctx, m.sessionConfig(sess))
		cancel()
	}
	if err != nil {
		metrics.Errors.WithLabelValues("configure", errorType(err)).Inc()
		sess.tracer.RecordSpan("", "configure", start, "error", err.Error())
		sess.log.Error("upstream configure failed", "error", err)
		sess.fail(configureMessage(err))
		return err
	}

	metrics.StageDuration.WithLabelValues("configure").Observe(time.Since(start).Seconds())
	sess.tracer.RecordSpan("", "configure", start, "ok", "")
	sess.log.Info("upstream session configured", "upstream_session_id", conn.SessionID(), "vad", sess.VAD.Type)
	return nil
}

// awaitCreated blocks until session.created. Anything else before it is skipped.
func (m *manager) awaitCreated(ctx context.Context, conn Upstream) error {
	wctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	for {
		ev, err := conn.Recv(wctx)
		switch {
		case errors.Is(err, upstream.ErrMalformedEvent):
			continue
		case err != nil:
			return fmt.Errorf("await session.created: %w", err)
		case ev.Type == upstream.EventTypeSessionCreated:
			return nil
		case ev.Type == upstream.EventTypeError:
			if ev.Error != nil {
				return ev.Error.ToError()
			}
			return &upstream.Error{Message: ev.ErrorMessage()}
		}
	}
}

func (m *manager) sessionConfig(sess *Session) upstream.SessionConfig {
	cfg := upstream.SessionConfig{
		Modalities:   []string{"audio", "text"},
		Instructions: prompts.ForSession(m.cfg.Instructions, m.cfg.Language),
		Voice:        m.cfg.Voice,
		InputAudioFormat: &upstream.AudioFormat{
			Encoding:   "pcm16",
			SampleRate: audio.TargetRate,
			Channels:   1,
		},
	}
	sess.VAD.apply(&cfg)
	return cfg
}

// race runs sender and receiver until the first one returns, then cancels
// and awaits the other. It returns the first task's reason.
func (m *manager) race(ctx context.Context, sess *Session, conn Upstream) string {
	tctx, cancel := context.WithCancel(ctx)
	defer cancel()

	snd := &sender{
		conn:        conn,
		queue:       sess.queue,
		wait:        m.cfg.QueueWait,
		sendTimeout: m.cfg.SendTimeout,
		sess:        sess,
		log:         sess.log.With("task", "sender"),
	}
	rcv := &receiver{
		conn:        conn,
		recvTimeout: m.cfg.RecvTimeout,
		sess:        sess,
		tracer:      sess.tracer,
		log:         sess.log.With("task", "receiver"),
	}

	results := make(chan taskResult, 2)
	start := time.Now()
	go func() {
		reason, err := snd.run(tctx)
		results <- taskResult{task: "sender", reason: reason, err: err, start: start}
	}()
	go func() {
		reason, err := rcv.run(tctx)
		results <- taskResult{task: "receiver", reason: reason, err: err, start: start}
	}()

	first := <-results
	sess.setState(StateDraining)
	cancel()
	second := <-results

	m.logOutcome(sess, first)
	m.logOutcome(sess, second)
	return first.reason
}

func (m *manager) logOutcome(sess *Session, res taskResult) {
	metrics.Terminations.WithLabelValues(res.task, res.reason).Inc()
	log := sess.log.With("task", res.task, "reason", res.reason)

	switch {
	case errors.Is(res.err, context.Canceled):
		log.Info("task cancelled")
		sess.tracer.RecordSpan("", res.task, res.start, "cancelled", "")
	case res.err != nil:
		log.Warn("task ended with error", "error", res.err)
		sess.tracer.RecordSpan("", res.task, res.start, "error", res.err.Error())
	default:
		log.Info("task finished")
		sess.tracer.RecordSpan("", res.task, res.start, "ok", "")
	}
}

// cleanup closes the upstream, unregisters the session and sends the final
// audio_stream_end. Safe to call more than once.
func (m *manager) cleanup(sess *Session, reason string) {
	sess.cleanupOnce.Do(func() {
		sess.setState(StateClosed)
		sess.queue.Close()
		if conn := sess.upstream(); conn != nil {
			if err := conn.Close(); err != nil {
				sess.log.Debug("upstream close", "error", err)
			}
		}
		m.registry.remove(sess)
		sess.finish()

		metrics.SessionsActive.Dec()
		metrics.SessionDuration.Observe(time.Since(sess.StartedAt).Seconds())
		sess.tracer.Close(reason)
		sess.log.Info("session closed", "reason", reason)
		close(sess.done)
	})
}

func configureMessage(err error) string {
	var apiErr *upstream.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return "upstream session setup failed: " + apiErr.Message
	}
	return "upstream session setup failed"
}

func errorType(err error) string {
	var apiErr *upstream.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, upstream.ErrClosed):
		return "closed"
	case errors.As(err, &apiErr):
		if apiErr.Code != "" {
			return apiErr.Code
		}
		return "api_error"
	default:
		return "other"
	}
}
