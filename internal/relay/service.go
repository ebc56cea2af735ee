package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hubenschmidt/realtime-relay/internal/audio"
	"github.com/hubenschmidt/realtime-relay/internal/metrics"
	"github.com/hubenschmidt/realtime-relay/internal/trace"
)

// ErrNoSession is returned by per-session operations when the client has none.
var ErrNoSession = errors.New("no active session for client")

// ErrShuttingDown is returned by StartRecording once Shutdown has begun.
var ErrShuttingDown = errors.New("relay is shutting down")

// Config holds relay behavior shared by all sessions.
type Config struct {
	Instructions string
	// Language, when set, asks the model to reply in that language.
	Language     string
	Voice        string
	DefaultVAD   VADConfig
	Engine       string
	QueueSize    int

	ConnectTimeout   time.Duration
	ConfigureTimeout time.Duration
	SendTimeout      time.Duration
	QueueWait        time.Duration
	RecvTimeout      time.Duration

	// TraceStore is optional; nil disables tracing.
	TraceStore *trace.Store
}

func (c *Config) withDefaults() {
	if c.DefaultVAD.Type == "" {
		c.DefaultVAD = DefaultVAD()
	}
	if c.Engine == "" {
		c.Engine = audio.EngineSinc
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	defaults := []struct {
		d   *time.Duration
		def time.Duration
	}{
		{&c.ConnectTimeout, 10 * time.Second},
		{&c.ConfigureTimeout, 5 * time.Second},
		{&c.SendTimeout, 5 * time.Second},
		{&c.QueueWait, 10 * time.Second},
		{&c.RecvTimeout, 60 * time.Second},
	}
	for _, d := range defaults {
		if *d.d <= 0 {
			*d.d = d.def
		}
	}
}

// StartRequest is the start_recording payload.
type StartRequest struct {
	SampleRate *int   `json:"sampleRate"`
	Channels   int    `json:"channels,omitempty"`
	Codec      string `json:"codec,omitempty"`
}

// Service is the control surface the downstream handler calls into.
type Service struct {
	cfg      Config
	registry *Registry
	mgr      *manager

	vadMu sync.RWMutex
	vad   map[string]VADConfig

	// startMu orders session admission against Shutdown so wg.Add never races wg.Wait.
	startMu sync.Mutex
	closing bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a relay service dialing upstream through dialer.
func NewService(cfg Config, dialer Dialer) *Service {
	cfg.withDefaults()
	registry := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:      cfg,
		registry: registry,
		mgr:      &manager{cfg: cfg, dialer: dialer, registry: registry},
		vad:      make(map[string]VADConfig),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Registry exposes the session registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// StartRecording creates and registers a session, then runs it in the background.
func (s *Service) StartRecording(clientID string, req StartRequest, em Emitter) (*Session, error) {
	log := slog.With("client_id", clientID)

	if _, ok := s.registry.Get(clientID); ok {
		log.Warn("start_recording with a session already active, ignoring")
		return nil, ErrSessionExists
	}

	format, err := startFormat(req, log)
	if err != nil {
		log.Warn("rejecting start_recording", "error", err)
		if emitErr := em.Emit(EventProcessingError, errorPayload{Error: err.Error()}); emitErr != nil {
			log.Warn("downstream emit failed", "error", emitErr)
		}
		return nil, err
	}

	conv, err := audio.NewConverter(s.cfg.Engine, format)
	if err != nil {
		return nil, fmt.Errorf("create resampler: %w", err)
	}

	sessionID := uuid.NewString()
	vad := s.vadFor(clientID)
	sess := &Session{
		ID:        sessionID,
		ClientID:  clientID,
		Format:    format,
		VAD:       vad,
		StartedAt: time.Now(),
		queue:     NewQueue(s.cfg.QueueSize),
		converter: conv,
		emitter:   em,
		log:       log.With("session_id", sessionID),
		tracer:    trace.NewTracer(s.cfg.TraceStore, sessionID, clientID, traceMetadata(format, vad)),
		done:      make(chan struct{}),
	}

	s.startMu.Lock()
	if s.closing {
		s.startMu.Unlock()
		sess.tracer.Close("shutdown")
		log.Warn("rejecting start_recording during shutdown")
		if emitErr := em.Emit(EventProcessingError, errorPayload{Error: ErrShuttingDown.Error()}); emitErr != nil {
			log.Warn("downstream emit failed", "error", emitErr)
		}
		return nil, ErrShuttingDown
	}
	if err = s.registry.add(sess); err != nil {
		s.startMu.Unlock()
		sess.tracer.Close("duplicate")
		log.Warn("start_recording raced with another start, ignoring")
		return nil, err
	}
	s.wg.Add(1)
	s.startMu.Unlock()

	metrics.SessionsActive.Inc()
	metrics.SessionsTotal.Inc()
	sess.log.Info("session started", "codec", format.Codec, "sample_rate", format.SampleRate, "channels", format.Channels, "vad", vad.Type)

	go func() {
		defer s.wg.Done()
		s.mgr.run(s.ctx, sess)
	}()
	return sess, nil
}

func startFormat(req StartRequest, log *slog.Logger) (audio.Format, error) {
	format := audio.Format{
		Codec:      audio.Codec(req.Codec),
		SampleRate: audio.TargetRate,
		Channels:   req.Channels,
	}
	if req.SampleRate == nil {
		log.Warn("start_recording without sampleRate, assuming 16000")
	} else {
		format.SampleRate = *req.SampleRate
	}
	if format.SampleRate <= 0 {
		return format, fmt.Errorf("invalid sampleRate %d", format.SampleRate)
	}
	return format, format.Validate()
}

func traceMetadata(format audio.Format, vad VADConfig) string {
	b, err := json.Marshal(map[string]any{"format": format, "vad": vad})
	if err != nil {
		return "{}"
	}
	return string(b)
}

// AudioChunk decodes, resamples and enqueues one client chunk without blocking.
// Bad chunks are dropped; the session carries on.
func (s *Service) AudioChunk(clientID, audioBase64 string) error {
	sess, ok := s.registry.Get(clientID)
	if !ok {
		slog.Warn("audio chunk without active session", "client_id", clientID)
		metrics.FramesDropped.WithLabelValues("no_session").Inc()
		return ErrNoSession
	}

	raw, err := base64.StdEncoding.DecodeString(audioBase64)
	if err != nil {
		return s.drop(sess, "bad_base64", err)
	}

	start := time.Now()
	pcm, err := sess.converter.Convert(raw)
	metrics.ResampleDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return s.drop(sess, "resample", err)
	}
	if len(pcm) == 0 {
		return nil
	}

	err = sess.queue.Push(base64.StdEncoding.EncodeToString(pcm))
	switch {
	case errors.Is(err, ErrQueueFull):
		return s.drop(sess, "queue_full", err)
	case errors.Is(err, ErrQueueEnded):
		metrics.FramesDropped.WithLabelValues("ended").Inc()
		sess.log.Debug("chunk after end of input dropped")
		return err
	case err != nil:
		return err
	}
	metrics.FramesEnqueued.Inc()
	return nil
}

func (s *Service) drop(sess *Session, reason string, err error) error {
	metrics.FramesDropped.WithLabelValues(reason).Inc()
	sess.log.Warn("audio chunk dropped", "reason", reason, "error", err)
	return err
}

// StopRecording signals end of input for the client's session.
func (s *Service) StopRecording(clientID string) {
	sess, ok := s.registry.Get(clientID)
	if !ok {
		slog.Warn("stop_recording without active session", "client_id", clientID)
		return
	}
	sess.log.Info("stop_recording")
	sess.queue.PushEnd()
}

// InterruptResponse ends input like StopRecording and acknowledges the interrupt.
// Cancelling the response itself is left to the upstream turn detection.
func (s *Service) InterruptResponse(clientID string) {
	sess, ok := s.registry.Get(clientID)
	if !ok {
		slog.Warn("interrupt_response without active session", "client_id", clientID)
		return
	}
	sess.log.Info("interrupt_response")
	sess.queue.PushEnd()
	sess.emit(EventResponseInterruptRequested, empty{})
}

// UpdateVAD validates and stores the client's VAD override for its next session.
func (s *Service) UpdateVAD(clientID string, cfg VADConfig, em Emitter) error {
	log := slog.With("client_id", clientID)
	if err := cfg.Validate(); err != nil {
		log.Warn("rejecting VAD config", "error", err)
		if emitErr := em.Emit(EventVADConfigUpdateError, errorPayload{Error: err.Error()}); emitErr != nil {
			log.Warn("downstream emit failed", "error", emitErr)
		}
		return err
	}

	s.vadMu.Lock()
	s.vad[clientID] = cfg
	s.vadMu.Unlock()

	log.Info("VAD config updated", "type", cfg.Type, "eagerness", cfg.Eagerness)
	return em.Emit(EventVADConfigUpdated, cfg)
}

func (s *Service) vadFor(clientID string) VADConfig {
	s.vadMu.RLock()
	defer s.vadMu.RUnlock()
	if cfg, ok := s.vad[clientID]; ok {
		return cfg
	}
	return s.cfg.DefaultVAD
}

// Disconnect is an implicit stop that also forgets the client's VAD override.
func (s *Service) Disconnect(clientID string) {
	s.vadMu.Lock()
	delete(s.vad, clientID)
	s.vadMu.Unlock()

	sess, ok := s.registry.Get(clientID)
	if !ok {
		return
	}
	sess.log.Info("client disconnected, ending input")
	sess.queue.PushEnd()
}

// Shutdown ends input on every session and waits for them to close. If ctx
// expires first, running sessions are cancelled.
func (s *Service) Shutdown(ctx context.Context) error {
	s.startMu.Lock()
	s.closing = true
	s.startMu.Unlock()

	for _, sess := range s.registry.Snapshot() {
		sess.queue.PushEnd()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}
