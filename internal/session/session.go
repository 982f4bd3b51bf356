package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/convoflow/turn-engine/internal/adaptive"
	"github.com/convoflow/turn-engine/internal/audio"
	"github.com/convoflow/turn-engine/internal/backchannel"
	"github.com/convoflow/turn-engine/internal/config"
	"github.com/convoflow/turn-engine/internal/endpointing"
	"github.com/convoflow/turn-engine/internal/intent"
	"github.com/convoflow/turn-engine/internal/llm"
	"github.com/convoflow/turn-engine/internal/observability"
	"github.com/convoflow/turn-engine/internal/speechstate"
	"github.com/convoflow/turn-engine/internal/stt"
	"github.com/convoflow/turn-engine/internal/tts"
	"github.com/convoflow/turn-engine/internal/turnpredict"
)

// transcriptMailbox holds only the newest partial transcript. A stale
// transcript is replaced, never queued: the evaluation loop always reasons
// about the freshest view of what the user said.
type transcriptMailbox struct {
	mu      sync.Mutex
	text    string
	isFinal bool
	fresh   bool
}

func (m *transcriptMailbox) put(text string, isFinal bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	m.isFinal = isFinal
	m.fresh = true
}

// take returns the current transcript and whether it changed since the
// last take
func (m *transcriptMailbox) take() (string, bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fresh := m.fresh
	m.fresh = false
	return m.text, m.isFinal, fresh
}

func (m *transcriptMailbox) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = ""
	m.isFinal = false
	m.fresh = false
}

// Session owns one conversation over a WebSocket: audio in, decisions in
// the evaluation loop, synthesized audio out. Producers (socket reader,
// transcription pump) feed the loop through bounded channels and the
// mailbox; the loop alone owns decision state.
type Session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	sessionID     string
	userID        string
	correlationID string
	inputRate     int // Client capture rate; 0 until the start frame arrives

	cfg     *config.Config
	logger  zerolog.Logger
	metrics *observability.Metrics

	// External services
	sttClient stt.Client
	ttsClient tts.Client
	llmClient llm.Client
	predictor turnpredict.Predictor
	remote    *turnpredict.RemoteClient // nil when not configured

	// Decision components
	endpointer  *endpointing.Endpointer
	overlap     *audio.Classifier
	intents     *intent.Classifier
	ducker      *audio.Ducker
	machine     *speechstate.Machine
	backchannel *backchannel.Scheduler
	extractor   *audio.Extractor
	learner     *adaptive.Learner

	feedback FeedbackSink // nil-safe, see telemetry wiring

	// Producer -> loop plumbing
	capture    *audio.RingBuffer
	transcript transcriptMailbox

	// Playback volume in milli-units, written by the evaluation loop,
	// read by playback goroutines
	volumeMilli atomic.Int64

	// Loop-owned state lives in loopState (see loop.go)
	loop loopState

	started   bool
	startedMu sync.Mutex
	done      chan struct{}
}

// FeedbackSink mirrors feedback signals out of process. Implemented by
// telemetry.Publisher.
type FeedbackSink interface {
	Publish(sessionID, userID string, signal adaptive.FeedbackSignal)
}

// Deps bundles the shared components a session borrows from the server.
// NewSTT is a factory because each session owns its own recognizer stream;
// the other clients are stateless per call and shared.
type Deps struct {
	NewSTT    func() stt.Client
	TTS       tts.Client
	LLM       llm.Client
	Learner   *adaptive.Learner
	Feedback  FeedbackSink // Optional
	Predictor turnpredict.Predictor
	Remote    *turnpredict.RemoteClient // Optional
}

// NewSession creates a session for one accepted WebSocket connection
func NewSession(conn *websocket.Conn, cfg *config.Config, deps Deps) *Session {
	sessionID := fmt.Sprintf("sess-%s", uuid.New().String())
	correlationID := observability.NewCorrelationID()

	logger := observability.WithCorrelationID(correlationID).
		With().
		Str("session_id", sessionID).
		Logger()

	metrics := observability.NewSessionMetrics(sessionID)
	metrics.RecordSessionStart()

	s := &Session{
		conn:          conn,
		sessionID:     sessionID,
		correlationID: correlationID,
		cfg:           cfg,
		logger:        logger,
		metrics:       metrics,

		sttClient: deps.NewSTT(),
		ttsClient: deps.TTS,
		llmClient: deps.LLM,
		predictor: deps.Predictor,
		remote:    deps.Remote,
		learner:   deps.Learner,
		feedback:  deps.Feedback,

		endpointer: endpointing.NewEndpointer(),
		overlap: audio.NewClassifier(audio.ClassifierConfig{
			VoiceRMSThreshold:  cfg.VoiceRMSThreshold,
			BackchannelMaxMs:   1000,
			BackchannelMaxRMS:  cfg.BackchannelMaxRMS,
			InterruptionMinRMS: cfg.InterruptionMinRMS,
			NasalLowHz:         150,
			NasalHighHz:        450,
		}),
		intents:   intent.NewClassifier(),
		ducker:    audio.NewDucker(cfg.DuckingVolumeStep),
		machine:   speechstate.NewMachine(logger),
		extractor: audio.NewExtractor(cfg.SampleRate),

		capture: audio.NewRingBuffer(cfg.AudioBufferSize),
		done:    make(chan struct{}),
	}

	s.backchannel = backchannel.NewScheduler(backchannel.Config{
		MinVoiced: time.Duration(cfg.BackchannelMinMs) * time.Millisecond,
		Cooldown:  time.Duration(cfg.BackchannelGapMs) * time.Millisecond,
		Hold:      time.Duration(cfg.BackchannelHoldMs) * time.Millisecond,
		Volume:    cfg.BackchannelVolume,
	}, s.playBackchannelClip, logger)

	s.volumeMilli.Store(1000)
	s.loop.init(s)
	return s
}

// Run drives the session until the socket closes or ctx is cancelled
func (s *Session) Run(ctx context.Context) error {
	defer s.metrics.RecordSessionEnd()
	defer s.cleanup()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.readLoop(gctx, cancel) })
	g.Go(func() error { return s.transcriptionPump(gctx) })
	g.Go(func() error { return s.evaluationLoop(gctx) })

	err := g.Wait()
	s.logger.Info().Err(err).Msg("Session ended")
	if err == context.Canceled {
		return nil
	}
	return err
}

// readLoop consumes socket frames and feeds audio into the bounded channel
func (s *Session) readLoop(ctx context.Context, cancel context.CancelFunc) error {
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return nil
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.logger.Error().Err(err).Msg("Failed to parse client message")
			continue
		}

		switch msg.Event {
		case "start":
			s.handleStart(msg.Start)

		case "audio":
			if msg.Audio != nil {
				s.handleAudio(msg.Audio)
			}

		case "control":
			if msg.Control != nil {
				s.handleControl(msg.Control)
			}

		case "stop":
			s.logger.Info().Msg("Client requested stop")
			return nil

		default:
			s.logger.Debug().Str("event", msg.Event).Msg("Unknown client event")
		}
	}
}

func (s *Session) handleStart(start *StartPayload) {
	if start == nil {
		return
	}

	s.startedMu.Lock()
	defer s.startedMu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.userID = start.UserID
	s.inputRate = start.SampleRate
	if s.inputRate == 0 {
		s.inputRate = s.cfg.SampleRate
	}

	if err := s.sttClient.Start(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to start transcription")
		s.metrics.RecordError("stt_start_error", "stt")
		// Keep going: endpointing still works acoustically
	}
	s.metrics.RecordSTTStart()

	s.logger.Info().Str("user_id", s.userID).Msg("Session started")
	s.sendState()
}

func (s *Session) handleAudio(a *AudioPayload) {
	data, err := base64.StdEncoding.DecodeString(a.Payload)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to decode audio payload")
		return
	}

	samples, err := audio.BytesToSamples(data)
	if err != nil {
		s.logger.Error().Err(err).Msg("Malformed PCM payload")
		return
	}

	// Bring client audio onto the engine rate before anything consumes it
	if s.inputRate != 0 && s.inputRate != s.cfg.SampleRate {
		samples = audio.Resample(samples, s.inputRate, s.cfg.SampleRate)
		data = audio.SamplesToBytes(samples)
	}

	// Feed the recognizer directly; the evaluation loop gets its own copy
	if err := s.sttClient.SendAudio(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to send audio to recognizer")
		s.metrics.RecordError("stt_send_error", "stt")
	}

	if written := s.capture.Write(samples); written < len(samples) {
		s.logger.Warn().
			Int("dropped", len(samples)-written).
			Msg("Capture buffer full, dropping samples")
	}
}

func (s *Session) handleControl(ctrl *ControlAction) {
	switch ctrl.Action {
	case "stop":
		s.loop.requestAbort("explicit stop")

	case "resume":
		s.loop.requestResume()

	case "reset_profile":
		if s.userID != "" {
			if err := s.learner.Reset(s.userID); err != nil {
				s.logger.Error().Err(err).Msg("Failed to reset profile")
			}
		}

	default:
		s.logger.Debug().Str("action", ctrl.Action).Msg("Unknown control action")
	}
}

// transcriptionPump moves recognizer results into the mailbox
func (s *Session) transcriptionPump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case result, ok := <-s.sttClient.Results():
			if !ok || result == nil {
				return nil
			}
			s.transcript.put(result.Text, result.IsFinal)
			s.send(ServerMessage{
				Event:   "transcript",
				Text:    result.Text,
				IsFinal: result.IsFinal,
			})
		}
	}
}

// send writes one frame, serialized against concurrent writers
func (s *Session) send(msg ServerMessage) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write server message")
	}
}

// sendAudio ships synthesized PCM to the client at the current volume
func (s *Session) sendAudio(samples []int16, volume float64) {
	scaled := audio.ApplyGain(samples, volume)
	s.send(ServerMessage{
		Event:   "audio",
		Payload: base64.StdEncoding.EncodeToString(audio.SamplesToBytes(scaled)),
		Volume:  volume,
	})
}

func (s *Session) sendState() {
	snap := s.machine.Snapshot()
	msg := ServerMessage{Event: "state", State: string(snap.State)}
	if snap.ActiveMessageID != uuid.Nil {
		msg.MessageID = snap.ActiveMessageID.String()
	}
	s.send(msg)
}

// playBackchannelClip synthesizes a short acknowledgment and ships it at
// low volume. It never touches the speech state machine.
func (s *Session) playBackchannelClip(ctx context.Context, volume float64) error {
	chunks, err := s.ttsClient.Synthesize(ctx, "mm-hmm")
	if err != nil {
		return err
	}
	for chunk := range chunks {
		samples, err := audio.BytesToSamples(chunk.Data)
		if err != nil {
			return err
		}
		s.sendAudio(samples, volume)
	}
	s.metrics.RecordBackchannel()
	return nil
}

func (s *Session) cleanup() {
	if err := s.sttClient.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("Error closing STT client")
	}
	s.loop.requestAbort("session ended")
	close(s.done)
}
