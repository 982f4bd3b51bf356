package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/convoflow/turn-engine/internal/adaptive"
	"github.com/convoflow/turn-engine/internal/audio"
	"github.com/convoflow/turn-engine/internal/delivery"
	"github.com/convoflow/turn-engine/internal/endpointing"
	"github.com/convoflow/turn-engine/internal/intent"
	"github.com/convoflow/turn-engine/internal/speechstate"
	"github.com/convoflow/turn-engine/internal/turnpredict"
)

const (
	// Silence after which an overlapping burst is considered finished
	overlapSettleMs = 500

	// An interruption this soon after the assistant took the floor means
	// the endpoint fired too early
	earlyEndpointWindow = 2 * time.Second

	interruptionWindow = 10 * time.Second
)

// loopState is the decision state owned by the evaluation loop. Only
// requestAbort, requestResume, and the response callbacks touch it from
// other goroutines, and those go through mu.
type loopState struct {
	s *Session

	segment      *audio.Segment
	lastFeatures audio.Features
	noiseRMS     float64

	turnNumber          int
	extendedThresholdMs int // Sticky semantic extension, cleared per segment
	longWaitReported    bool
	lastCommitted       string
	overlapLabel        audio.Label

	interruptionTimes []time.Time

	mu            sync.Mutex
	resp          *response
	noMatchStreak int
}

func (l *loopState) init(s *Session) {
	l.s = s
	l.segment = audio.NewSegment(s.cfg.SampleRate)
}

// evaluationLoop runs the fixed-rate decision tick. Everything that mutates
// turn-taking state happens here, on one goroutine.
func (s *Session) evaluationLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(s.cfg.EvaluationTickMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.loop.tick(ctx)
		}
	}
}

func (l *loopState) tick(ctx context.Context) {
	s := l.s

	voiced := l.drainAudio()

	volume := s.ducker.Tick()
	s.volumeMilli.Store(int64(volume * 1000))
	s.metrics.RecordDuckingLevel(volume)

	transcript, isFinal, fresh := s.transcript.take()

	if s.machine.IsSpeaking() {
		l.overlapTick(transcript, fresh, voiced)
		return
	}
	l.listenTick(ctx, transcript, isFinal, fresh, voiced)
}

// drainAudio moves everything captured since the last tick into the
// segment and reports whether it was voiced
func (l *loopState) drainAudio() bool {
	s := l.s

	samples := s.capture.Drain()
	if len(samples) == 0 {
		return false
	}

	rms := audio.NormalizedRMS(samples)
	if rms >= s.cfg.VoiceRMSThreshold {
		l.segment.AddVoiced(samples)
		l.lastFeatures = s.extractor.Extract(samples, l.segment.VoiceMs())
		return true
	}

	l.segment.AddSilence(samples)
	// Exponential average of the ambient floor
	l.noiseRMS = 0.9*l.noiseRMS + 0.1*rms
	return false
}

// overlapTick handles user audio arriving while the assistant holds the
// floor: classify the burst, duck, and resolve intent once a transcript
// shows up. Transcripts are handled even without a live segment; the
// recognizer can deliver them after the burst's audio has settled.
func (l *loopState) overlapTick(transcript string, fresh, voiced bool) {
	s := l.s

	if l.segment.Collecting() {
		if voiced {
			cls := s.overlap.Classify(l.lastFeatures)
			s.metrics.RecordOverlapClassification(cls.Label.String())
			s.ducker.Observe(cls)
			l.overlapLabel = cls.Label
		} else if l.segment.SilenceMs() > overlapSettleMs {
			// Burst over without a decisive intent. A backchannel never
			// carries into the next turn; a real interruption keeps its
			// segment so the listen path can endpoint it after an abort.
			if l.overlapLabel == audio.LabelBackchannel {
				l.segment.Reset()
				s.transcript.clear()
			}
			s.ducker.Release()
		}
	} else {
		s.ducker.Release()
	}

	if !fresh || strings.TrimSpace(transcript) == "" {
		return
	}

	if s.machine.State() == speechstate.StatePaused && speechstate.IsResumeUtterance(transcript) {
		l.requestResume()
		l.segment.Reset()
		s.transcript.clear()
		return
	}

	res := s.intents.Classify(intent.Context{
		Transcript:              transcript,
		PreviousTranscript:      l.lastCommitted,
		MsSinceLastInterruption: l.msSinceLastInterruption(),
		InterruptionCount:       l.interruptionsInWindow(),
		IsAssistantSpeaking:     true,
	})
	s.metrics.RecordInterruptionIntent(string(res.Type))

	switch res.Type {
	case intent.TypePause:
		l.pauseResponse()
		l.segment.Reset()
		s.transcript.clear()

	case intent.TypeNone:
		// Keep the floor

	default:
		l.recordInterruption()
		l.reportEarlyEndpoint(transcript)
		l.requestAbort(string(res.SuggestedAction))
		// The transcript stays in the mailbox as the opening of the
		// user's next turn; the listen path endpoints it normally
	}
}

// listenTick runs endpointing while the assistant is idle and the user may
// be speaking
func (l *loopState) listenTick(ctx context.Context, transcript string, isFinal, fresh, voiced bool) {
	s := l.s

	if !l.segment.Collecting() {
		return
	}

	if voiced {
		s.backchannel.Consider(ctx, l.segment.VoiceMs(), true, fresh && !isFinal)
		return
	}

	if s.backchannel.InhibitsEndpointing() {
		return
	}

	silence := l.segment.SilenceMs()
	if silence == 0 {
		return
	}

	base, effective := l.thresholds(transcript)

	// Silence past twice the unextended threshold means the user was left
	// hanging; report once per turn
	if !l.longWaitReported && silence > 2*base {
		l.longWaitReported = true
		l.sendFeedback(adaptive.FeedbackLongWait, base, silence, len(transcript))
	}

	// Early commit: the fusion predictor may take the turn before the
	// silence threshold when text and prosody agree the utterance is done
	if silence < effective && strings.TrimSpace(transcript) != "" {
		if d, ok := l.predictEarly(ctx, transcript, silence, effective); ok && d.TakeTurn {
			s.metrics.RecordEarlyCommit()
			s.metrics.RecordEndpointDecision(string(endpointing.ConfidenceHigh), float64(effective))
			l.commit(ctx, transcript, silence, effective)
			return
		}
	}

	decision := s.endpointer.Evaluate(silence, effective, transcript)
	if decision.ExtendThresholdMs > 0 {
		if decision.ExtendThresholdMs > l.extendedThresholdMs {
			l.extendedThresholdMs = decision.ExtendThresholdMs
			s.metrics.RecordThresholdExtension()
			s.logger.Debug().
				Int("extended_ms", decision.ExtendThresholdMs).
				Str("reason", decision.Reason).
				Msg("Threshold extended")
		}
		return
	}
	if decision.Endpoint {
		s.metrics.RecordEndpointDecision(string(decision.Confidence), float64(effective))
		l.commit(ctx, transcript, silence, effective)
	}
}

// thresholds returns the context-adjusted threshold and the effective one
// including the adaptive floor and any sticky semantic extension
func (l *loopState) thresholds(transcript string) (base, effective int) {
	s := l.s

	turnCtx := endpointing.TurnContext{
		Transcript:     transcript,
		WordsPerSecond: l.wordsPerSecond(transcript),
		TurnNumber:     l.turnNumber + 1,
		NoiseLevel:     l.noiseLevel(),
	}
	if s.userID != "" {
		if prof, err := s.learner.Profile(s.userID); err == nil && prof.Observations > 0 {
			turnCtx.InterruptionRate = prof.Stats.InterruptionRate
			turnCtx.AvgTurnLengthWords = prof.Stats.AverageTurnLength
		}
	}

	base = endpointing.AdjustThreshold(s.cfg.BaseThresholdMs, turnCtx)
	if s.userID != "" {
		if learned := s.learner.ThresholdMs(s.userID); learned > base {
			base = learned
		}
	}

	effective = base
	if l.extendedThresholdMs > effective {
		effective = l.extendedThresholdMs
	}
	return base, effective
}

func (l *loopState) wordsPerSecond(transcript string) float64 {
	voiceMs := l.segment.VoiceMs()
	if voiceMs == 0 {
		return 0
	}
	words := len(strings.Fields(transcript))
	if words == 0 {
		return 0
	}
	return float64(words) / (float64(voiceMs) / 1000.0)
}

// noiseLevel maps the ambient RMS floor onto the 0..1 scale the threshold
// adjustment expects, with 1.0 at the voice detection threshold
func (l *loopState) noiseLevel() float64 {
	level := l.noiseRMS / l.s.cfg.VoiceRMSThreshold
	if level > 1 {
		level = 1
	}
	return level
}

// predictEarly consults the remote decision service when configured,
// falling back to the local fusion predictor
func (l *loopState) predictEarly(ctx context.Context, transcript string, silenceMs, thresholdMs int) (turnpredict.Decision, bool) {
	s := l.s
	if silenceMs < s.cfg.FusionMinSilenceMs {
		return turnpredict.Decision{}, false
	}
	if s.remote != nil {
		if d, err := s.remote.Predict(ctx, transcript, l.lastFeatures, silenceMs, thresholdMs); err == nil {
			return d, true
		}
	}
	return s.predictor.Decide(ctx, transcript, l.lastFeatures, silenceMs), true
}

// commit ends the user's turn and starts the response pipeline
func (l *loopState) commit(ctx context.Context, transcript string, silenceMs, thresholdMs int) {
	s := l.s

	l.turnNumber++
	voiceMs := l.segment.VoiceMs()
	l.segment.Reset()
	s.transcript.clear()
	l.extendedThresholdMs = 0
	l.longWaitReported = false
	l.overlapLabel = audio.LabelSilence

	text := strings.TrimSpace(transcript)
	if text == "" {
		// Voiced audio that never transcribed; nothing to answer
		return
	}
	l.lastCommitted = text

	s.logger.Info().
		Int("turn", l.turnNumber).
		Int("silence_ms", silenceMs).
		Int("threshold_ms", thresholdMs).
		Int("voice_ms", voiceMs).
		Msg("Turn committed")

	s.respond(ctx, text, commitInfo{
		ThresholdMs:      thresholdMs,
		SilenceMs:        silenceMs,
		VoiceMs:          voiceMs,
		TranscriptLength: len(text),
	})
}

// pauseResponse parks the active response so it can resume without
// re-synthesizing what the user already heard
func (l *loopState) pauseResponse() {
	s := l.s
	l.mu.Lock()
	resp := l.resp
	l.mu.Unlock()
	if resp == nil || s.machine.State() != speechstate.StateSpeaking {
		return
	}

	resp.queue.Pause()
	resumeFrom := resp.queue.PausedAtIndex()
	if err := s.machine.RequestPause(resp.textFrom(resumeFrom), resumeFrom, 0); err != nil {
		s.logger.Debug().Err(err).Msg("Pause request rejected")
		resp.queue.Resume()
		return
	}
	s.sendState()
}

// requestResume continues a paused response. Safe to call from the socket
// reader.
func (l *loopState) requestResume() {
	s := l.s
	l.mu.Lock()
	resp := l.resp
	l.mu.Unlock()
	if resp == nil {
		return
	}

	if _, err := s.machine.RequestResume(); err != nil {
		s.logger.Debug().Err(err).Msg("Resume request rejected")
		return
	}
	resp.queue.Resume()

	// Pausing during the last chunk can leave nothing to play; the message
	// is then already finished
	if resp.queue.State() == delivery.QueueIdle && !resp.queue.InFlight() {
		if err := s.machine.RequestComplete(resp.id); err == nil {
			l.finishResponse(resp.id)
		}
	}
	s.sendState()
}

// requestAbort cuts off the active response, marking the message as
// interrupted rather than deleting it. Safe to call from the socket reader.
func (l *loopState) requestAbort(reason string) {
	s := l.s
	l.mu.Lock()
	resp := l.resp
	l.resp = nil
	l.mu.Unlock()

	interrupted := s.machine.Abort(reason)
	if resp != nil {
		discarded := resp.queue.PendingCount()
		resp.queue.Abort()
		if discarded > 0 {
			s.metrics.RecordChunksAborted(discarded)
		}
	}
	if interrupted != uuid.Nil {
		s.send(ServerMessage{Event: "reply", MessageID: interrupted.String(), ErrorCode: "interrupted"})
		s.sendState()
	}
}

// setResponse registers the active response for the loop's control paths
func (l *loopState) setResponse(resp *response) {
	l.mu.Lock()
	l.resp = resp
	l.mu.Unlock()
}

// finishResponse clears the active response after a natural completion and
// credits the hand-over as clean
func (l *loopState) finishResponse(messageID uuid.UUID) {
	l.mu.Lock()
	resp := l.resp
	if resp != nil && resp.id == messageID {
		l.resp = nil
	} else {
		resp = nil
	}
	l.mu.Unlock()

	if resp != nil && !resp.startedAt.IsZero() {
		l.sendFeedback(adaptive.FeedbackPerfect, resp.commit.ThresholdMs, resp.commit.SilenceMs, resp.commit.TranscriptLength)
	}
}

// dropResponse clears the active response after a delivery failure
func (l *loopState) dropResponse(messageID uuid.UUID) {
	l.mu.Lock()
	if l.resp != nil && l.resp.id == messageID {
		l.resp = nil
	}
	l.mu.Unlock()
}

// reportEarlyEndpoint emits interruption feedback when the user barged in
// right after the assistant took the floor, evidence the endpoint fired
// before they were done
func (l *loopState) reportEarlyEndpoint(transcript string) {
	l.mu.Lock()
	resp := l.resp
	l.mu.Unlock()
	if resp == nil || time.Since(resp.startedAt) > earlyEndpointWindow {
		return
	}
	l.sendFeedback(adaptive.FeedbackInterruption, resp.commit.ThresholdMs, resp.commit.SilenceMs, len(transcript))
}

// sendFeedback records one signal with the learner and mirrors it to the
// telemetry sink
func (l *loopState) sendFeedback(t adaptive.FeedbackType, thresholdMs, silenceMs, transcriptLen int) {
	s := l.s
	if s.userID == "" {
		return
	}
	signal := adaptive.FeedbackSignal{
		Type:        t,
		TimestampMs: time.Now().UnixMilli(),
		Context: adaptive.FeedbackContext{
			ThresholdMs:       thresholdMs,
			SilenceDurationMs: silenceMs,
			TranscriptLength:  transcriptLen,
		},
	}
	if err := s.learner.Observe(s.userID, signal); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record feedback")
	}
	if s.feedback != nil {
		s.feedback.Publish(s.sessionID, s.userID, signal)
	}
}

func (l *loopState) recordInterruption() {
	now := time.Now()
	kept := l.interruptionTimes[:0]
	for _, t := range l.interruptionTimes {
		if now.Sub(t) <= interruptionWindow {
			kept = append(kept, t)
		}
	}
	l.interruptionTimes = append(kept, now)
}

func (l *loopState) interruptionsInWindow() int {
	now := time.Now()
	n := 0
	for _, t := range l.interruptionTimes {
		if now.Sub(t) <= interruptionWindow {
			n++
		}
	}
	return n
}

func (l *loopState) msSinceLastInterruption() int64 {
	if len(l.interruptionTimes) == 0 {
		return int64(interruptionWindow/time.Millisecond) + 1
	}
	last := l.interruptionTimes[len(l.interruptionTimes)-1]
	return time.Since(last).Milliseconds()
}

// noMatchSeverity escalates consecutive no-match replies: the first is
// informational, repeats warn, a persistent streak is fatal to the
// conversation
func (l *loopState) noMatchSeverity() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.noMatchStreak++
	switch {
	case l.noMatchStreak >= 3:
		return "fatal"
	case l.noMatchStreak == 2:
		return "warn"
	default:
		return "info"
	}
}

func (l *loopState) resetNoMatchStreak() {
	l.mu.Lock()
	l.noMatchStreak = 0
	l.mu.Unlock()
}
