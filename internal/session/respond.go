package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/convoflow/turn-engine/internal/audio"
	"github.com/convoflow/turn-engine/internal/delivery"
	"github.com/convoflow/turn-engine/internal/llm"
)

// commitInfo captures the conditions a turn was taken under, for feedback
// attribution when the response later completes or gets interrupted
type commitInfo struct {
	ThresholdMs      int
	SilenceMs        int
	VoiceMs          int
	TranscriptLength int
}

// response is one in-flight assistant message: a generation stream feeding
// a chunker feeding a delivery queue
type response struct {
	id        uuid.UUID
	cancel    context.CancelFunc
	queue     *delivery.Queue
	commit    commitInfo
	startedAt time.Time

	mu     sync.Mutex
	chunks []delivery.SpeechChunk
}

func (r *response) add(chunk delivery.SpeechChunk) {
	r.mu.Lock()
	r.chunks = append(r.chunks, chunk)
	r.mu.Unlock()
}

// textFrom joins the text of every chunk at or past the given index, the
// part of the message the user has not heard yet
func (r *response) textFrom(index int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var parts []string
	for _, c := range r.chunks {
		if c.Index >= index {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, " ")
}

// respond takes the floor and streams a reply for one committed turn
func (s *Session) respond(ctx context.Context, transcript string, commit commitInfo) {
	messageID := uuid.New()
	rctx, cancel := context.WithCancel(ctx)

	if err := s.machine.RequestStartSpeaking(messageID, cancel); err != nil {
		cancel()
		s.logger.Warn().Err(err).Msg("Could not take the floor")
		return
	}

	resp := &response{
		id:        messageID,
		cancel:    cancel,
		commit:    commit,
		startedAt: time.Now(),
	}

	play := func(pctx context.Context, chunk delivery.SpeechChunk) error {
		return s.playChunk(pctx, messageID, chunk)
	}
	onError := func(err error) {
		if interrupted, aborted := s.machine.HandleDeliveryError(err); aborted {
			s.metrics.RecordError("delivery_error", "tts")
			s.loop.dropResponse(messageID)
			if interrupted != uuid.Nil {
				s.send(ServerMessage{Event: "reply", MessageID: interrupted.String(), ErrorCode: "interrupted"})
			}
			s.sendState()
		}
	}
	onComplete := func() {
		if err := s.machine.RequestComplete(messageID); err != nil {
			// A newer message took over; nothing to report
			return
		}
		s.loop.finishResponse(messageID)
		s.sendState()
	}

	resp.queue = delivery.NewQueue(play, onError, onComplete, s.logger)
	s.loop.setResponse(resp)
	resp.queue.Start(rctx)
	s.sendState()

	go s.generate(rctx, transcript, resp)
}

// staleFlushInterval is how often a stalled generation stream is checked
// for buffered text past the weak-boundary force timeout
const staleFlushInterval = 250 * time.Millisecond

// generate streams reply text into the chunker and queue
func (s *Session) generate(ctx context.Context, transcript string, resp *response) {
	chunker := delivery.NewChunker(delivery.ChunkerConfig{
		MinLength:  s.cfg.ChunkMinLength,
		MaxLength:  s.cfg.ChunkMaxLength,
		ForceAfter: time.Duration(s.cfg.ChunkForceAfterMs) * time.Millisecond,
	})

	s.metrics.RecordGenerationStart()
	stream, err := s.llmClient.Generate(ctx, transcript)
	if err != nil {
		s.failGeneration(ctx, err, resp)
		return
	}

	stale := time.NewTicker(staleFlushInterval)
	defer stale.Stop()

	firstToken := true
	emitted := false
receive:
	for {
		select {
		case <-ctx.Done():
			return

		case <-stale.C:
			// A stalled stream still honors the weak-boundary timeout
			for _, sc := range chunker.FlushStale() {
				resp.add(sc)
				resp.queue.Enqueue(sc)
				emitted = true
			}

		case chunk, ok := <-stream:
			if !ok {
				break receive
			}
			if chunk.Err != nil {
				s.failGeneration(ctx, chunk.Err, resp)
				return
			}
			if firstToken && chunk.Text != "" {
				s.metrics.RecordGenerationFirstToken()
				firstToken = false
			}
			for _, sc := range chunker.Feed(chunk.Text) {
				resp.add(sc)
				resp.queue.Enqueue(sc)
				emitted = true
			}
			if chunk.Done {
				break receive
			}
		}
	}

	if final := chunker.Flush(); final != nil {
		resp.add(*final)
		resp.queue.Enqueue(*final)
		emitted = true
	} else if emitted {
		// Everything already went out at a boundary; close the message
		// with an empty terminal marker so the queue completes
		resp.mu.Lock()
		last := resp.chunks[len(resp.chunks)-1]
		resp.mu.Unlock()
		resp.queue.Enqueue(delivery.SpeechChunk{Index: last.Index + 1, IsFinal: true})
	}

	if !emitted {
		s.failGeneration(ctx, llm.ErrEmptyResult, resp)
		return
	}
	s.loop.resetNoMatchStreak()
}

// failGeneration tears the response down for anything but a cancellation
// and tells the client what kind of failure it was
func (s *Session) failGeneration(ctx context.Context, err error, resp *response) {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		// The response was aborted or paused out from under generation;
		// not a failure
		return
	}

	switch {
	case errors.Is(err, llm.ErrNoMatch):
		severity := s.loop.noMatchSeverity()
		s.logger.Info().Str("severity", severity).Msg("No response for input")
		s.send(ServerMessage{
			Event:     "error",
			MessageID: resp.id.String(),
			ErrorCode: "no_match",
			Severity:  severity,
		})

	case errors.Is(err, llm.ErrEmptyResult):
		s.logger.Warn().Msg("Generation produced empty result")
		s.metrics.RecordError("empty_result", "llm")
		s.send(ServerMessage{
			Event:     "error",
			MessageID: resp.id.String(),
			ErrorCode: "empty_result",
			Severity:  "warn",
		})

	default:
		s.logger.Error().Err(err).Msg("Generation failed")
		s.metrics.RecordError("generation_error", "llm")
		s.send(ServerMessage{
			Event:     "error",
			MessageID: resp.id.String(),
			ErrorCode: "generation_error",
			Severity:  "warn",
		})
	}

	// Nothing was delivered, so the message is dropped rather than marked
	// interrupted
	s.loop.dropResponse(resp.id)
	s.machine.Abort("generation failed")
	resp.queue.Abort()
	s.sendState()
}

// playChunk synthesizes one chunk and ships its audio at the ducked volume
func (s *Session) playChunk(ctx context.Context, messageID uuid.UUID, chunk delivery.SpeechChunk) error {
	if chunk.Text == "" {
		// Terminal marker, nothing to synthesize
		return nil
	}

	s.send(ServerMessage{
		Event:     "reply",
		MessageID: messageID.String(),
		Text:      chunk.Text,
		IsFinal:   chunk.IsFinal,
	})

	s.metrics.RecordTTSStart()
	audioChunks, err := s.ttsClient.Synthesize(ctx, chunk.Text)
	if err != nil {
		return err
	}

	first := true
	for ac := range audioChunks {
		if ac == nil {
			continue
		}
		if first {
			s.metrics.RecordTTSFirstAudio()
			first = false
		}
		samples, err := audio.BytesToSamples(ac.Data)
		if err != nil {
			return err
		}
		s.sendAudio(samples, s.currentVolume())

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.metrics.RecordChunkPlayed()
	return nil
}

// currentVolume reads the loop-owned ducking level
func (s *Session) currentVolume() float64 {
	return float64(s.volumeMilli.Load()) / 1000.0
}
