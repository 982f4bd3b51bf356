package delivery

import (
	"strings"
	"time"
	"unicode"
)

// SpeechChunk is one synthesizable piece of the generated reply. Indices
// are monotonic within a message; the queue consumes each chunk exactly
// once.
type SpeechChunk struct {
	Text             string
	Index            int
	IsFinal          bool
	EndsWithBoundary bool
}

// ChunkerConfig bounds how the generated text stream is cut into chunks
type ChunkerConfig struct {
	MinLength  int           // Strong boundaries only count past this
	MaxLength  int           // Hard cut past this, at the last whitespace
	ForceAfter time.Duration // Weak boundaries count after this much waiting
}

// DefaultChunkerConfig returns limits tuned for conversational synthesis
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		MinLength:  40,
		MaxLength:  280,
		ForceAfter: 1800 * time.Millisecond,
	}
}

// Abbreviations whose trailing period does not end a sentence
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "st": {},
	"etc": {}, "vs": {}, "inc": {}, "jr": {}, "sr": {}, "no": {},
	"e.g": {}, "i.e": {}, "approx": {},
}

// Chunker cuts an incrementally generated reply into speakable chunks so
// synthesis can start before generation finishes. Not safe for concurrent
// use; each response gets its own chunker.
type Chunker struct {
	cfg   ChunkerConfig
	buf   strings.Builder
	index int

	// When the current chunk started accumulating; zero when empty
	accumulatingSince time.Time
	now               func() time.Time
}

// NewChunker creates a chunker for one response message
func NewChunker(cfg ChunkerConfig) *Chunker {
	return &Chunker{cfg: cfg, now: time.Now}
}

// Feed appends one generated-text increment and returns any chunks that
// became ready
func (c *Chunker) Feed(text string) []SpeechChunk {
	if text == "" {
		return nil
	}
	if c.buf.Len() == 0 {
		c.accumulatingSince = c.now()
	}
	c.buf.WriteString(text)
	return c.drain()
}

// FlushStale re-runs boundary detection without new input so the
// force-timeout weak cut can fire while generation is stalled. Callers
// poll it on a timer between Feed calls.
func (c *Chunker) FlushStale() []SpeechChunk {
	if c.buf.Len() == 0 {
		return nil
	}
	return c.drain()
}

// Flush emits whatever remains as the final chunk. Returns nil when the
// stream produced no trailing text.
func (c *Chunker) Flush() *SpeechChunk {
	text := strings.TrimSpace(c.buf.String())
	c.buf.Reset()
	if text == "" {
		return nil
	}

	chunk := &SpeechChunk{
		Text:             text,
		Index:            c.index,
		IsFinal:          true,
		EndsWithBoundary: endsWithBoundary(text),
	}
	c.index++
	return chunk
}

// drain repeatedly cuts ready chunks off the front of the buffer
func (c *Chunker) drain() []SpeechChunk {
	var chunks []SpeechChunk
	for {
		cut, boundary := c.findCut()
		if cut < 0 {
			break
		}

		text := strings.TrimSpace(c.buf.String()[:cut])
		rest := strings.TrimLeft(c.buf.String()[cut:], " \t\n")
		c.buf.Reset()
		c.buf.WriteString(rest)

		if text == "" {
			continue
		}
		chunks = append(chunks, SpeechChunk{
			Text:             text,
			Index:            c.index,
			EndsWithBoundary: boundary,
		})
		c.index++
		c.accumulatingSince = c.now()
	}
	return chunks
}

// findCut locates the next cut position, or -1 when the buffer should keep
// accumulating. The returned position is one past the boundary character.
func (c *Chunker) findCut() (int, bool) {
	s := c.buf.String()

	// Strong sentence boundary past the minimum length
	start := c.cfg.MinLength - 1
	if start < 0 {
		start = 0
	}
	for i := start; i < len(s); i++ {
		if !isStrongBoundary(s[i]) {
			continue
		}
		if i+1 < len(s) && !isSpace(s[i+1]) {
			continue
		}
		if s[i] == '.' && suppressPeriod(s, i) {
			continue
		}
		return i + 1, true
	}

	// Weak boundary once generation has stalled long enough
	if c.accumulatingSince != (time.Time{}) && c.now().Sub(c.accumulatingSince) >= c.cfg.ForceAfter {
		for i := c.cfg.MinLength / 2; i < len(s); i++ {
			switch s[i] {
			case ':', ';', ',':
				if i+1 >= len(s) || isSpace(s[i+1]) {
					return i + 1, true
				}
			}
		}
	}

	// Overlong chunk: cut at the last whitespace before the limit
	if len(s) >= c.cfg.MaxLength {
		for i := c.cfg.MaxLength - 1; i > 0; i-- {
			if isSpace(s[i]) {
				return i, false
			}
		}
		return c.cfg.MaxLength, false
	}

	return -1, false
}

func isStrongBoundary(b byte) bool {
	return b == '.' || b == '?' || b == '!'
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func endsWithBoundary(text string) bool {
	if text == "" {
		return false
	}
	switch text[len(text)-1] {
	case '.', '?', '!', ':', ';', ',':
		return true
	}
	return false
}

// suppressPeriod reports whether the period at position i is part of an
// abbreviation, a decimal number, or an initial rather than a sentence end
func suppressPeriod(s string, i int) bool {
	// Decimal: digits on both sides, or a digit right before the period at
	// the buffer edge where the fraction may still be in flight
	if i > 0 && isDigit(s[i-1]) && (i+1 >= len(s) || isDigit(s[i+1])) {
		return true
	}

	// Word immediately before the period
	start := i
	for start > 0 && !isSpace(s[start-1]) {
		start--
	}
	word := strings.ToLower(strings.TrimRight(s[start:i], "."))

	// Single-letter initial, "J. Smith"
	if len(word) == 1 && unicode.IsLetter(rune(s[start])) && unicode.IsUpper(rune(s[start])) {
		return true
	}

	_, ok := abbreviations[word]
	return ok
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
