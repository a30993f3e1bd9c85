// Package chunk splits document text into overlapping, token-bounded segments
// for embedding and retrieval.
//
// Token counts are approximated by whitespace-separated fields, which is the
// same granularity the embedding providers bill against closely enough for
// sizing purposes. Splitting prefers sentence boundaries and falls back to
// hard cuts when a single sentence exceeds the target size.
package chunk

import (
	"strings"
	"unicode"
)

// Default chunking parameters, used when Options fields are zero.
const (
	DefaultTargetTokens  = 300
	DefaultOverlapTokens = 40
)

// Chunk is a bounded span of the source text.
// Start and End are byte offsets into the original string, so
// source[Start:End] == Text. Chunks are ordered by Index and consecutive
// chunks overlap by approximately the configured overlap.
type Chunk struct {
	Index int
	Start int
	End   int
	Text  string
}

// Options configures the chunker.
type Options struct {
	// TargetTokens is the approximate chunk size. Defaults to DefaultTargetTokens.
	TargetTokens int

	// OverlapTokens is the approximate number of trailing tokens of chunk i
	// that reappear at the head of chunk i+1. Defaults to DefaultOverlapTokens,
	// clamped below TargetTokens.
	OverlapTokens int
}

// token is a whitespace-delimited field with its byte span in the source.
type token struct {
	start, end int
	sentenceEnd bool // token closes a sentence or paragraph
}

// Split chunks text into ordered, overlapping segments.
// Empty or blank input yields nil, not an error.
func Split(text string, opts Options) []Chunk {
	target := opts.TargetTokens
	if target <= 0 {
		target = DefaultTargetTokens
	}
	overlap := opts.OverlapTokens
	if overlap < 0 {
		overlap = 0
	}
	if opts.TargetTokens <= 0 && opts.OverlapTokens == 0 {
		overlap = DefaultOverlapTokens
	}
	// Overlap must leave room for forward progress.
	if overlap >= target {
		overlap = target / 2
	}

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for start < len(tokens) {
		end := start + target
		if end >= len(tokens) {
			end = len(tokens)
		} else {
			// Prefer the latest sentence boundary in the back half of the
			// window; a hard cut at the target is the fallback for run-on
			// text or a single oversized sentence.
			if b := lastSentenceEnd(tokens, start+target/2, end); b > start {
				end = b
			}
		}

		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Start: tokens[start].start,
			End:   tokens[end-1].end,
			Text:  text[tokens[start].start:tokens[end-1].end],
		})

		if end == len(tokens) {
			break
		}
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}

// tokenize splits text into whitespace-delimited tokens with byte spans and
// marks tokens that close a sentence or precede a paragraph break.
func tokenize(text string) []token {
	var tokens []token
	inToken := false
	tokStart := 0

	for i, r := range text {
		if unicode.IsSpace(r) {
			if inToken {
				tokens = append(tokens, token{start: tokStart, end: i})
				inToken = false
			}
			continue
		}
		if !inToken {
			tokStart = i
			inToken = true
		}
	}
	if inToken {
		tokens = append(tokens, token{start: tokStart, end: len(text)})
	}

	for i := range tokens {
		t := text[tokens[i].start:tokens[i].end]
		if sentenceTerminal(t) {
			tokens[i].sentenceEnd = true
			continue
		}
		// A blank line after the token also ends the segment.
		if i+1 < len(tokens) {
			gap := text[tokens[i].end:tokens[i+1].start]
			if strings.Count(gap, "\n") >= 2 {
				tokens[i].sentenceEnd = true
			}
		}
	}
	return tokens
}

// sentenceTerminal reports whether a token ends with sentence punctuation,
// tolerating a trailing quote or bracket.
func sentenceTerminal(tok string) bool {
	tok = strings.TrimRight(tok, `"')]}`+"`")
	if tok == "" {
		return false
	}
	switch tok[len(tok)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

// lastSentenceEnd returns the token index just past the latest
// sentence-ending token in [from, to), or -1 when none exists.
func lastSentenceEnd(tokens []token, from, to int) int {
	if from < 0 {
		from = 0
	}
	for i := to - 1; i >= from; i-- {
		if tokens[i].sentenceEnd {
			return i + 1
		}
	}
	return -1
}
