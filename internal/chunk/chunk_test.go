package chunk

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_Empty(t *testing.T) {
	assert.Nil(t, Split("", Options{}))
	assert.Nil(t, Split("   \n\t  ", Options{}))
}

func TestSplit_SingleShortText(t *testing.T) {
	text := "Employees accrue vacation monthly."
	chunks := Split(text, Options{TargetTokens: 50, OverlapTokens: 5})

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, text, chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(text), chunks[0].End)
}

func TestSplit_SpansMatchSource(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	chunks := Split(text, Options{TargetTokens: 60, OverlapTokens: 10})

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, text[c.Start:c.End], c.Text, "chunk %d span mismatch", c.Index)
		assert.NotEmpty(t, strings.TrimSpace(c.Text), "chunk %d is blank", c.Index)
	}
}

func TestSplit_OrderedAndIndexed(t *testing.T) {
	text := strings.Repeat("One two three four five. ", 100)
	chunks := Split(text, Options{TargetTokens: 40, OverlapTokens: 8})

	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		if i > 0 {
			assert.Greater(t, c.Start, chunks[i-1].Start, "chunks must advance")
			assert.Greater(t, c.End, chunks[i-1].End)
		}
	}
}

func TestSplit_OverlapWithinTolerance(t *testing.T) {
	// Unique one-word sentences make token arithmetic exact.
	var sb strings.Builder
	for i := 0; i < 500; i++ {
		sb.WriteString("w")
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString(". ")
	}
	text := sb.String()
	const target, overlap = 50, 10
	chunks := Split(text, Options{TargetTokens: target, OverlapTokens: overlap})

	require.Greater(t, len(chunks), 2)
	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1].Text)
		cur := strings.Fields(chunks[i].Text)

		// Realized overlap = trailing tokens of prev that reappear at the
		// head of cur.
		realized := countPrefixOverlap(prev, cur)
		assert.InDelta(t, overlap, realized, 1, "chunk %d overlap", i)
	}
}

// countPrefixOverlap returns the longest k such that the last k tokens of
// prev equal the first k tokens of cur.
func countPrefixOverlap(prev, cur []string) int {
	max := len(prev)
	if len(cur) < max {
		max = len(cur)
	}
	for k := max; k > 0; k-- {
		match := true
		for i := 0; i < k; i++ {
			if prev[len(prev)-k+i] != cur[i] {
				match = false
				break
			}
		}
		if match {
			return k
		}
	}
	return 0
}

func TestSplit_ReconstructsSourceOrder(t *testing.T) {
	text := "Alpha bravo charlie. Delta echo foxtrot golf. Hotel india juliett kilo lima. " +
		"Mike november oscar. Papa quebec romeo sierra tango. Uniform victor whiskey xray yankee zulu."
	chunks := Split(text, Options{TargetTokens: 8, OverlapTokens: 2})

	require.Greater(t, len(chunks), 1)

	// Walking the chunks and appending only the non-overlapping suffix of
	// each must reproduce the source token sequence.
	var rebuilt []string
	prevEnd := 0
	for _, c := range chunks {
		fields := strings.Fields(c.Text)
		if c.Start >= prevEnd {
			rebuilt = append(rebuilt, fields...)
		} else {
			skip := countPrefixOverlap(rebuilt, fields)
			rebuilt = append(rebuilt, fields[skip:]...)
		}
		prevEnd = c.End
	}
	assert.Equal(t, strings.Fields(text), rebuilt)
}

func TestSplit_HardCutForOversizedSentence(t *testing.T) {
	// One giant sentence with no terminal punctuation until the very end.
	text := strings.Repeat("token ", 300) + "end."
	chunks := Split(text, Options{TargetTokens: 50, OverlapTokens: 5})

	require.Greater(t, len(chunks), 3, "oversized sentence must be hard-cut")
	for _, c := range chunks {
		tokens := len(strings.Fields(c.Text))
		assert.LessOrEqual(t, tokens, 50, "chunk %d exceeds target", c.Index)
	}
}

func TestSplit_PrefersSentenceBoundaries(t *testing.T) {
	text := "First sentence is here. Second sentence follows along nicely. Third one closes the paragraph."
	chunks := Split(text, Options{TargetTokens: 6, OverlapTokens: 0})

	require.Greater(t, len(chunks), 1)
	// At least one cut should land on a sentence boundary.
	boundaryCuts := 0
	for _, c := range chunks[:len(chunks)-1] {
		if strings.HasSuffix(strings.TrimSpace(c.Text), ".") {
			boundaryCuts++
		}
	}
	assert.Greater(t, boundaryCuts, 0)
}

func TestSplit_DefaultsApplied(t *testing.T) {
	text := strings.Repeat("Some sentence with several words in it. ", 200)
	chunks := Split(text, Options{})

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(strings.Fields(c.Text)), DefaultTargetTokens)
	}
}
