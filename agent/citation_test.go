package agent

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookrag/types"
)

func TestResolveBuildsCitations(t *testing.T) {
	chunks := []types.ScoredChunk{
		scored("https://book.example.com/docs/pid", "PID control adjusts output.", 0.92, "Control"),
		scored("https://book.example.com/docs/sensors", "Encoders measure rotation.", 0.81, "Sensing"),
	}

	citations := NewCitationAgent().Resolve("some grounded answer", chunks)
	require.Len(t, citations, 2)

	assert.Equal(t, "https://book.example.com/docs/pid", citations[0].SourceURL)
	assert.Equal(t, "Robotics Book", citations[0].SourceTitle)
	assert.Equal(t, "PID control adjusts output.", citations[0].Excerpt)
	assert.Equal(t, 0.92, citations[0].RelevanceScore)
	assert.Equal(t, 0.81, citations[1].RelevanceScore)
}

func TestResolveNotFoundHasNoCitations(t *testing.T) {
	chunks := []types.ScoredChunk{scored("u", "content", 0.9)}

	assert.Nil(t, NewCitationAgent().Resolve(NotFoundAnswer, chunks))
	assert.Nil(t, NewCitationAgent().Resolve("answer", nil))
}

func TestResolveDeduplicatesSections(t *testing.T) {
	chunks := []types.ScoredChunk{
		scored("https://book.example.com/docs/pid", "First chunk of the section.", 0.95, "Control", "PID"),
		scored("https://book.example.com/docs/pid", "Second chunk, same section.", 0.90, "Control", "PID"),
		scored("https://book.example.com/docs/pid", "Different section, same page.", 0.85, "Control", "Tuning"),
	}

	citations := NewCitationAgent().Resolve("answer", chunks)
	require.Len(t, citations, 2)

	// The higher-scored chunk wins when a section repeats.
	assert.Equal(t, "First chunk of the section.", citations[0].Excerpt)
	assert.Equal(t, 0.95, citations[0].RelevanceScore)
	assert.Equal(t, "Different section, same page.", citations[1].Excerpt)
}

func TestResolveTruncatesLongExcerpts(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("servo calibration routine ", 30))
	chunks := []types.ScoredChunk{scored("u", long, 0.9)}

	citations := NewCitationAgent().Resolve("answer", chunks)
	require.Len(t, citations, 1)

	excerpt := citations[0].Excerpt
	assert.LessOrEqual(t, utf8.RuneCountInString(excerpt), maxExcerptChars)
	assert.True(t, strings.HasSuffix(excerpt, "..."))
	// Word-boundary cut, never mid-word.
	body := strings.TrimSuffix(excerpt, "...")
	assert.True(t, strings.HasSuffix(body, "servo") ||
		strings.HasSuffix(body, "calibration") || strings.HasSuffix(body, "routine"),
		"excerpt cut mid-word: %q", body)
}

func TestTruncateExcerptShortTextUntouched(t *testing.T) {
	assert.Equal(t, "short text", truncateExcerpt("short text"))
}

func TestTruncateExcerptSpacelessRun(t *testing.T) {
	// No word boundary to cut back to; the ellipsis still fits inside the cap.
	excerpt := truncateExcerpt(strings.Repeat("x", 400))
	assert.Equal(t, maxExcerptChars, utf8.RuneCountInString(excerpt))
	assert.True(t, strings.HasSuffix(excerpt, "..."))
}
